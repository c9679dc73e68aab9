// Package lalog implements the structured, rate-limited logger used
// throughout this module's daemons and example backends. It is a trimmed
// fork of github.com/HouzuoGuo/laitos/lalog, keeping the component-tagged
// message format and per-logger rate limiting while dropping the global
// de-duplication buffers that package carries for a much larger toolbox.
package lalog

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unicode"
)

// MaxLogMessageLen is the maximum length retained for each log entry kept
// in a logger's ring buffer.
const MaxLogMessageLen = 4096

// MaxLogMessagePerSec caps how many messages a single Logger will print per
// second; additional messages are dropped silently.
var MaxLogMessagePerSec = runtime.NumCPU() * 300

// LoggerIDField is one key-value pair of a Logger's ComponentID, giving a
// log entry a clue as to which component instance produced it.
type LoggerIDField struct {
	Key   string
	Value interface{}
}

// Logger prints log messages in a regular, greppable format:
//
//	ComponentName[IDKey1=IDVal1;IDKey2=IDVal2].FunctionName(actorName): Error "..." - message
type Logger struct {
	ComponentName string
	ComponentID   []LoggerIDField

	initOnce  sync.Once
	rateLimit *RateLimit
	recent    *RingBuffer
}

// DefaultLogger is used when a more specific Logger instance is not
// available.
var DefaultLogger = &Logger{ComponentName: "default", ComponentID: []LoggerIDField{{"PID", os.Getpid()}}}

func (logger *Logger) initialiseOnce() {
	logger.initOnce.Do(func() {
		logger.rateLimit = &RateLimit{UnitSecs: 1, MaxCount: MaxLogMessagePerSec, Logger: DefaultLogger}
		logger.rateLimit.Initialise()
		logger.recent = NewRingBuffer(256)
	})
}

func (logger *Logger) componentIDs() string {
	if len(logger.ComponentID) == 0 {
		return ""
	}
	var msg bytes.Buffer
	msg.WriteRune('[')
	for i, field := range logger.ComponentID {
		msg.WriteString(fmt.Sprintf("%s=%v", field.Key, field.Value))
		if i < len(logger.ComponentID)-1 {
			msg.WriteRune(';')
		}
	}
	msg.WriteRune(']')
	return msg.String()
}

// Format builds a log message without printing it.
func (logger *Logger) Format(functionName string, actorName interface{}, err error, template string, values ...interface{}) string {
	var msg bytes.Buffer
	if logger.ComponentName != "" {
		msg.WriteString(logger.ComponentName)
	}
	msg.WriteString(logger.componentIDs())
	if functionName != "" {
		if msg.Len() > 0 {
			msg.WriteRune('.')
		}
		msg.WriteString(functionName)
	}
	if actorName != nil && actorName != "" {
		msg.WriteString(fmt.Sprintf("(%v)", actorName))
	}
	if msg.Len() > 0 {
		msg.WriteString(": ")
	}
	if err != nil {
		msg.WriteString(fmt.Sprintf("Error \"%v\"", err))
		if template != "" {
			msg.WriteString(" - ")
		}
	}
	msg.WriteString(fmt.Sprintf(template, values...))
	return LintString(TruncateString(msg.String(), MaxLogMessageLen), MaxLogMessageLen)
}

func callerName(skip int) string {
	pc, file, _, ok := runtime.Caller(skip)
	if !ok {
		return filepath.Base("?") + ":?"
	}
	fun := runtime.FuncForPC(pc)
	funcName := "?"
	if fun != nil {
		funcName = strings.TrimLeft(filepath.Ext(fun.Name()), ".")
	}
	return filepath.Base(file) + ":" + funcName
}

func (logger *Logger) emit(funcName string, actorName interface{}, err error, template string, values ...interface{}) {
	if !logger.rateLimit.Add(logger.ComponentName, false) {
		return
	}
	msg := logger.Format(funcName, actorName, err, template, values...)
	log.Print(msg)
	logger.recent.Push(msg)
}

// Info prints a log message and retains it in the logger's recent buffer.
func (logger *Logger) Info(actorName interface{}, err error, template string, values ...interface{}) {
	logger.initialiseOnce()
	logger.emit(callerName(2), actorName, err, template, values...)
}

// Warning prints a log message tagged as a warning.
func (logger *Logger) Warning(actorName interface{}, err error, template string, values ...interface{}) {
	logger.initialiseOnce()
	logger.emit(callerName(2), actorName, err, "WARN "+template, values...)
}

// Recent returns the most recently logged messages, oldest first.
func (logger *Logger) Recent() []string {
	logger.initialiseOnce()
	return logger.recent.GetAll()
}

// MaybeMinorError logs err at Info level unless it is nil or looks like an
// ordinary connection teardown (closed/broken pipe), which is not worth
// reporting on every connection.
func (logger *Logger) MaybeMinorError(err error) {
	logger.initialiseOnce()
	if err != nil && !strings.Contains(err.Error(), "closed") && !strings.Contains(err.Error(), "broken") {
		logger.emit(callerName(2), "", err, "minor error")
	}
}

// TruncateString returns in unmodified if it fits within maxLength, or else
// removes a chunk from the middle and substitutes it with a truncation
// marker so the beginning and end of long messages both remain visible.
func TruncateString(in string, maxLength int) string {
	const label = "...(truncated)..."
	if maxLength < 0 {
		maxLength = 0
	}
	if len(in) <= maxLength {
		return in
	}
	if maxLength <= len(label) {
		return in[:maxLength]
	}
	firstHalfEnd := maxLength/2 - len(label)/2
	secondHalfBegin := len(in) - (maxLength / 2) + len(label)/2
	if maxLength%2 == 0 {
		secondHalfBegin++
	}
	var out bytes.Buffer
	out.WriteString(in[:firstHalfEnd])
	out.WriteString(label)
	out.WriteString(in[secondHalfBegin:])
	return out.String()
}

// LintString replaces non-printable characters with an underscore and keeps
// only the characters that start within the first maxLength bytes of in, so
// log messages stay single-line and safe to print.
func LintString(in string, maxLength int) string {
	if maxLength < 0 {
		maxLength = 0
	}
	var out bytes.Buffer
	for i, r := range in {
		if i >= maxLength {
			break
		}
		if (r >= 0 && r <= 8) || (r >= 14 && r <= 31) || r >= 127 || (!unicode.IsPrint(r) && !unicode.IsSpace(r)) {
			out.WriteRune('_')
		} else {
			out.WriteRune(r)
		}
	}
	return out.String()
}
