package smtp

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// lineWriter emits multi-line CRLF-terminated SMTP responses, expanding the
// enhanced status code sentinels documented on EnhancedCode.
type lineWriter struct {
	conn         net.Conn
	writeTimeout time.Duration
}

func newLineWriter(t *transport, writeTimeout time.Duration) *lineWriter {
	return &lineWriter{conn: t.conn, writeTimeout: writeTimeout}
}

func (lw *lineWriter) rebind(t *transport) {
	lw.conn = t.conn
}

func (lw *lineWriter) writeLine(line string) error {
	if lw.writeTimeout > 0 {
		if err := lw.conn.SetWriteDeadline(time.Now().Add(lw.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := lw.conn.Write([]byte(line + "\r\n"))
	return err
}

// resolveEnhancedCode implements the three-variant sentinel rule: omit,
// derive from the reply's numeric class, or print verbatim.
func resolveEnhancedCode(code int, ec EnhancedCode) (print bool, resolved EnhancedCode) {
	if ec == NoEnhancedCode {
		return false, ec
	}
	if ec == EnhancedCodeNotSet {
		switch code / 100 {
		case 2, 4, 5:
			return true, EnhancedCode{5, 5, 0}
		default:
			return false, NoEnhancedCode
		}
	}
	return true, ec
}

// writeResponse writes a (possibly multi-line) SMTP response. Every line but
// the last uses "code-text"; the last uses "code text" (or "code a.b.c text"
// when an enhanced code is to be printed), per RFC 5321/2034.
func (lw *lineWriter) writeResponse(code int, ec EnhancedCode, texts ...string) error {
	if len(texts) == 0 {
		texts = []string{""}
	}
	print, resolved := resolveEnhancedCode(code, ec)
	for i, text := range texts {
		last := i == len(texts)-1
		sep := "-"
		if last {
			sep = " "
		}
		if last && print {
			if err := lw.writeLine(fmt.Sprintf("%d%s%d.%d.%d %s", code, sep, resolved[0], resolved[1], resolved[2], text)); err != nil {
				return err
			}
			continue
		}
		if err := lw.writeLine(fmt.Sprintf("%d%s%s", code, sep, text)); err != nil {
			return err
		}
	}
	return nil
}

// writeMultilineText splits a template string on "\n" and writes each
// fragment as one line of a single multi-line response, trimming
// surrounding whitespace the way the teacher's replyMulti does.
func (lw *lineWriter) writeMultilineText(code int, ec EnhancedCode, text string) error {
	lines := strings.Split(strings.Trim(text, " \t\n"), "\n")
	return lw.writeResponse(code, ec, lines...)
}
