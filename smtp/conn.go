package smtp

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// bdatTransfer tracks the in-memory pipe and joinable consumer goroutine for
// an in-progress CHUNKING transaction. The Session handle is moved into the
// consumer goroutine for the transfer's duration; the dispatcher does not
// touch c.session again until it reads from done.
type bdatTransfer struct {
	pw   *io.PipeWriter
	done chan error
}

// Conn is the per-socket Connection Engine. It owns the transport, the line
// reader/writer, and all per-connection state described in the data model:
// HELO identity, the optional Session, SASL authenticator instances, and the
// current mail transaction.
type Conn struct {
	srv *Server
	t   *transport
	lr  *lineReader
	lw  *lineWriter

	helo     string
	errCount int

	session        Session
	authenticators map[string]SaslServer
	didAuth        bool

	fromReceived  bool
	recipients    []string
	binarymime    bool
	bytesReceived int
	bdatOversized bool

	bdat *bdatTransfer

	// ptrName is the connecting client's reverse-DNS hostname, if the
	// acceptor resolved one before handing the socket to NewConn. It is
	// opaque to the engine itself, surfaced only for a Backend to inspect.
	ptrName string
}

// RemoteAddr returns the address of the connected client. It is available
// for a Backend to inspect from NewSession or a Session method.
func (c *Conn) RemoteAddr() net.Addr {
	return c.t.conn.RemoteAddr()
}

// TLSConnectionState reports the current transport's TLS state and whether
// STARTTLS has succeeded on this connection.
func (c *Conn) TLSConnectionState() (tls.ConnectionState, bool) {
	if !c.t.isTLS() {
		return tls.ConnectionState{}, false
	}
	return c.t.connectionState(), true
}

// PTRName returns the connecting client's reverse-DNS hostname, as resolved
// by the acceptor before this Conn was constructed, or "" if none was set.
func (c *Conn) PTRName() string {
	return c.ptrName
}

// SetPTRName records the connecting client's reverse-DNS hostname. It is
// meant to be called by the acceptor (package daemon/smtpd) once, before
// Serve begins.
func (c *Conn) SetPTRName(name string) {
	c.ptrName = name
}

// ErrCount reports the number of protocol errors (unparsable or unrecognized
// commands) seen so far on this connection. The engine never acts on it
// itself; it exists so a Backend or acceptor can apply its own soft abuse
// policy, e.g. dropping a connection after too many malformed commands.
func (c *Conn) ErrCount() int {
	return c.errCount
}

// Serve drives the read-dispatch-respond loop for one connection until QUIT,
// a fatal I/O error, or a protocol violation that cannot be resynchronized
// (e.g. an over-length line) ends it. It always closes the transport before
// returning.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.t.close()
	defer c.logout()

	if err := c.lw.writeResponse(220, NoEnhancedCode, c.srv.Domain+" ESMTP Service Ready"); err != nil {
		return err
	}

	for {
		line, err := c.lr.readLine()
		if err != nil {
			return c.handleReadError(err)
		}

		verb, arg, perr := parseCmd(line)
		if perr != nil {
			c.errCount++
			if err := c.lw.writeResponse(501, EnhancedCode{5, 5, 2}, "Bad command"); err != nil {
				return err
			}
			continue
		}

		quit, err := c.dispatch(ctx, verb, arg)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// handleReadError renders the appropriate courtesy response for a broken
// read and reports the error that should be returned from Serve (nil for the
// ordinary, expected termination cases).
func (c *Conn) handleReadError(err error) error {
	switch {
	case err == ErrLineTooLong:
		_ = c.lw.writeResponse(500, EnhancedCode{5, 5, 2}, "Line too long")
		return nil
	case isTimeout(err):
		_ = c.lw.writeResponse(221, EnhancedCode{2, 4, 2}, "Idle timeout, bye bye")
		return nil
	case isClosedOrEOF(err):
		_ = c.lw.writeResponse(221, EnhancedCode{2, 4, 0}, "Connection closed, bye")
		return nil
	default:
		return err
	}
}

func (c *Conn) logout() {
	c.resetTransactionState()
	if c.session != nil {
		_ = c.session.Logout()
		c.session = nil
	}
}

// dispatch executes one parsed command, writing its response(s). quit is
// true once the caller should stop serving after QUIT. A non-nil error
// (including a failed STARTTLS handshake) indicates a fatal transport
// failure and ends the connection without further response.
func (c *Conn) dispatch(ctx context.Context, verb, arg string) (quit bool, err error) {
	if c.srv.OnCommand != nil && verb != "" {
		c.srv.OnCommand(verb)
	}
	switch verb {
	case "":
		c.errCount++
		return false, c.lw.writeResponse(500, EnhancedCode{5, 5, 2}, "Syntax errors, command unrecognized")
	case "HELO":
		return false, c.handleHelo(arg, false)
	case "EHLO":
		return false, c.handleHelo(arg, true)
	case "MAIL":
		return false, c.handleMail(ctx, arg)
	case "RCPT":
		return false, c.handleRcpt(ctx, arg)
	case "DATA":
		return false, c.handleData(ctx, arg)
	case "BDAT":
		return false, c.handleBdat(ctx, arg)
	case "STARTTLS":
		return c.handleStartTLS()
	case "AUTH":
		return false, c.handleAuth(arg)
	case "RSET":
		c.reset()
		return false, c.lw.writeResponse(250, EnhancedCode{2, 0, 0}, "Session reset")
	case "NOOP":
		return false, c.lw.writeResponse(250, EnhancedCode{2, 0, 0}, "OK")
	case "VRFY":
		return false, c.lw.writeResponse(252, NoEnhancedCode, "Cannot VRFY user, but will accept message and attempt delivery")
	case "HELP", "EXPN", "TURN", "SEND", "SOML", "SAML":
		return false, c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, fmt.Sprintf("%s command not implemented", verb))
	case "QUIT":
		return true, c.lw.writeResponse(221, NoEnhancedCode, "Bye")
	default:
		c.errCount++
		return false, c.lw.writeResponse(500, EnhancedCode{5, 5, 2}, fmt.Sprintf("Syntax errors, %s command unrecognized", verb))
	}
}

func (c *Conn) requireHelo() bool {
	return c.helo != ""
}

func (c *Conn) inBdatTransfer() bool {
	return c.bdat != nil
}

// handleHelo implements both HELO and EHLO: it records the client identity,
// asks the Backend for a fresh Session, and for EHLO advertises capabilities.
func (c *Conn) handleHelo(arg string, extended bool) error {
	if c.inBdatTransfer() {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Command not allowed during message transfer")
	}

	if (c.srv.EnableSMTPUTF8 || c.srv.Strict) && !strings.HasPrefix(arg, "[") {
		normalized, err := idna.Lookup.ToUnicode(arg)
		if err != nil {
			return c.lw.writeResponse(501, EnhancedCode{5, 5, 2}, "Invalid domain name")
		}
		arg = normalized
	}

	c.logout()
	c.reset()
	c.helo = arg
	c.didAuth = false
	c.authenticators = nil

	session, err := c.srv.Backend.NewSession(c)
	if err != nil {
		return c.lw.writeResponse(451, EnhancedCode{4, 3, 0}, fmt.Sprintf("Local error in processing: %s", err.Error()))
	}
	c.session = session
	if auth, ok := session.(AuthSession); ok {
		c.authenticators = make(map[string]SaslServer)
		for _, a := range auth.Authenticators() {
			c.authenticators[strings.ToUpper(a.Mechanism())] = a
		}
	}

	if !extended {
		return c.lw.writeResponse(250, NoEnhancedCode, fmt.Sprintf("Hello %s", arg))
	}

	caps := append([]string{}, baselineCaps...)
	if c.srv.TLSConfig != nil && !c.t.isTLS() {
		caps = append(caps, "STARTTLS")
	}
	if len(c.authenticators) > 0 && (c.t.isTLS() || c.srv.AllowInsecureAuth) {
		mechs := make([]string, 0, len(c.authenticators))
		for name := range c.authenticators {
			mechs = append(mechs, name)
		}
		caps = append(caps, "AUTH "+strings.Join(mechs, " "))
	}
	if c.srv.EnableSMTPUTF8 {
		caps = append(caps, "SMTPUTF8")
	}
	if c.srv.EnableRequireTLS && c.t.isTLS() {
		caps = append(caps, "REQUIRETLS")
	}
	if c.srv.EnableBinaryMIME {
		caps = append(caps, "BINARYMIME")
	}
	if c.srv.MaxMessageBytes > 0 {
		caps = append(caps, fmt.Sprintf("SIZE %d", c.srv.MaxMessageBytes))
	} else {
		caps = append(caps, "SIZE")
	}

	return c.lw.writeResponse(250, NoEnhancedCode, append([]string{fmt.Sprintf("Hello %s", arg)}, caps...)...)
}

// handleMail validates and executes a MAIL FROM command, establishing a new
// transaction regardless of any previous one's leftover state.
func (c *Conn) handleMail(ctx context.Context, arg string) error {
	if !c.requireHelo() {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Please introduce yourself first")
	}
	if c.inBdatTransfer() {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Command not allowed during message transfer")
	}
	if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
		return c.lw.writeResponse(501, EnhancedCode{5, 5, 4}, "Syntax: MAIL FROM:<address> [parameters]")
	}

	from, paramTokens, perr := c.parseAddressAndParams(arg[len("FROM:"):])
	if perr != nil {
		return c.lw.writeResponse(perr.Code, perr.EnhancedCode, perr.Message)
	}
	params, perr2 := parseArgs(paramTokens)
	if perr2 != nil {
		return c.lw.writeResponse(501, EnhancedCode{5, 5, 4}, "Malformed ESMTP parameter")
	}
	opts, serr := c.parseMailOptions(params)
	if serr != nil {
		return c.lw.writeResponse(serr.Code, serr.EnhancedCode, serr.Message)
	}

	c.resetTransactionState()

	if err := c.session.Mail(ctx, from, opts); err != nil {
		code, ec, msg := renderSessionError(err, 451, EnhancedCode{4, 0, 0})
		return c.lw.writeResponse(code, ec, msg)
	}
	c.fromReceived = true
	c.binarymime = opts.Body == BodyBINARYMIME
	return c.lw.writeResponse(250, EnhancedCode{2, 0, 0}, "OK")
}

// parseAddressAndParams splits the remainder of a MAIL FROM or RCPT TO
// argument (after the "FROM:"/"TO:" keyword) into the bracketed-or-bare
// address and the trailing ESMTP parameter tokens.
func (c *Conn) parseAddressAndParams(rest string) (addr string, paramTokens []string, err *SMTPError) {
	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, "<") {
		idx := strings.IndexByte(rest, '>')
		if idx < 0 {
			return "", nil, &SMTPError{Code: 501, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "Missing closing angle bracket"}
		}
		addr = rest[1:idx]
		paramTokens = strings.Fields(strings.TrimLeft(rest[idx+1:], " "))
		return addr, paramTokens, nil
	}
	if c.srv.Strict {
		return "", nil, &SMTPError{Code: 501, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "Address must be enclosed in angle brackets"}
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, &SMTPError{Code: 501, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "Missing address"}
	}
	return fields[0], fields[1:], nil
}

func (c *Conn) parseMailOptions(params map[string]string) (*MailOptions, *SMTPError) {
	opts := &MailOptions{Body: Body7BIT}
	for k, v := range params {
		switch strings.ToUpper(k) {
		case "SIZE":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, &SMTPError{Code: 501, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "Invalid SIZE parameter"}
			}
			if c.srv.MaxMessageBytes > 0 && n > c.srv.MaxMessageBytes {
				return nil, &SMTPError{Code: 552, EnhancedCode: EnhancedCode{5, 3, 4}, Message: "Message exceeds maximum size"}
			}
			opts.Size = n
		case "SMTPUTF8":
			if !c.srv.EnableSMTPUTF8 {
				return nil, &SMTPError{Code: 504, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "SMTPUTF8 is not supported"}
			}
			opts.UTF8 = true
		case "REQUIRETLS":
			if !c.srv.EnableRequireTLS {
				return nil, &SMTPError{Code: 504, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "REQUIRETLS is not supported"}
			}
			opts.RequireTLS = true
		case "BODY":
			switch strings.ToUpper(v) {
			case Body7BIT:
				opts.Body = Body7BIT
			case Body8BITMIME:
				opts.Body = Body8BITMIME
			case BodyBINARYMIME:
				if !c.srv.EnableBinaryMIME {
					return nil, &SMTPError{Code: 500, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "BINARYMIME is not supported"}
				}
				opts.Body = BodyBINARYMIME
			default:
				return nil, &SMTPError{Code: 500, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "Unrecognized BODY value"}
			}
		case "AUTH":
			if !strings.HasPrefix(v, "<") || !strings.HasSuffix(v, ">") {
				return nil, &SMTPError{Code: 500, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "Malformed AUTH parameter"}
			}
			decoded, err := decodeXtext(v[1 : len(v)-1])
			if err != nil {
				return nil, &SMTPError{Code: 500, EnhancedCode: EnhancedCode{5, 5, 4}, Message: "Invalid AUTH parameter encoding"}
			}
			opts.Auth = decoded
		default:
			return nil, &SMTPError{Code: 500, EnhancedCode: EnhancedCode{5, 5, 4}, Message: fmt.Sprintf("Unrecognized MAIL parameter %s", k)}
		}
	}
	return opts, nil
}

func (c *Conn) handleRcpt(ctx context.Context, arg string) error {
	if !c.fromReceived {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Need MAIL before RCPT")
	}
	if c.inBdatTransfer() {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Command not allowed during message transfer")
	}
	if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
		return c.lw.writeResponse(501, EnhancedCode{5, 5, 4}, "Syntax: RCPT TO:<address>")
	}
	rest := strings.TrimSpace(arg[len("TO:"):])
	rest = strings.TrimPrefix(rest, "<")
	rest = strings.TrimSuffix(rest, ">")
	recipient := strings.ToLower(strings.TrimSpace(rest))
	if recipient == "" {
		return c.lw.writeResponse(501, EnhancedCode{5, 5, 4}, "Missing recipient address")
	}
	if c.srv.MaxRecipients > 0 && len(c.recipients) >= c.srv.MaxRecipients {
		return c.lw.writeResponse(552, EnhancedCode{5, 5, 3}, "Too many recipients")
	}

	if err := c.session.Rcpt(ctx, recipient); err != nil {
		code, ec, msg := renderSessionError(err, 451, EnhancedCode{4, 0, 0})
		return c.lw.writeResponse(code, ec, msg)
	}
	c.recipients = append(c.recipients, recipient)
	return c.lw.writeResponse(250, EnhancedCode{2, 0, 0}, "OK")
}

func (c *Conn) handleData(ctx context.Context, arg string) error {
	if arg != "" {
		return c.lw.writeResponse(501, EnhancedCode{5, 5, 4}, "DATA takes no arguments")
	}
	if c.inBdatTransfer() || c.binarymime {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Command not allowed during message transfer")
	}
	if !c.fromReceived || len(c.recipients) == 0 {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Need MAIL and RCPT before DATA")
	}

	if err := c.lw.writeResponse(354, NoEnhancedCode, "Go ahead. End your data with <CR><LF>.<CR><LF>"); err != nil {
		return err
	}

	dr := newDotReader(c.lr.br, c.srv.MaxMessageBytes)
	sessionErr := c.session.Data(ctx, dr)

	dr.disableLimit()
	_, _ = io.Copy(io.Discard, dr)

	defer c.reset()
	if sessionErr != nil {
		code, ec, msg := renderSessionError(sessionErr, 554, EnhancedCode{5, 0, 0})
		return c.lw.writeResponse(code, ec, msg)
	}
	return c.lw.writeResponse(250, EnhancedCode{2, 0, 0}, "OK")
}

func (c *Conn) handleBdat(ctx context.Context, arg string) error {
	if !c.fromReceived || len(c.recipients) == 0 {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Need MAIL and RCPT before BDAT")
	}

	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return c.lw.writeResponse(501, EnhancedCode{5, 5, 4}, "Syntax: BDAT <chunk-size> [LAST]")
	}
	size, err := strconv.Atoi(fields[0])
	if err != nil || size < 0 {
		return c.lw.writeResponse(501, EnhancedCode{5, 5, 4}, "Invalid chunk size")
	}
	last := len(fields) > 1 && strings.EqualFold(fields[1], "LAST")

	if c.bdatOversized {
		raw, rerr := c.lr.readFull(size)
		_ = raw
		if rerr != nil {
			return rerr
		}
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "BDAT refused after an oversize chunk; send a new MAIL")
	}

	raw, rerr := c.lr.readFull(size)
	if rerr != nil {
		return rerr
	}
	c.bytesReceived += size
	if c.srv.OnBytesReceived != nil {
		c.srv.OnBytesReceived(size)
	}

	if c.bdat == nil {
		pr, pw := io.Pipe()
		done := make(chan error, 1)
		c.bdat = &bdatTransfer{pw: pw, done: done}
		go func() {
			dataErr := c.session.Data(ctx, pr)
			_ = pr.CloseWithError(dataErr)
			done <- dataErr
		}()
	}

	if c.srv.MaxMessageBytes > 0 && c.bytesReceived > c.srv.MaxMessageBytes {
		c.bdatOversized = true
		c.bdat.pw.CloseWithError(ErrDataTooLarge)
		<-c.bdat.done
		c.bdat = nil
		return c.lw.writeResponse(ErrDataTooLarge.Code, ErrDataTooLarge.EnhancedCode, ErrDataTooLarge.Message)
	}

	// A write error here means the consumer already returned; its result
	// still surfaces correctly once LAST is joined below.
	_, _ = c.bdat.pw.Write(raw)

	if !last {
		return c.lw.writeResponse(250, EnhancedCode{2, 0, 0}, "Continue")
	}

	c.bdat.pw.Close()
	dataErr := <-c.bdat.done
	c.bdat = nil
	defer c.reset()
	if dataErr != nil {
		code, ec, msg := renderSessionError(dataErr, 554, EnhancedCode{5, 0, 0})
		return c.lw.writeResponse(code, ec, msg)
	}
	return c.lw.writeResponse(250, EnhancedCode{2, 0, 0}, "OK")
}

func (c *Conn) handleStartTLS() (quit bool, err error) {
	if c.inBdatTransfer() {
		return false, c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Command not allowed during message transfer")
	}
	if c.t.isTLS() || c.srv.TLSConfig == nil {
		return false, c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "TLS not available")
	}
	if werr := c.lw.writeResponse(220, NoEnhancedCode, "Ready to start TLS"); werr != nil {
		return false, werr
	}

	if herr := c.t.upgrade(c.srv.TLSConfig); herr != nil {
		_ = c.lw.writeResponse(454, EnhancedCode{4, 7, 0}, "TLS handshake failed")
		return false, herr
	}

	c.lr.rebind(c.t)
	c.lw.rebind(c.t)
	c.logout()
	c.reset()
	c.helo = ""
	c.didAuth = false
	c.authenticators = nil
	return false, nil
}

func (c *Conn) handleAuth(arg string) error {
	if len(c.authenticators) == 0 {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Authentication not supported")
	}
	if !c.requireHelo() {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "Please introduce yourself first")
	}
	if c.didAuth {
		return c.lw.writeResponse(503, EnhancedCode{5, 5, 1}, "Already authenticated")
	}
	if !c.t.isTLS() && !c.srv.AllowInsecureAuth {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 1}, "TLS is required")
	}

	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return c.lw.writeResponse(502, EnhancedCode{5, 5, 4}, "Missing parameter")
	}
	mech := strings.ToUpper(fields[0])
	server, ok := c.authenticators[mech]
	if !ok {
		return c.lw.writeResponse(504, EnhancedCode{5, 7, 4}, "Unrecognized authentication mechanism")
	}

	var resp []byte
	haveResp := false
	if len(fields) > 1 {
		if fields[1] == "*" {
			return c.lw.writeResponse(501, EnhancedCode{5, 0, 0}, "Negotiation cancelled")
		}
		decoded, derr := decodeAuthBase64(fields[1])
		if derr != nil {
			return c.lw.writeResponse(501, EnhancedCode{5, 5, 2}, "Invalid base64 encoding")
		}
		resp, haveResp = decoded, true
	}

	for round := 0; round < 100; round++ {
		var challenge []byte
		var done bool
		var nerr error
		if haveResp {
			challenge, done, nerr = server.Next(resp)
		} else {
			challenge, done, nerr = server.Next(nil)
		}
		if nerr != nil {
			return c.lw.writeResponse(454, EnhancedCode{4, 7, 0}, nerr.Error())
		}
		if done {
			c.didAuth = true
			return c.lw.writeResponse(235, EnhancedCode{2, 0, 0}, "Authentication succeeded")
		}

		if werr := c.lw.writeResponse(334, NoEnhancedCode, base64.StdEncoding.EncodeToString(challenge)); werr != nil {
			return werr
		}
		line, rerr := c.lr.readLine()
		if rerr != nil {
			return rerr
		}
		if line == "*" {
			return c.lw.writeResponse(501, EnhancedCode{5, 0, 0}, "Negotiation cancelled")
		}
		decoded, derr := decodeAuthBase64(line)
		if derr != nil {
			return c.lw.writeResponse(501, EnhancedCode{5, 5, 2}, "Invalid base64 encoding")
		}
		resp, haveResp = decoded, true
	}
	return errors.New("smtp: AUTH exchange exceeded round limit")
}

func decodeAuthBase64(s string) ([]byte, error) {
	if s == "=" {
		return []byte{}, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// resetTransactionState clears the per-transaction bookkeeping without
// touching the Session; used both by a full reset() and at the start of a
// new MAIL FROM, which always supersedes any incomplete prior transaction.
func (c *Conn) resetTransactionState() {
	c.fromReceived = false
	c.recipients = nil
	c.binarymime = false
	c.bytesReceived = 0
	c.bdatOversized = false
	if c.bdat != nil {
		c.bdat.pw.CloseWithError(errors.New("smtp: transaction reset"))
		<-c.bdat.done
		c.bdat = nil
	}
}

// reset clears the transaction and, if a Session exists, notifies it.
func (c *Conn) reset() {
	c.resetTransactionState()
	if c.session != nil {
		c.session.Reset()
	}
}

// renderSessionError extracts the wire response a callback error should
// produce: an *SMTPError's own fields verbatim, or the supplied default
// code/enhanced-code paired with the error's message.
func renderSessionError(err error, defaultCode int, defaultEC EnhancedCode) (code int, ec EnhancedCode, msg string) {
	var se *SMTPError
	if errors.As(err, &se) {
		return se.Code, se.EnhancedCode, se.Message
	}
	return defaultCode, defaultEC, err.Error()
}
