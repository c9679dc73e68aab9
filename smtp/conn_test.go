package smtp

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSession is a minimal Session/AuthSession used to drive the Connection
// Engine end-to-end without depending on the example backend packages.
type fakeSession struct {
	mails   []string
	rcpts   []string
	data    []byte
	mailErr error
	rcptErr error
	dataErr error
	mechs   []SaslServer
}

func (s *fakeSession) Mail(ctx context.Context, from string, opts *MailOptions) error {
	s.mails = append(s.mails, from)
	return s.mailErr
}

func (s *fakeSession) Rcpt(ctx context.Context, to string) error {
	s.rcpts = append(s.rcpts, to)
	return s.rcptErr
}

func (s *fakeSession) Data(ctx context.Context, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.data = b
	return s.dataErr
}

func (s *fakeSession) Reset()        {}
func (s *fakeSession) Logout() error { return nil }

func (s *fakeSession) Authenticators() []SaslServer { return s.mechs }

type fakeBackend struct {
	session *fakeSession
}

func (b *fakeBackend) NewSession(c *Conn) (Session, error) {
	return b.session, nil
}

// testHarness wires a Conn to one end of an in-memory socket pair and runs
// Serve in the background, returning the client-facing end.
type testHarness struct {
	t       *testing.T
	client  net.Conn
	r       *bufio.Reader
	done    chan error
	session *fakeSession
}

func newHarness(t *testing.T, srv *Server) *testHarness {
	t.Helper()
	server, client := net.Pipe()
	conn := srv.NewConn(server)
	done := make(chan error, 1)
	go func() { done <- conn.Serve(context.Background()) }()
	return &testHarness{t: t, client: client, r: bufio.NewReader(client)}
}

func (h *testHarness) send(line string) {
	h.t.Helper()
	_, err := h.client.Write([]byte(line + "\r\n"))
	require.NoError(h.t, err)
}

func (h *testHarness) expect(t *testing.T, want string) {
	t.Helper()
	line, err := h.r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, want+"\r\n", line)
}

func (h *testHarness) expectContinuation(t *testing.T) string {
	t.Helper()
	line, err := h.r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func newTestServer(session *fakeSession) *Server {
	return &Server{
		Domain:        "mx.example.com",
		Backend:       &fakeBackend{session: session},
		MaxRecipients: 100,
		ReadTimeout:   2 * time.Second,
		WriteTimeout:  2 * time.Second,
	}
}

func TestConnBadSyntax(t *testing.T) {
	h := newHarness(t, newTestServer(&fakeSession{}))
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("FOO")
	h.expect(t, "500 5.5.2 Syntax errors, FOO command unrecognized")
}

func TestConnEhloAdvertisesCapabilities(t *testing.T) {
	srv := newTestServer(&fakeSession{mechs: []SaslServer{&stubPlain{}}})
	srv.AllowInsecureAuth = true
	h := newHarness(t, srv)
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("EHLO client.example")
	h.expect(t, "250-Hello client.example")
	h.expect(t, "250-PIPELINING")
	h.expect(t, "250-8BITMIME")
	h.expect(t, "250-ENHANCEDSTATUSCODES")
	h.expect(t, "250-CHUNKING")
	h.expect(t, "250-AUTH PLAIN")
	h.expect(t, "250 SIZE")
}

func TestConnSimpleDataTransaction(t *testing.T) {
	sess := &fakeSession{}
	h := newHarness(t, newTestServer(sess))
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("HELO x")
	h.expect(t, "250 Hello x")
	h.send("MAIL FROM:<a@b>")
	h.expect(t, "250 2.0.0 OK")
	h.send("RCPT TO:<c@d>")
	h.expect(t, "250 2.0.0 OK")
	h.send("DATA")
	h.expect(t, "354 Go ahead. End your data with <CR><LF>.<CR><LF>")
	h.send("..hi\r\n.")
	h.expect(t, "250 2.0.0 OK")
	require.Equal(t, ".hi\r\n", string(sess.data))
	require.Equal(t, []string{"a@b"}, sess.mails)
	require.Equal(t, []string{"c@d"}, sess.rcpts)
}

func TestConnDataSizeCap(t *testing.T) {
	sess := &fakeSession{}
	srv := newTestServer(sess)
	srv.MaxMessageBytes = 5
	h := newHarness(t, srv)
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("HELO x")
	h.expect(t, "250 Hello x")
	h.send("MAIL FROM:<a@b>")
	h.expect(t, "250 2.0.0 OK")
	h.send("RCPT TO:<c@d>")
	h.expect(t, "250 2.0.0 OK")
	h.send("DATA")
	h.expect(t, "354 Go ahead. End your data with <CR><LF>.<CR><LF>")
	h.send("hello world\r\n.")
	h.expect(t, "552 5.3.4 Max message size exceeded")
}

func TestConnBdatTwoChunks(t *testing.T) {
	sess := &fakeSession{}
	h := newHarness(t, newTestServer(sess))
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("HELO x")
	h.expect(t, "250 Hello x")
	h.send("MAIL FROM:<a@b>")
	h.expect(t, "250 2.0.0 OK")
	h.send("RCPT TO:<c@d>")
	h.expect(t, "250 2.0.0 OK")
	_, err := h.client.Write([]byte("BDAT 5\r\nhello"))
	require.NoError(t, err)
	h.expect(t, "250 2.0.0 Continue")
	_, err = h.client.Write([]byte("BDAT 6 LAST\r\n world"))
	require.NoError(t, err)
	h.expect(t, "250 2.0.0 OK")
	require.Equal(t, "hello world", string(sess.data))
}

func TestConnAuthOverCleartextDenied(t *testing.T) {
	sess := &fakeSession{mechs: []SaslServer{&stubPlain{}}}
	h := newHarness(t, newTestServer(sess))
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("EHLO x")
	for {
		line := h.expectContinuation(t)
		if line == "250 SIZE\r\n" {
			break
		}
	}
	h.send("AUTH PLAIN AGFiAGNk")
	h.expect(t, "502 5.5.1 TLS is required")
}

func TestConnOnCommandHookObservesVerbs(t *testing.T) {
	var verbs []string
	srv := newTestServer(&fakeSession{})
	srv.OnCommand = func(verb string) { verbs = append(verbs, verb) }
	h := newHarness(t, srv)
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("HELO client.example")
	h.expect(t, "250 Hello client.example")
	h.send("NOOP")
	h.expect(t, "250 2.0.0 OK")
	require.Equal(t, []string{"HELO", "NOOP"}, verbs)
}

func TestConnStrictRejectsInvalidHeloDomain(t *testing.T) {
	srv := newTestServer(&fakeSession{})
	srv.Strict = true
	h := newHarness(t, srv)
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("EHLO not a domain")
	h.expect(t, "501 5.5.2 Invalid domain name")
}

func TestConnStrictAcceptsAddressLiteral(t *testing.T) {
	srv := newTestServer(&fakeSession{})
	srv.Strict = true
	h := newHarness(t, srv)
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("HELO [127.0.0.1]")
	h.expect(t, "250 Hello [127.0.0.1]")
}

func TestConnRcptWithoutMailRejected(t *testing.T) {
	h := newHarness(t, newTestServer(&fakeSession{}))
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("HELO x")
	h.expect(t, "250 Hello x")
	h.send("RCPT TO:<c@d>")
	h.expect(t, "502 5.5.1 Need MAIL before RCPT")
}

func TestConnDataWithoutMailAndRcptRejected(t *testing.T) {
	h := newHarness(t, newTestServer(&fakeSession{}))
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("HELO x")
	h.expect(t, "250 Hello x")
	h.send("DATA")
	h.expect(t, "502 5.5.1 Need MAIL and RCPT before DATA")
}

func TestConnBdatWithoutMailAndRcptRejected(t *testing.T) {
	h := newHarness(t, newTestServer(&fakeSession{}))
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("HELO x")
	h.expect(t, "250 Hello x")
	h.send("BDAT 5\r\n")
	h.expect(t, "502 5.5.1 Need MAIL and RCPT before BDAT")
}

func TestConnAuthMissingMechanismRejected(t *testing.T) {
	sess := &fakeSession{mechs: []SaslServer{&stubPlain{}}}
	srv := newTestServer(sess)
	srv.AllowInsecureAuth = true
	h := newHarness(t, srv)
	defer h.client.Close()
	h.expect(t, "220 mx.example.com ESMTP Service Ready")
	h.send("EHLO x")
	for {
		line := h.expectContinuation(t)
		if line == "250 SIZE\r\n" {
			break
		}
	}
	h.send("AUTH")
	h.expect(t, "502 5.5.4 Missing parameter")
}

// stubPlain is a trivial SaslServer used only to populate the capability
// list; its Next is never exercised in these tests.
type stubPlain struct{}

func (s *stubPlain) Mechanism() string { return "PLAIN" }
func (s *stubPlain) Next(response []byte) ([]byte, bool, error) {
	return nil, true, nil
}
