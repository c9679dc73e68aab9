package smtp

import (
	"crypto/tls"
	"net"
)

// transport wraps the connection's socket in one of two modes, cleartext
// or TLS-wrapped, switched in place by STARTTLS. Unlike the teacher's
// multi-layer wrapping (a buffered reader over a TLS-capable variant over a
// shared handle), a transport owns exactly one net.Conn at a time and is
// never touched by more than one goroutine: the BDAT consumer goroutine
// receives only the Session and the pipe's read end, while the transport
// stays with the dispatcher for the whole chunked transfer.
type transport struct {
	conn net.Conn
	tls  bool
}

func newTransport(conn net.Conn) *transport {
	return &transport{conn: conn}
}

func (t *transport) isTLS() bool {
	return t.tls
}

// upgrade performs the TLS server handshake on the current socket and
// switches the transport into TLS mode on success, leaving the cleartext
// mode untouched on failure so the caller can report the error before
// ending the connection.
func (t *transport) upgrade(cfg *tls.Config) error {
	tlsConn := tls.Server(t.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	t.conn = tlsConn
	t.tls = true
	return nil
}

func (t *transport) connectionState() tls.ConnectionState {
	if tlsConn, ok := t.conn.(*tls.Conn); ok {
		return tlsConn.ConnectionState()
	}
	return tls.ConnectionState{}
}

func (t *transport) close() error {
	return t.conn.Close()
}
