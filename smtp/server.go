package smtp

import (
	"crypto/tls"
	"net"
	"time"
)

// Default limits. NewConn replaces a zero MaxLineLength, ReadTimeout or
// WriteTimeout with its default; DefaultMaxMessageBytes and
// DefaultMaxRecipients are not applied automatically, and a zero
// MaxMessageBytes or MaxRecipients leaves that cap disabled.
const (
	DefaultMaxLineLength   = 4096
	DefaultMaxMessageBytes = 25 * 1024 * 1024
	DefaultMaxRecipients   = 100
	DefaultReadTimeout     = 5 * time.Minute
	DefaultWriteTimeout    = 5 * time.Minute
)

// baselineCaps are advertised in every EHLO response, regardless of
// configuration.
var baselineCaps = []string{"PIPELINING", "8BITMIME", "ENHANCEDSTATUSCODES", "CHUNKING"}

// Server is the process-wide, immutable-once-serving configuration shared by
// every Conn it constructs. A Server is safe for concurrent use by many
// accepted connections; Backend must be too.
type Server struct {
	// Domain is the greeting domain advertised in the 220 banner.
	Domain string
	// TLSConfig, if non-nil, makes STARTTLS available. The acceptor
	// (package daemon/smtpd) is responsible for populating it, whether
	// from a static certificate pair or an ACME-backed autocert manager.
	TLSConfig *tls.Config
	// Backend is the application-supplied Session factory.
	Backend Backend

	// MaxRecipients caps RCPT commands per transaction; 0 disables the cap.
	MaxRecipients int
	// MaxMessageBytes caps DATA/BDAT body size; 0 disables the cap.
	MaxMessageBytes int
	// MaxLineLength caps the length of any single CRLF-terminated command
	// line; 0 uses DefaultMaxLineLength.
	MaxLineLength int
	// ReadTimeout bounds every wire read, including between BDAT chunks.
	ReadTimeout time.Duration
	// WriteTimeout bounds every wire write.
	WriteTimeout time.Duration

	// AllowInsecureAuth permits AUTH to proceed on a cleartext transport.
	AllowInsecureAuth bool
	// Strict enforces RFC 5321 angle-bracket wrapping on MAIL/RCPT addresses.
	Strict bool
	// EnableSMTPUTF8 makes the SMTPUTF8 MAIL parameter and EHLO capability available.
	EnableSMTPUTF8 bool
	// EnableRequireTLS makes the REQUIRETLS MAIL parameter and EHLO capability available.
	EnableRequireTLS bool
	// EnableBinaryMIME makes BODY=BINARYMIME and the BINARYMIME EHLO capability available.
	EnableBinaryMIME bool

	// OnCommand, if set, is called once per dispatched command verb
	// (HELO, MAIL, RCPT, ...), letting an acceptor like daemon/smtpd
	// maintain per-verb counters without the engine depending on any
	// particular metrics library.
	OnCommand func(verb string)
	// OnBytesReceived, if set, is called with the size of each BDAT chunk
	// accepted onto the wire, before any oversize check.
	OnBytesReceived func(n int)
}

// withDefaults returns a copy of cfg with zero-valued limits replaced by
// their package defaults.
func (s *Server) withDefaults() *Server {
	out := *s
	if out.MaxLineLength == 0 {
		out.MaxLineLength = DefaultMaxLineLength
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = DefaultReadTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = DefaultWriteTimeout
	}
	return &out
}

// NewConn constructs a Connection Engine for one freshly accepted socket.
// The caller (typically the daemon/smtpd acceptor) is responsible for
// running Conn.Serve and for closing the socket afterward if Serve has not
// already done so.
func (s *Server) NewConn(conn net.Conn) *Conn {
	cfg := s.withDefaults()
	t := newTransport(conn)
	c := &Conn{
		srv: cfg,
		lr:  newLineReader(t, cfg.MaxLineLength, cfg.ReadTimeout),
		lw:  newLineWriter(t, cfg.WriteTimeout),
		t:   t,
	}
	return c
}
