// Package memory is a small in-memory example Backend: it accepts mail for
// a configured set of domains, keeps delivered messages in memory for
// inspection, and authenticates PLAIN logins against an in-memory user
// table with bcrypt-hashed passwords. It exists as a usage reference and
// as the Backend run by the example cmd/smtpd binary, not as a production
// mail store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/dunef-com/go-smtpd/sasl"
	"github.com/dunef-com/go-smtpd/smtp"
)

// Message is one delivered mail transaction, recorded verbatim.
type Message struct {
	From string
	To   []string
	Data []byte
}

// Backend accepts mail addressed to any of Domains and authenticates PLAIN
// logins against Users. It is safe for concurrent use.
type Backend struct {
	// Domains lists the accepted recipient domains, lower-case, without a
	// leading "@". A nil/empty slice accepts every domain.
	Domains []string
	// Users maps a login username to a bcrypt password hash, consulted by
	// the PLAIN authenticator this Backend hands to the engine.
	Users map[string]string

	mu       sync.Mutex
	messages []Message
}

// NewBackend returns a Backend accepting mail for domains and authenticating
// against users (username -> bcrypt hash).
func NewBackend(domains []string, users map[string]string) *Backend {
	lower := make([]string, len(domains))
	for i, d := range domains {
		lower[i] = strings.ToLower(d)
	}
	return &Backend{Domains: lower, Users: users}
}

// Messages returns a snapshot of every message accepted so far.
func (b *Backend) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *Backend) acceptsDomain(addr string) bool {
	if len(b.Domains) == 0 {
		return true
	}
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(addr[at+1:])
	for _, d := range b.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// NewSession implements smtp.Backend.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b, conn: c}, nil
}

// Authenticate implements sasl.PlainAuthenticator against the Users table.
func (b *Backend) Authenticate(identity, username, password string) error {
	hash, ok := b.Users[username]
	if !ok {
		return fmt.Errorf("memory: unknown user %q", username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return fmt.Errorf("memory: authentication failed for %q: %w", username, err)
	}
	return nil
}

var _ sasl.PlainAuthenticator = (*Backend)(nil)

// session holds one connection's in-progress transaction.
type session struct {
	backend *Backend
	conn    *smtp.Conn

	from string
	to   []string
}

func (s *session) Mail(_ context.Context, from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *session) Rcpt(_ context.Context, to string) error {
	if !s.backend.acceptsDomain(to) {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "Relay access denied"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(_ context.Context, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, Message{From: s.from, To: append([]string(nil), s.to...), Data: buf.Bytes()})
	s.backend.mu.Unlock()
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error { return nil }

// Authenticators implements smtp.AuthSession, offering PLAIN whenever the
// Backend has a non-empty user table.
func (s *session) Authenticators() []smtp.SaslServer {
	if len(s.backend.Users) == 0 {
		return nil
	}
	return []smtp.SaslServer{sasl.NewPlainServer(s.backend)}
}

var (
	_ smtp.Backend     = (*Backend)(nil)
	_ smtp.AuthSession = (*session)(nil)
)
