// Package sasl provides ready-made SASL mechanisms (PLAIN, ANONYMOUS) that
// implement smtp.SaslServer against small authenticator callback interfaces,
// for backends that do not want to hand-write the challenge-response
// bookkeeping themselves.
package sasl

import (
	"bytes"
	"errors"

	"github.com/dunef-com/go-smtpd/smtp"
)

// MechanismPlain is the PLAIN mechanism name (RFC 4616).
const MechanismPlain = "PLAIN"

// PlainAuthenticator authenticates a PLAIN exchange's identity, username,
// and password. An empty identity means it is the same as the username.
type PlainAuthenticator interface {
	Authenticate(identity, username, password string) error
}

// PlainServer drives the single round-trip PLAIN mechanism.
type PlainServer struct {
	auth PlainAuthenticator
}

// NewPlainServer returns a PLAIN mechanism backed by auth.
func NewPlainServer(auth PlainAuthenticator) *PlainServer {
	return &PlainServer{auth: auth}
}

func (p *PlainServer) Mechanism() string { return MechanismPlain }

func (p *PlainServer) Next(response []byte) (challenge []byte, done bool, err error) {
	if response == nil {
		// No initial response: ask the client for one with an empty challenge.
		return nil, false, nil
	}

	parts := bytes.SplitN(response, []byte{0}, 3)
	if len(parts) != 3 {
		return nil, false, errors.New("sasl: malformed PLAIN response")
	}
	identity, username, password := string(parts[0]), string(parts[1]), string(parts[2])
	if err := p.auth.Authenticate(identity, username, password); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

var _ smtp.SaslServer = (*PlainServer)(nil)
