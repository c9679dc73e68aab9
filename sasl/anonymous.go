package sasl

import "github.com/dunef-com/go-smtpd/smtp"

// MechanismAnonymous is the ANONYMOUS mechanism name (RFC 4505).
const MechanismAnonymous = "ANONYMOUS"

// AnonymousAuthenticator records trace information supplied by clients
// logging in anonymously (typically an email address or token, per RFC
// 4505); an error it returns fails the exchange.
type AnonymousAuthenticator interface {
	Authenticate(trace string) error
}

// AnonymousServer drives the single round-trip ANONYMOUS mechanism.
type AnonymousServer struct {
	auth AnonymousAuthenticator
}

// NewAnonymousServer returns an ANONYMOUS mechanism backed by auth.
func NewAnonymousServer(auth AnonymousAuthenticator) *AnonymousServer {
	return &AnonymousServer{auth: auth}
}

func (a *AnonymousServer) Mechanism() string { return MechanismAnonymous }

func (a *AnonymousServer) Next(response []byte) (challenge []byte, done bool, err error) {
	if response == nil {
		return nil, false, nil
	}
	if err := a.auth.Authenticate(string(response)); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

var _ smtp.SaslServer = (*AnonymousServer)(nil)
