package smtp

import "errors"

// ErrUnexpectedClientResponse is returned by a SaslServer that receives a
// client response it did not ask for (e.g. extra bytes after it already
// signalled completion).
var ErrUnexpectedClientResponse = errors.New("sasl: unexpected client response")

// SaslServer drives one SASL mechanism's challenge-response loop on behalf
// of the engine. Concrete mechanisms (PLAIN, ANONYMOUS, ...) live outside
// the core engine; see package sasl for ready-made ones.
type SaslServer interface {
	// Mechanism returns the mechanism's name, e.g. "PLAIN".
	Mechanism() string
	// Next is called once per round of the AUTH exchange. response is nil
	// on the very first call unless the client supplied an initial
	// response. If done is true, the authentication succeeded and
	// challenge (if non-empty) is not sent to the client. An error aborts
	// the exchange.
	Next(response []byte) (challenge []byte, done bool, err error)
}
