// Package sesforward is an example forwarding Backend: it accumulates a
// transaction's DATA/BDAT bytes in memory and, once the client completes
// the transaction, forwards the raw message through Amazon SES's
// SendRawEmail, the same way the teacher's ProcessMail forwards accepted
// mail to a configured address, with the SES client traced by AWS X-Ray
// the way the teacher's awsinteg clients are.
package sesforward

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-xray-sdk-go/xray"

	"github.com/dunef-com/go-smtpd/lalog"
	"github.com/dunef-com/go-smtpd/smtp"
)

// sesAPI is the slice of *ses.SES this package calls, narrowed to one
// method so tests can supply a fake instead of talking to AWS.
type sesAPI interface {
	SendRawEmailWithContext(ctx aws.Context, input *ses.SendRawEmailInput, opts ...request.Option) (*ses.SendRawEmailOutput, error)
}

// Backend forwards every accepted transaction through SES, addressed to
// ForwardTo regardless of the envelope recipients, matching the teacher's
// "the original To-Addresses are not relevant" forwarding behavior.
type Backend struct {
	ForwardTo []string
	Region    string

	logger *lalog.Logger
	client sesAPI
}

// NewBackend builds a Backend with its own AWS session and SES client,
// traced by X-Ray, forwarding every accepted message to forwardTo.
func NewBackend(region string, forwardTo []string) (*Backend, error) {
	if region == "" {
		return nil, fmt.Errorf("sesforward.NewBackend: AWS region must not be empty")
	}
	if len(forwardTo) == 0 {
		return nil, fmt.Errorf("sesforward.NewBackend: at least one forward address is required")
	}
	apiSession, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("sesforward.NewBackend: %w", err)
	}
	sesClient := ses.New(apiSession)
	xray.AWS(sesClient.Client)
	return &Backend{
		ForwardTo: forwardTo,
		Region:    region,
		logger:    &lalog.Logger{ComponentName: "sesforward"},
		client:    sesClient,
	}, nil
}

// NewSession implements smtp.Backend.
func (b *Backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend *Backend
	from    string
	body    bytes.Buffer
}

func (s *session) Mail(_ context.Context, from string, _ *smtp.MailOptions) error {
	s.from = from
	s.body.Reset()
	return nil
}

func (s *session) Rcpt(_ context.Context, _ string) error {
	// Every envelope recipient is accepted; the message is forwarded to
	// Backend.ForwardTo regardless of what the client addressed it to.
	return nil
}

func (s *session) Data(ctx context.Context, r io.Reader) error {
	if _, err := io.Copy(&s.body, r); err != nil {
		return err
	}
	return s.backend.forward(ctx, s.from, s.body.Bytes())
}

func (s *session) Reset() {
	s.from = ""
	s.body.Reset()
}

func (s *session) Logout() error { return nil }

// forward sends raw through SES, addressed to Backend.ForwardTo, mirroring
// the teacher's "unconditionally forward the mail" ProcessMail behavior.
func (b *Backend) forward(ctx context.Context, fromAddr string, raw []byte) error {
	startTimeNano := time.Now().UnixNano()
	destinations := make([]*string, len(b.ForwardTo))
	for i, addr := range b.ForwardTo {
		destinations[i] = aws.String(addr)
	}
	_, err := b.client.SendRawEmailWithContext(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(fromAddr),
		Destinations: destinations,
		RawMessage:   &ses.RawMessage{Data: raw},
	})
	durationMilli := (time.Now().UnixNano() - startTimeNano) / 1000000
	if err == nil {
		b.logger.Info(fromAddr, nil, "forwarded a %d bytes long message to %v in %d milliseconds", len(raw), b.ForwardTo, durationMilli)
	} else {
		b.logger.Info(fromAddr, err, "failed to forward a %d bytes long message to %v", len(raw), b.ForwardTo)
	}
	return err
}

var _ smtp.Backend = (*Backend)(nil)
