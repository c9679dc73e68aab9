package sesforward

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/stretchr/testify/require"

	"github.com/dunef-com/go-smtpd/lalog"
	"github.com/dunef-com/go-smtpd/smtp"
)

type fakeSES struct {
	calls []*ses.SendRawEmailInput
	err   error
}

func (f *fakeSES) SendRawEmailWithContext(_ aws.Context, input *ses.SendRawEmailInput, _ ...request.Option) (*ses.SendRawEmailOutput, error) {
	f.calls = append(f.calls, input)
	return &ses.SendRawEmailOutput{}, f.err
}

func newTestBackend(fake sesAPI) *Backend {
	return &Backend{
		ForwardTo: []string{"ops@example.com"},
		Region:    "us-east-1",
		logger:    &lalog.Logger{ComponentName: "sesforward-test"},
		client:    fake,
	}
}

func TestSessionForwardsCompletedTransaction(t *testing.T) {
	fake := &fakeSES{}
	b := newTestBackend(fake)
	sess, err := b.NewSession(&smtp.Conn{})
	require.NoError(t, err)

	require.NoError(t, sess.Mail(context.Background(), "alice@sender.com", &smtp.MailOptions{}))
	require.NoError(t, sess.Rcpt(context.Background(), "anyone@example.com"))
	require.NoError(t, sess.Data(context.Background(), strings.NewReader("Subject: hi\r\n\r\nbody")))

	require.Len(t, fake.calls, 1)
	require.Equal(t, "alice@sender.com", *fake.calls[0].Source)
	require.Equal(t, []*string{aws.String("ops@example.com")}, fake.calls[0].Destinations)
	require.Equal(t, "Subject: hi\r\n\r\nbody", string(fake.calls[0].RawMessage.Data))
}

func TestSessionResetClearsPendingBody(t *testing.T) {
	fake := &fakeSES{}
	b := newTestBackend(fake)
	sess, err := b.NewSession(&smtp.Conn{})
	require.NoError(t, err)

	require.NoError(t, sess.Mail(context.Background(), "a@b.com", &smtp.MailOptions{}))
	sess.Reset()
	require.NoError(t, sess.Mail(context.Background(), "c@d.com", &smtp.MailOptions{}))
	require.NoError(t, sess.Data(context.Background(), strings.NewReader("second")))

	require.Len(t, fake.calls, 1)
	require.Equal(t, "c@d.com", *fake.calls[0].Source)
	require.Equal(t, "second", string(fake.calls[0].RawMessage.Data))
}

func TestNewBackendRequiresRegionAndForwardTo(t *testing.T) {
	_, err := NewBackend("", []string{"a@b.com"})
	require.Error(t, err)
	_, err = NewBackend("us-east-1", nil)
	require.Error(t, err)
}
