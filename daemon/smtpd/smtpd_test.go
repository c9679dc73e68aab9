package smtpd

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dunef-com/go-smtpd/smtp"
)

type stubSession struct{}

func (stubSession) Mail(context.Context, string, *smtp.MailOptions) error { return nil }
func (stubSession) Rcpt(context.Context, string) error                    { return nil }
func (stubSession) Data(_ context.Context, r io.Reader) error             { _, err := io.Copy(io.Discard, r); return err }
func (stubSession) Reset()                                                {}
func (stubSession) Logout() error                                         { return nil }

type stubBackend struct{}

func (stubBackend) NewSession(*smtp.Conn) (smtp.Session, error) { return stubSession{}, nil }

func waitForAddr(t *testing.T, d *Daemon) net.Addr {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := d.Addr(); addr != nil {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("daemon never bound a listener")
	return nil
}

func TestDaemonRejectsIncompleteConfig(t *testing.T) {
	d := &Daemon{}
	require.Error(t, d.Initialise())

	d = &Daemon{Address: "127.0.0.1", Port: 2525, Domain: "mail.example.com", PerIPLimit: 5}
	require.Error(t, d.Initialise(), "missing Backend must fail")
}

func TestDaemonAcceptsConnectionAndGreets(t *testing.T) {
	d := &Daemon{
		Address:           "127.0.0.1",
		Port:              0,
		Domain:            "mail.example.com",
		PerIPLimit:        100,
		Backend:           stubBackend{},
		MetricsRegisterer: prometheus.NewRegistry(),
	}
	require.NoError(t, d.Initialise())

	go func() { _ = d.StartAndBlock() }()
	defer d.Stop()
	addr := waitForAddr(t, d)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	banner, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, banner, "220 mail.example.com")

	_, err = conn.Write([]byte("EHLO client.example.com\r\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "250-Hello client.example.com")

	_, err = conn.Write([]byte("QUIT\r\n"))
	require.NoError(t, err)
}

func TestDaemonPerIPRateLimit(t *testing.T) {
	d := &Daemon{
		Address:           "127.0.0.1",
		Port:              0,
		Domain:            "mail.example.com",
		PerIPLimit:        1,
		Backend:           stubBackend{},
		MetricsRegisterer: prometheus.NewRegistry(),
	}
	require.NoError(t, d.Initialise())

	go func() { _ = d.StartAndBlock() }()
	defer d.Stop()
	addr := waitForAddr(t, d)

	first, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer first.Close()
	_, err = bufio.NewReader(first).ReadString('\n')
	require.NoError(t, err)

	second, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer second.Close()
	line, err := bufio.NewReader(second).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "421")
}
