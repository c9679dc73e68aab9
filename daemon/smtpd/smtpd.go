// Package smtpd is the Server & Acceptor driver: it binds a listener, loads
// or provisions TLS material, resolves a connecting client's reverse DNS,
// and spawns one smtp.Conn per accepted socket, carrying the ambient stack
// (structured logging, per-IP rate limiting, Prometheus metrics) the way
// the teacher's own daemon/smtpd.Daemon does for its SMTP listener.
package smtpd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/acme/autocert"

	"github.com/dunef-com/go-smtpd/dnsutil"
	"github.com/dunef-com/go-smtpd/lalog"
	"github.com/dunef-com/go-smtpd/smtp"
)

// RateLimitIntervalSec is the window PerIPLimit is measured over, matching
// the teacher's own constant.
const RateLimitIntervalSec = 10

// PTRLookupTimeout bounds the reverse-DNS lookup performed before handing a
// connection to the engine; a slow or failed lookup must never stall
// accepting the connection.
const PTRLookupTimeout = 2 * time.Second

// Daemon listens for SMTP connections and drives them through an
// smtp.Server engine, the way the teacher's Daemon drives its connections
// through its own smtp.Conn event loop.
type Daemon struct {
	Address string `json:"Address"` // Network address to listen on, e.g. "0.0.0.0".
	Port    int    `json:"Port"`    // TCP port to listen on.
	Domain  string `json:"Domain"`  // Greeting domain advertised in the 220 banner.

	TLSCertPath  string   `json:"TLSCertPath"`  // (Optional) static certificate for STARTTLS.
	TLSKeyPath   string   `json:"TLSKeyPath"`   // (Optional) static certificate's key.
	ACMEDomains  []string `json:"ACMEDomains"`  // (Optional) alternative to the static pair: provision via ACME for these names.
	ACMECacheDir string   `json:"ACMECacheDir"` // Directory autocert caches issued certificates in.

	PerIPLimit      int `json:"PerIPLimit"`      // Maximum connections per IP per RateLimitIntervalSec.
	MaxRecipients   int `json:"MaxRecipients"`   // Forwarded to smtp.Server; 0 disables the cap.
	MaxMessageBytes int `json:"MaxMessageBytes"` // Forwarded to smtp.Server; 0 disables the cap.

	AllowInsecureAuth bool `json:"AllowInsecureAuth"`
	EnableSMTPUTF8    bool `json:"EnableSMTPUTF8"`
	EnableRequireTLS  bool `json:"EnableRequireTLS"`
	EnableBinaryMIME  bool `json:"EnableBinaryMIME"`
	Strict            bool `json:"Strict"`

	// Backend supplies Sessions for accepted connections; it is the
	// embedder's integration point and must be set before Initialise.
	Backend smtp.Backend `json:"-"`
	// MetricsRegisterer overrides where Prometheus collectors are
	// registered; nil uses prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer `json:"-"`

	smtpServer *smtp.Server
	listener   net.Listener
	rateLimit  *lalog.RateLimit
	logger     *lalog.Logger
	resolver   *dnsutil.Resolver
	metrics    *daemonMetrics
}

// Initialise validates the configuration and builds the derived internal
// state (TLS material, rate limiter, smtp.Server, metrics, PTR resolver).
// It must be called exactly once before StartAndBlock.
func (daemon *Daemon) Initialise() error {
	if daemon.Address == "" {
		return errors.New("smtpd.Initialise: listen address must not be empty")
	}
	if daemon.Port < 1 {
		return errors.New("smtpd.Initialise: listen port must be greater than 0")
	}
	if daemon.Domain == "" {
		return errors.New("smtpd.Initialise: greeting domain must not be empty")
	}
	if daemon.PerIPLimit < 1 {
		return errors.New("smtpd.Initialise: PerIPLimit must be greater than 0")
	}
	if daemon.Backend == nil {
		return errors.New("smtpd.Initialise: Backend must be configured")
	}

	daemon.logger = &lalog.Logger{
		ComponentName: "smtpd",
		ComponentID: []lalog.LoggerIDField{
			{Key: "Addr", Value: fmt.Sprintf("%s:%d", daemon.Address, daemon.Port)},
		},
	}

	tlsConfig, err := daemon.buildTLSConfig()
	if err != nil {
		return err
	}

	daemon.metrics = newDaemonMetrics(daemon.MetricsRegisterer, fmt.Sprintf("%s:%d", daemon.Address, daemon.Port))

	daemon.smtpServer = &smtp.Server{
		Domain:            daemon.Domain,
		TLSConfig:         tlsConfig,
		Backend:           daemon.Backend,
		MaxRecipients:     daemon.MaxRecipients,
		MaxMessageBytes:   daemon.MaxMessageBytes,
		AllowInsecureAuth: daemon.AllowInsecureAuth,
		Strict:            daemon.Strict,
		EnableSMTPUTF8:    daemon.EnableSMTPUTF8,
		EnableRequireTLS:  daemon.EnableRequireTLS,
		EnableBinaryMIME:  daemon.EnableBinaryMIME,
		OnCommand: func(verb string) {
			daemon.metrics.commandsProcessed.WithLabelValues(verb).Inc()
		},
		OnBytesReceived: func(n int) {
			daemon.metrics.bytesReceived.Add(float64(n))
		},
	}

	daemon.rateLimit = &lalog.RateLimit{
		MaxCount: daemon.PerIPLimit,
		UnitSecs: RateLimitIntervalSec,
		Logger:   daemon.logger,
	}
	daemon.rateLimit.Initialise()

	if resolver, err := dnsutil.NewResolver(); err == nil {
		daemon.resolver = resolver
	} else {
		daemon.logger.Info("", err, "reverse DNS lookups are disabled, no resolver configuration found")
	}

	return nil
}

// buildTLSConfig prefers a static certificate pair when one is configured,
// falling back to ACME autocert when ACMEDomains names at least one host,
// and returns nil (STARTTLS unavailable) otherwise.
func (daemon *Daemon) buildTLSConfig() (*tls.Config, error) {
	if daemon.TLSCertPath != "" || daemon.TLSKeyPath != "" {
		if daemon.TLSCertPath == "" || daemon.TLSKeyPath == "" {
			return nil, errors.New("smtpd.Initialise: TLS certificate and key paths must both be set")
		}
		cert, err := tls.LoadX509KeyPair(daemon.TLSCertPath, daemon.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("smtpd.Initialise: failed to read TLS certificate: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}
	if len(daemon.ACMEDomains) > 0 {
		mgr := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(daemon.ACMEDomains...),
		}
		if daemon.ACMECacheDir != "" {
			mgr.Cache = autocert.DirCache(daemon.ACMECacheDir)
		}
		return mgr.TLSConfig(), nil
	}
	return nil, nil
}

// StartAndBlock listens on Address:Port and serves connections until the
// listener is closed by Stop, returning nil in that case. Initialise must
// have been called first.
func (daemon *Daemon) StartAndBlock() error {
	listener, err := net.Listen("tcp", net.JoinHostPort(daemon.Address, strconv.Itoa(daemon.Port)))
	if err != nil {
		return fmt.Errorf("smtpd.StartAndBlock: failed to listen on %s:%d: %w", daemon.Address, daemon.Port, err)
	}
	daemon.listener = listener
	daemon.logger.Info("", nil, "going to listen for connections")

	for {
		conn, err := daemon.listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "closed") {
				return nil
			}
			return fmt.Errorf("smtpd.StartAndBlock: failed to accept new connection: %w", err)
		}
		daemon.metrics.connectionsAccepted.Inc()
		go daemon.handleConnection(conn)
	}
}

// Stop closes the listener, causing StartAndBlock's accept loop to return.
func (daemon *Daemon) Stop() {
	if daemon.listener != nil {
		_ = daemon.listener.Close()
	}
}

// Addr returns the listener's bound address, or nil until StartAndBlock
// has bound the listener. Useful in tests that bind
// Port 0 and need to learn the assigned port.
func (daemon *Daemon) Addr() net.Addr {
	if daemon.listener == nil {
		return nil
	}
	return daemon.listener.Addr()
}

// handleConnection enforces the per-IP rate limit, resolves the client's
// reverse DNS, and hands the socket to the smtp engine. It always closes
// the socket before returning.
func (daemon *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	clientIP := remoteIP(conn)
	if !daemon.rateLimit.Add(clientIP, true) {
		daemon.metrics.rateLimitRejections.Inc()
		_, _ = conn.Write([]byte("421 4.7.0 Too many connections, try again later\r\n"))
		return
	}

	daemon.metrics.connectionsActive.Inc()
	defer daemon.metrics.connectionsActive.Dec()

	engineConn := daemon.smtpServer.NewConn(conn)
	if daemon.resolver != nil {
		if name := daemon.lookupPTR(conn); name != "" {
			engineConn.SetPTRName(name)
		}
	}

	if err := engineConn.Serve(context.Background()); err != nil {
		daemon.logger.MaybeMinorError(err)
	}
}

func (daemon *Daemon) lookupPTR(conn net.Conn) string {
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), PTRLookupTimeout)
	defer cancel()
	name, err := daemon.resolver.LookupPTR(ctx, tcpAddr.IP)
	if err != nil {
		daemon.logger.Info(tcpAddr.IP.String(), err, "reverse DNS lookup failed")
		return ""
	}
	return name
}

func remoteIP(conn net.Conn) string {
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	return conn.RemoteAddr().String()
}
