// Package dnsutil resolves a connecting client's reverse-DNS identity,
// grounded on the teacher's own Client.Exchange usage in its dnsclient
// package, trimmed down to the one query this module needs.
package dnsutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DefaultTimeout bounds a single PTR exchange when the caller's context
// carries no deadline.
const DefaultTimeout = 3 * time.Second

// Resolver looks up PTR records against a fixed set of upstream servers.
type Resolver struct {
	// Servers is a list of "host:port" nameserver addresses. If empty,
	// NewResolver falls back to /etc/resolv.conf.
	Servers []string
}

// NewResolver builds a Resolver querying servers or, when none are given,
// the nameservers listed in the system's /etc/resolv.conf. It fails if that
// file cannot be read or lists no nameserver.
func NewResolver(servers ...string) (*Resolver, error) {
	if len(servers) > 0 {
		return &Resolver{Servers: servers}, nil
	}
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, fmt.Errorf("dnsutil: reading resolver configuration: %w", err)
	}
	addrs := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		addrs = append(addrs, net.JoinHostPort(s, cfg.Port))
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("dnsutil: no nameservers configured")
	}
	return &Resolver{Servers: addrs}, nil
}

// LookupPTR resolves ip's reverse-DNS hostname, querying the first
// configured server that answers. It is safe to call from the connection
// acceptor path; a failed lookup is not fatal to accepting the connection.
func (r *Resolver) LookupPTR(ctx context.Context, ip net.IP) (string, error) {
	reverseName, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", fmt.Errorf("dnsutil: building reverse name for %s: %w", ip, err)
	}

	query := new(dns.Msg)
	query.SetQuestion(reverseName, dns.TypePTR)
	query.RecursionDesired = true

	client := new(dns.Client)
	if deadline, ok := ctx.Deadline(); ok {
		client.Timeout = time.Until(deadline)
	} else {
		client.Timeout = DefaultTimeout
	}

	var lastErr error
	for _, server := range r.Servers {
		resp, _, err := client.ExchangeContext(ctx, query, server)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rr := range resp.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return ptr.Ptr, nil
			}
		}
		return "", fmt.Errorf("dnsutil: no PTR record for %s", ip)
	}
	return "", fmt.Errorf("dnsutil: all nameservers failed, last error: %w", lastErr)
}
