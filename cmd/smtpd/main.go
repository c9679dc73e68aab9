// Command smtpd is a small example binary wiring the daemon/smtpd
// acceptor to the in-memory backend/memory Backend, for manual smoke
// testing of a full client/server SMTP exchange.
package main

import (
	"flag"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/dunef-com/go-smtpd/backend/memory"
	"github.com/dunef-com/go-smtpd/daemon/smtpd"
)

func main() {
	address := flag.String("address", "0.0.0.0", "network address to listen on")
	port := flag.Int("port", 2525, "TCP port to listen on")
	domain := flag.String("domain", "mail.example.com", "greeting domain advertised to clients")
	perIPLimit := flag.Int("per-ip-limit", 20, "max connections per IP per 10 seconds")
	flag.Parse()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("smtpd: failed to hash example password: %v", err)
	}
	backend := memory.NewBackend([]string{*domain}, map[string]string{"demo": string(passwordHash)})

	daemon := &smtpd.Daemon{
		Address:           *address,
		Port:              *port,
		Domain:            *domain,
		PerIPLimit:        *perIPLimit,
		AllowInsecureAuth: true,
		Backend:           backend,
	}
	if err := daemon.Initialise(); err != nil {
		log.Fatalf("smtpd: failed to initialise daemon: %v", err)
	}
	log.Printf("smtpd: listening on %s:%d for domain %s", *address, *port, *domain)
	if err := daemon.StartAndBlock(); err != nil {
		log.Fatalf("smtpd: %v", err)
	}
}
