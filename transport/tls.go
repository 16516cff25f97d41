package transport

import (
	"crypto/tls"
	"net"

	"golang.org/x/crypto/acme/autocert"
)

type TLS struct {
	TCP
}

func NewTLS(certs []tls.Certificate) *TLS {
	return newTLS(&tls.Config{
		Certificates: certs,
	})
}

// NewAutoTLS obtains certificates for the domains via ACME (Let's Encrypt by default). If
// no domains are passed, certificates are requested for whatever host clients ask for.
// Empty cacheDir disables caching, so certificates are re-issued on every start.
func NewAutoTLS(cacheDir string, domains ...string) *TLS {
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
	}

	if len(domains) > 0 {
		m.HostPolicy = autocert.HostWhitelist(domains...)
	}

	if len(cacheDir) > 0 {
		m.Cache = autocert.DirCache(cacheDir)
	}

	return newTLS(m.TLSConfig())
}

func newTLS(cfg *tls.Config) *TLS {
	return &TLS{
		TCP: newTCP(func(l net.Listener) net.Listener {
			return tls.NewListener(l, cfg)
		}),
	}
}
