package asynchttp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/asynchttp/transport"
)

var (
	ErrBadCertificate = errors.New("one or more passed certificates are empty")
	ErrNoCertificates = errors.New("no certificates were passed")
)

// Transport is a listener to be bound on Serve. Errors occurred on constructing it are
// reported by Serve too.
type Transport struct {
	addr  string
	spawn func() (transport.Transport, error)
}

// TCP is a plain listener.
func TCP(addr string) Transport {
	return Transport{
		addr: addr,
		spawn: func() (transport.Transport, error) {
			return transport.NewTCP(), nil
		},
	}
}

// TLS loads the certificate pair from the files.
func TLS(addr, cert, key string) Transport {
	return Transport{
		addr: addr,
		spawn: func() (transport.Transport, error) {
			c, err := tls.LoadX509KeyPair(cert, key)
			if err != nil {
				return nil, errors.Wrap(err, "load certificate")
			}

			return transport.NewTLS([]tls.Certificate{c}), nil
		},
	}
}

// HTTPS serves TLS with the certificates.
func HTTPS(addr string, certs ...tls.Certificate) Transport {
	return Transport{
		addr: addr,
		spawn: func() (transport.Transport, error) {
			// the most obvious mistakes
			switch {
			case len(certs) == 0:
				return nil, ErrNoCertificates
			case !noEmptyCerts(certs):
				return nil, ErrBadCertificate
			}

			return transport.NewTLS(certs), nil
		},
	}
}

// AutoTLS obtains certificates for the domains automatically. They are cached in the user's
// cache directory, if there's any.
func AutoTLS(addr string, domains ...string) Transport {
	return Transport{
		addr: addr,
		spawn: func() (transport.Transport, error) {
			return transport.NewAutoTLS(autocertCache(), domains...), nil
		},
	}
}

// SelfSigned serves TLS with a freshly generated self-signed certificate, valid for the
// addr's host.
func SelfSigned(addr string) Transport {
	return Transport{
		addr: addr,
		spawn: func() (transport.Transport, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, "bad address")
			}

			cert, err := generateSelfSignedCert(host)
			if err != nil {
				return nil, errors.Wrap(err, "generate self-signed certificate")
			}

			return transport.NewTLS([]tls.Certificate{cert}), nil
		},
	}
}

// Cert loads the certificate pair. In case of an error an empty certificate is returned, which
// is reported on Serve.
func Cert(cert, key string) tls.Certificate {
	c, _ := tls.LoadX509KeyPair(cert, key)
	return c
}

func noEmptyCerts(certs []tls.Certificate) bool {
	for _, c := range certs {
		if c.Certificate == nil {
			return false
		}
	}

	return true
}

func autocertCache() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}

	dir = filepath.Join(dir, "asynchttp-autocert")
	if err = os.MkdirAll(dir, 0700); err != nil {
		return ""
	}

	return dir
}

func isLocalhost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}

	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func generateSelfSignedCert(hosts ...string) (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"asynchttp"}},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}
