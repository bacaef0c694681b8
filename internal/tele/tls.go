package tele

import (
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"

	"github.com/juju/errors"
	tele_config "github.com/temoto/blnet/internal/tele/config"
)

// tlsConfig returns nil when broker URL does not ask for TLS and no CA is configured.
func tlsConfig(teleConfig tele_config.Config) (*tls.Config, error) {
	u, err := url.ParseRequestURI(teleConfig.Broker)
	if err != nil {
		return nil, errors.Annotatef(err, "tele broker=%s", teleConfig.Broker)
	}
	switch u.Scheme {
	case "ssl", "tls", "mqtts":
	default:
		if teleConfig.TlsCaFile == "" {
			return nil, nil
		}
	}
	tlsconf := new(tls.Config)
	if teleConfig.TlsCaFile != "" {
		tlsconf.RootCAs = x509.NewCertPool()
		cabytes, err := os.ReadFile(teleConfig.TlsCaFile)
		if err != nil {
			return nil, errors.Annotatef(err, "TLS")
		}
		if !tlsconf.RootCAs.AppendCertsFromPEM(cabytes) {
			return nil, errors.NotValidf("TLS CA file=%s", teleConfig.TlsCaFile)
		}
	}
	return tlsconf, nil
}
