package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/fileharbor/fileharbor/pkg/config"
)

// BuildTLSConfig constructs the mutual-TLS configuration the acceptor
// demands (spec §4.3: "the server demands and verifies a client
// certificate against the configured CA"). Certificate *issuance* is out of
// scope (spec §1); this only loads and wires already-issued PEM material.
func BuildTLSConfig(sec config.ServerSecurity) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(sec.ServerCertPath, sec.ServerKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	caPEM, err := os.ReadFile(sec.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid certificates found in %s", sec.CACertPath)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
