// Package auth implements certificate-based client authentication
// (spec §4.3). The TLS layer already verified the peer certificate chain
// against the configured CA during the handshake (see internal/server); this
// package maps the resulting leaf certificate onto a client identity and
// rejects revoked or unknown clients.
//
// Client id derivation (spec §9 Open Question, resolved): the SHA-256
// fingerprint of the leaf certificate's DER encoding, hex-encoded. A
// fingerprint is deterministic and doesn't depend on trusting
// client-controlled Subject DN formatting.
package auth

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"sync"

	"github.com/fileharbor/fileharbor/internal/ferrors"
)

// ClientRecord is the server's record of one authorized client (spec §3
// "Client record").
type ClientRecord struct {
	ID          string
	DisplayName string
	Revoked     bool
}

// Fingerprint computes the client id for a leaf certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Authenticator validates peer certificates and resolves client identities.
// The client record set and CRL are loaded once at startup and not changed
// afterwards (spec §5 "Shared-resource policy"); reads take the read lock.
type Authenticator struct {
	mu      sync.RWMutex
	clients map[string]*ClientRecord
	crl     map[string]bool
}

// New builds an Authenticator from a validated client set and CRL fingerprint
// list. Both are supplied by the configuration loader (an external
// collaborator per spec §1); this constructor performs no I/O itself.
func New(clients map[string]*ClientRecord, crl []string) *Authenticator {
	crlSet := make(map[string]bool, len(crl))
	for _, fp := range crl {
		crlSet[fp] = true
	}
	return &Authenticator{
		clients: clients,
		crl:     crlSet,
	}
}

// Authenticate resolves the client id for a verified peer certificate chain
// (spec §4.3). leaf is the peer's own certificate, already chain-verified by
// tls.Config.ClientAuth = RequireAndVerifyClientCert at the transport layer.
func (a *Authenticator) Authenticate(leaf *x509.Certificate) (string, error) {
	if leaf == nil {
		return "", ferrors.New(ferrors.KindAuthentication, ferrors.CodeUnauthorized, "no client certificate presented")
	}

	fingerprint := Fingerprint(leaf)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.crl[fingerprint] {
		return "", ferrors.New(ferrors.KindAuthentication, ferrors.CodeUnauthorized, "certificate is revoked")
	}

	record, ok := a.clients[fingerprint]
	if !ok {
		return "", ferrors.New(ferrors.KindAuthentication, ferrors.CodeUnauthorized, "unknown client certificate")
	}
	if record.Revoked {
		return "", ferrors.New(ferrors.KindAuthentication, ferrors.CodeUnauthorized, "client record is revoked")
	}

	return record.ID, nil
}

// ClientName returns the display name for a previously authenticated client
// id, used for audit logging. Returns the id itself if unknown.
func (a *Authenticator) ClientName(clientID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if rec, ok := a.clients[clientID]; ok {
		return rec.DisplayName
	}
	return clientID
}
