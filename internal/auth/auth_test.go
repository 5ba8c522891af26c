package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, cn string) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestAuthenticateAcceptsKnownClient(t *testing.T) {
	cert := selfSignedCert(t, "client-one")
	fp := Fingerprint(cert)

	a := New(map[string]*ClientRecord{
		fp: {ID: fp, DisplayName: "client-one"},
	}, nil)

	id, err := a.Authenticate(cert)
	require.NoError(t, err)
	require.Equal(t, fp, id)
}

func TestAuthenticateRejectsUnknownClient(t *testing.T) {
	cert := selfSignedCert(t, "stranger")
	a := New(map[string]*ClientRecord{}, nil)

	_, err := a.Authenticate(cert)
	require.Error(t, err)
	require.True(t, ferrors.IsKind(err, ferrors.KindAuthentication))
}

func TestAuthenticateRejectsRevokedRecord(t *testing.T) {
	cert := selfSignedCert(t, "client-two")
	fp := Fingerprint(cert)

	a := New(map[string]*ClientRecord{
		fp: {ID: fp, DisplayName: "client-two", Revoked: true},
	}, nil)

	_, err := a.Authenticate(cert)
	require.Error(t, err)
}

func TestAuthenticateRejectsCRLListedFingerprint(t *testing.T) {
	cert := selfSignedCert(t, "client-three")
	fp := Fingerprint(cert)

	a := New(map[string]*ClientRecord{
		fp: {ID: fp, DisplayName: "client-three"},
	}, []string{fp})

	_, err := a.Authenticate(cert)
	require.Error(t, err)
}

func TestAuthenticateRejectsNilCertificate(t *testing.T) {
	a := New(map[string]*ClientRecord{}, nil)
	_, err := a.Authenticate(nil)
	require.Error(t, err)
}
