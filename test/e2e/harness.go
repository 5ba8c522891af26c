// Package e2e spins up a real FileHarbor server (internal/server) behind a
// real TLS listener on loopback and drives it with the real client engine
// (pkg/client), replacing the teacher's NFS-mount end-to-end harness with a
// handshake/put/get flow (SPEC_FULL §10.4).
package e2e

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fileharbor/fileharbor/internal/auth"
	"github.com/fileharbor/fileharbor/internal/fileops"
	"github.com/fileharbor/fileharbor/internal/fileops/localfs"
	"github.com/fileharbor/fileharbor/internal/library"
	"github.com/fileharbor/fileharbor/internal/server"
	"github.com/fileharbor/fileharbor/pkg/config"
)

// LibrarySpec configures one library in the test harness. AuthorizedIDs
// holds client *names* (matching a ClientSpec.Name), resolved to
// certificate fingerprints once the corresponding certs are issued.
type LibrarySpec struct {
	ID              string
	Root            string // defaults to a fresh t.TempDir() if empty
	AuthorizedIDs   []string
	RateCapBytes    uint64
	SerializeWrites bool
}

// ClientSpec configures one client certificate issued for the harness.
type ClientSpec struct {
	Name    string
	Revoked bool
}

type issuedCert struct{ certPath, keyPath string }

// Harness owns a running FileHarbor server and the material needed to
// build clients against it.
type Harness struct {
	t       *testing.T
	Server  *server.Server
	Addr    string
	CA      *testCA
	certDir string
	caPath  string

	clientCerts map[string]issuedCert
}

// NewHarness builds and starts a server with the given libraries and
// client certificates, returning once the TLS listener is accepting
// connections. t.Cleanup stops the server.
func NewHarness(t *testing.T, libSpecs []LibrarySpec, clientSpecs []ClientSpec) *Harness {
	t.Helper()

	ca := newTestCA(t)
	certDir := t.TempDir()
	caPath := filepath.Join(certDir, "ca.crt")
	require.NoError(t, os.WriteFile(caPath, ca.certPEM, 0o644))

	serverCertPath, serverKeyPath := ca.issue(t, certDir, "server", 100)

	clients := make(map[string]*auth.ClientRecord)
	clientCerts := make(map[string]issuedCert)
	fingerprintByName := make(map[string]string, len(clientSpecs))
	var serial int64 = 200
	for _, spec := range clientSpecs {
		serial++
		certPath, keyPath := ca.issue(t, certDir, spec.Name, serial)
		fp := fingerprintOf(t, certPath)
		clients[fp] = &auth.ClientRecord{ID: fp, DisplayName: spec.Name, Revoked: spec.Revoked}
		clientCerts[spec.Name] = issuedCert{certPath, keyPath}
		fingerprintByName[spec.Name] = fp
	}

	authenticator := auth.New(clients, nil)

	libs := make([]*library.Library, 0, len(libSpecs))
	backends := make(map[string]fileops.Backend, len(libSpecs))
	for _, spec := range libSpecs {
		root := spec.Root
		if root == "" {
			root = t.TempDir()
		}
		authorized := make(map[string]bool, len(spec.AuthorizedIDs))
		for _, name := range spec.AuthorizedIDs {
			fp, ok := fingerprintByName[name]
			require.True(t, ok, "library %q authorizes unknown client %q", spec.ID, name)
			authorized[fp] = true
		}
		libs = append(libs, &library.Library{
			ID:              spec.ID,
			Name:            spec.ID,
			Root:            root,
			AuthorizedIDs:   authorized,
			RateCapBytes:    spec.RateCapBytes,
			IdleTimeout:     time.Minute,
			SerializeWrites: spec.SerializeWrites,
		})
		backends[spec.ID] = localfs.New()
	}
	libManager, err := library.NewManager(libs)
	require.NoError(t, err)

	tlsConfig, err := server.BuildTLSConfig(config.ServerSecurity{
		ServerCertPath: serverCertPath,
		ServerKeyPath:  serverKeyPath,
		CACertPath:     caPath,
	})
	require.NoError(t, err)

	srv := server.New(tlsConfig, libManager, authenticator, backends,
		5*time.Second, 5*time.Second, 256*1024, 8, 64)

	addr := reserveLoopbackAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		srv.Stop()
		cancel()
	})

	go func() { _ = srv.Serve(ctx, addr, 50*time.Millisecond) }()
	waitForListener(t, addr)

	return &Harness{
		t:           t,
		Server:      srv,
		Addr:        addr,
		CA:          ca,
		certDir:     certDir,
		caPath:      caPath,
		clientCerts: clientCerts,
	}
}

// ClientConfig builds a ClientTransferConfig for the named client, bound
// to libraryID, pointed at this harness's server.
func (h *Harness) ClientConfig(clientName, libraryID string) *config.ClientTransferConfig {
	h.t.Helper()
	creds, ok := h.clientCerts[clientName]
	require.True(h.t, ok, "no certificate issued for client %q", clientName)

	host, port := splitHostPort(h.t, h.Addr)
	cfg := &config.ClientTransferConfig{
		ServerHost:     host,
		ServerPort:     port,
		ClientCertPath: creds.certPath,
		ClientKeyPath:  creds.keyPath,
		CACertPath:     h.caPath,
		LibraryID:      libraryID,
		ChunkSize:      64 * 1024,
		RetryAttempts:  3,
		RetryBackoff:   10 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
	}
	config.ApplyClientDefaults(cfg)
	return cfg
}

// reserveLoopbackAddr finds an unused loopback port by briefly binding to
// it, then releasing it for server.Serve to rebind.
func reserveLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never started listening on %s", addr)
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
