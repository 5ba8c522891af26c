package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeServerConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadServer_MinimalConfigGetsDefaults(t *testing.T) {
	path := writeServerConfig(t, `
security:
  server_cert_path: server.crt
  server_key_path: server.key
  ca_cert_path: ca.crt

libraries:
  - id: lib1
    name: "Library One"
    root: /tmp/lib1

clients:
  - id: deadbeef
    name: "Alice"
    cert_path: alice.crt
`)

	cfg, err := LoadServer(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "0.0.0.0", cfg.Network.Host)
	assert.Equal(t, 9443, cfg.Network.Port)
	assert.NotZero(t, cfg.Network.IdleTimeout)
	assert.Len(t, cfg.Libraries, 1)
	assert.Equal(t, "local", cfg.Libraries[0].Backend)
	require.NotNil(t, cfg.Libraries[0].SerializeWrites)
	assert.True(t, *cfg.Libraries[0].SerializeWrites)
}

func TestLoadServer_RejectsDuplicateLibraryIDs(t *testing.T) {
	path := writeServerConfig(t, `
security:
  server_cert_path: server.crt
  server_key_path: server.key
  ca_cert_path: ca.crt

libraries:
  - id: lib1
    name: "Library One"
    root: /tmp/lib1
  - id: lib1
    name: "Library Two"
    root: /tmp/lib2

clients:
  - id: deadbeef
    name: "Alice"
    cert_path: alice.crt
`)

	_, err := LoadServer(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate library id")
}

func TestLoadServer_RejectsUnknownAuthorizedClient(t *testing.T) {
	path := writeServerConfig(t, `
security:
  server_cert_path: server.crt
  server_key_path: server.key
  ca_cert_path: ca.crt

libraries:
  - id: lib1
    name: "Library One"
    root: /tmp/lib1
    authorized_clients: ["ghost"]

clients:
  - id: deadbeef
    name: "Alice"
    cert_path: alice.crt
`)

	_, err := LoadServer(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a configured client")
}

func TestLoadServer_RequiresAtLeastOneLibrary(t *testing.T) {
	path := writeServerConfig(t, `
security:
  server_cert_path: server.crt
  server_key_path: server.key
  ca_cert_path: ca.crt
`)

	_, err := LoadServer(path)
	require.Error(t, err)
}

func TestLoadClient_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	body := `
server_host: files.example.com
server_port: 9443
client_cert_path: client.crt
client_key_path: client.key
ca_cert_path: ca.crt
library_id: lib1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadClient(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(defaultChunkSize), cfg.ChunkSize)
	assert.Equal(t, defaultRetryAttempts, cfg.RetryAttempts)
	assert.NotZero(t, cfg.ConnectTimeout)
}
