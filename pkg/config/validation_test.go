package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validServerConfig() *ServerConfig {
	cfg := &ServerConfig{
		Security: ServerSecurity{
			ServerCertPath: "server.crt",
			ServerKeyPath:  "server.key",
			CACertPath:     "ca.crt",
		},
		Libraries: []LibraryConfig{{ID: "lib1", Name: "Library One", Root: "/tmp/lib1"}},
		Clients:   []ClientRecordConfig{{ID: "deadbeef", DisplayName: "Alice", CertPath: "alice.crt"}},
	}
	ApplyServerDefaults(cfg)
	return cfg
}

func TestValidateServer_AcceptsValidConfig(t *testing.T) {
	require.NoError(t, ValidateServer(validServerConfig()))
}

func TestValidateServer_RejectsMissingSecurity(t *testing.T) {
	cfg := validServerConfig()
	cfg.Security.CACertPath = ""
	assert.Error(t, ValidateServer(cfg))
}

func TestValidateServer_RejectsS3LibraryWithoutBucket(t *testing.T) {
	cfg := validServerConfig()
	cfg.Libraries[0].Backend = "s3"
	cfg.Libraries[0].S3 = nil
	err := ValidateServer(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.bucket")
}

func TestValidateServer_RejectsDuplicateClientIDs(t *testing.T) {
	cfg := validServerConfig()
	cfg.Clients = append(cfg.Clients, ClientRecordConfig{ID: "deadbeef", DisplayName: "Bob", CertPath: "bob.crt"})
	err := ValidateServer(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate client id")
}

func TestValidateClient_RejectsMissingServerHost(t *testing.T) {
	cfg := &ClientTransferConfig{
		ServerPort:     9443,
		ClientCertPath: "c.crt",
		ClientKeyPath:  "c.key",
		CACertPath:     "ca.crt",
		LibraryID:      "lib1",
	}
	ApplyClientDefaults(cfg)
	assert.Error(t, ValidateClient(cfg))
}
