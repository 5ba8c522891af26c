package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyServerDefaults_LibraryInheritsNetworkIdleTimeout(t *testing.T) {
	cfg := &ServerConfig{
		Libraries: []LibraryConfig{{ID: "a", Name: "A", Root: "/tmp/a"}},
	}
	ApplyServerDefaults(cfg)

	assert.Equal(t, cfg.Network.IdleTimeout, cfg.Libraries[0].IdleTimeout)
}

func TestApplyServerDefaults_DoesNotOverrideExplicitValues(t *testing.T) {
	disabled := false
	cfg := &ServerConfig{
		Libraries: []LibraryConfig{{
			ID:              "a",
			Name:            "A",
			Root:            "/tmp/a",
			Backend:         "s3",
			SerializeWrites: &disabled,
		}},
	}
	ApplyServerDefaults(cfg)

	assert.Equal(t, "s3", cfg.Libraries[0].Backend)
	require.NotNil(t, cfg.Libraries[0].SerializeWrites)
	assert.False(t, *cfg.Libraries[0].SerializeWrites)
}

func TestApplyLoggingDefaults_NormalizesLevelCase(t *testing.T) {
	cfg := &LoggingConfig{Level: "debug"}
	applyLoggingDefaults(cfg)
	assert.Equal(t, "DEBUG", cfg.Level)
}

func TestApplyClientDefaults(t *testing.T) {
	cfg := &ClientTransferConfig{}
	ApplyClientDefaults(cfg)

	assert.Equal(t, uint32(defaultChunkSize), cfg.ChunkSize)
	assert.Equal(t, defaultRetryAttempts, cfg.RetryAttempts)
	assert.Equal(t, defaultRetryBackoff, cfg.RetryBackoff)
	assert.Equal(t, defaultConnectTimeout, cfg.ConnectTimeout)
}
