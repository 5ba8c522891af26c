package config

import (
	"strings"
	"time"
)

// ApplyServerDefaults fills unspecified ServerConfig fields with sensible
// defaults (spec §6), mirroring the teacher's per-section applyXDefaults
// pattern: zero values are replaced, explicit values are preserved.
func ApplyServerDefaults(cfg *ServerConfig) {
	applyLoggingDefaults(&cfg.Logging)
	applyNetworkDefaults(&cfg.Network)

	trueVal := true
	for i := range cfg.Libraries {
		lib := &cfg.Libraries[i]
		if lib.Backend == "" {
			lib.Backend = "local"
		}
		if lib.IdleTimeout == 0 {
			lib.IdleTimeout = cfg.Network.IdleTimeout
		}
		if lib.SerializeWrites == nil {
			lib.SerializeWrites = &trueVal
		}
	}
}

// ApplyClientDefaults fills unspecified ClientTransferConfig fields.
func ApplyClientDefaults(cfg *ClientTransferConfig) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
}

const (
	defaultChunkSize      = 256 * 1024
	defaultRetryAttempts  = 3
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultConnectTimeout = 10 * time.Second
)

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyNetworkDefaults(cfg *NetworkConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 9443
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 64
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.DefaultChunkSize == 0 {
		cfg.DefaultChunkSize = defaultChunkSize
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReaperInterval == 0 {
		cfg.ReaperInterval = 30 * time.Second
	}
}
