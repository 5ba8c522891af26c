// Package config loads and validates FileHarbor's server and client
// configuration documents (spec §6 "Configuration (server)"/"Configuration
// (client)"). It is adapted directly from the teacher's package of the same
// name: viper for layered loading (CLI flag path → environment variables →
// YAML file → defaults), mapstructure tags for decoding, and
// go-playground/validator struct-tag validation plus a custom-rules pass
// for invariants tags can't express.
//
// The core treats configuration as an external collaborator's output (spec
// §1): Load produces a validated, immutable structure that is handed to the
// library manager, authenticator, and session registry once at startup and
// never consulted again.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the complete FileHarbor server configuration (spec §6).
type ServerConfig struct {
	Logging   LoggingConfig        `mapstructure:"logging" yaml:"logging"`
	Network   NetworkConfig        `mapstructure:"network" yaml:"network"`
	Security  ServerSecurity       `mapstructure:"security" yaml:"security"`
	Libraries []LibraryConfig      `mapstructure:"libraries" yaml:"libraries" validate:"dive"`
	Clients   []ClientRecordConfig `mapstructure:"clients" yaml:"clients" validate:"dive"`
}

// LoggingConfig controls logging behavior (shared shape with the client).
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// NetworkConfig holds the network section of spec §6: "host, port, worker
// count, max connections, idle timeout, default chunk size".
type NetworkConfig struct {
	Host             string        `mapstructure:"host" yaml:"host" validate:"required"`
	Port             int           `mapstructure:"port" yaml:"port" validate:"required,gt=0,lte=65535"`
	WorkerCount      int           `mapstructure:"worker_count" yaml:"worker_count" validate:"gte=0"`
	MaxConnections   int           `mapstructure:"max_connections" yaml:"max_connections" validate:"gte=0"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"required,gt=0"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"required,gt=0"`
	DefaultChunkSize uint32        `mapstructure:"default_chunk_size" yaml:"default_chunk_size" validate:"required,gt=0"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
	ReaperInterval   time.Duration `mapstructure:"reaper_interval" yaml:"reaper_interval" validate:"required,gt=0"`
	AdminAddr        string        `mapstructure:"admin_addr" yaml:"admin_addr,omitempty"`
}

// ServerSecurity holds the security section of spec §6: "CA certificate,
// CA private key for signing — not used by the core, revocation list".
// CAKeyPath is accepted and passed through only for the external
// certificate-issuance tooling (spec §1 Out of scope); the core never reads
// a CA private key.
type ServerSecurity struct {
	ServerCertPath      string   `mapstructure:"server_cert_path" yaml:"server_cert_path" validate:"required"`
	ServerKeyPath       string   `mapstructure:"server_key_path" yaml:"server_key_path" validate:"required"`
	CACertPath          string   `mapstructure:"ca_cert_path" yaml:"ca_cert_path" validate:"required"`
	CAKeyPath           string   `mapstructure:"ca_key_path" yaml:"ca_key_path,omitempty"`
	CRLPath             string   `mapstructure:"crl_path" yaml:"crl_path,omitempty"`
	RevokedFingerprints []string `mapstructure:"revoked_fingerprints" yaml:"revoked_fingerprints,omitempty"`
}

// LibraryConfig is one library definition (spec §3 "Library", §6
// "libraries (id → {name, root, authorized client ids, rate cap, idle
// timeout})").
type LibraryConfig struct {
	ID                 string           `mapstructure:"id" yaml:"id" validate:"required"`
	Name               string           `mapstructure:"name" yaml:"name" validate:"required"`
	Root               string           `mapstructure:"root" yaml:"root" validate:"required"`
	AuthorizedClients  []string         `mapstructure:"authorized_clients" yaml:"authorized_clients,omitempty"`
	RateCapBytesPerSec uint64           `mapstructure:"rate_cap_bytes_per_sec" yaml:"rate_cap_bytes_per_sec,omitempty"`
	IdleTimeout        time.Duration    `mapstructure:"idle_timeout" yaml:"idle_timeout,omitempty"`
	Backend            string           `mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=local s3"`
	S3                 *S3BackendConfig `mapstructure:"s3" yaml:"s3,omitempty"`

	// SerializeWrites enables the per-library write mutex (spec §9 Open
	// Question, decided in SPEC_FULL §12: default on).
	SerializeWrites *bool `mapstructure:"serialize_writes" yaml:"serialize_writes,omitempty"`
}

// S3BackendConfig configures the S3-backed library alternative (spec §11
// domain stack: "a library whose root is an S3 bucket/prefix instead of a
// local directory").
type S3BackendConfig struct {
	Bucket   string `mapstructure:"bucket" yaml:"bucket" validate:"required_with=Region"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region   string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// ClientRecordConfig is one authorized client record (spec §3 "Client
// record", §6 "clients (id → {name, certificate, revoked flag})"). ID is
// the SHA-256 certificate fingerprint (spec §9 decision, §12); CertPath is
// read once at startup to check that fingerprint, and the authenticator
// keeps only the fingerprint-keyed record, so no file is read per connection.
type ClientRecordConfig struct {
	ID          string `mapstructure:"id" yaml:"id" validate:"required"`
	DisplayName string `mapstructure:"name" yaml:"name" validate:"required"`
	CertPath    string `mapstructure:"cert_path" yaml:"cert_path" validate:"required"`
	Revoked     bool   `mapstructure:"revoked" yaml:"revoked"`
}

// ClientTransferConfig is the client-side configuration document (spec §6
// "Configuration (client)"): server host/port, client certificate and
// private key, server CA certificate, library id, transfer chunk size,
// retry attempts, connect timeout.
type ClientTransferConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`

	ServerHost string `mapstructure:"server_host" validate:"required"`
	ServerPort int    `mapstructure:"server_port" validate:"required,gt=0,lte=65535"`

	ClientCertPath string `mapstructure:"client_cert_path" validate:"required"`
	ClientKeyPath  string `mapstructure:"client_key_path" validate:"required"`
	CACertPath     string `mapstructure:"ca_cert_path" validate:"required"`

	LibraryID string `mapstructure:"library_id" validate:"required"`

	ChunkSize      uint32        `mapstructure:"chunk_size" validate:"required,gt=0"`
	RetryAttempts  int           `mapstructure:"retry_attempts" validate:"gte=0"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"required,gt=0"`
}

// LoadServer loads, defaults, and validates a ServerConfig (spec §6,
// precedence: "1. CLI flags 2. FILEHARBOR_* environment variables 3. YAML
// file 4. defaults" — matching the teacher's Load pattern).
func LoadServer(configPath string) (*ServerConfig, error) {
	v := viper.New()
	setupViper(v, configPath, "fileharbor")

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server config: %w", err)
	}

	ApplyServerDefaults(&cfg)

	if err := ValidateServer(&cfg); err != nil {
		return nil, fmt.Errorf("server configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadClient loads, defaults, and validates a ClientTransferConfig.
func LoadClient(configPath string) (*ClientTransferConfig, error) {
	v := viper.New()
	setupViper(v, configPath, "fileharbor_client")

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg ClientTransferConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client config: %w", err)
	}

	ApplyClientDefaults(&cfg)

	if err := ValidateClient(&cfg); err != nil {
		return nil, fmt.Errorf("client configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable support and config file search,
// matching the teacher's SetEnvKeyReplacer trick (DittoFS used "DITTOFS_";
// FileHarbor uses envPrefix, distinguishing the server from the client so
// both can be configured from environment variables in the same shell).
func setupViper(v *viper.Viper, configPath, envPrefix string) {
	v.SetEnvPrefix(strings.ToUpper(envPrefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME,
// ~/.config, or "." as a last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fileharbor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "fileharbor")
}

// GetDefaultConfigPath returns the default server configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
