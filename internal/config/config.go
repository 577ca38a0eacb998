package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for lmssync.
type Config struct {
	DeviceID   string           `toml:"device_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	API        APIConfig        `toml:"api"`
	Identity   IdentityConfig   `toml:"identity"`
	Store      StoreConfig      `toml:"store"`
	Database   DatabaseConfig   `toml:"database"`
	Encryption EncryptionConfig `toml:"encryption"`
	Sync       SyncConfig       `toml:"sync"`
	Status     StatusConfig     `toml:"status"`
}

// APIConfig points at the remote LMS REST API.
type APIConfig struct {
	BaseURL        string `toml:"base_url" validate:"required,url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=0"`
}

// IdentityConfig selects how the current actor is determined.
// When ActorID is zero the actor is read from the API token claims.
type IdentityConfig struct {
	ActorID int64 `toml:"actor_id,omitempty"`
}

// StoreConfig represents configuration for the key-value store behind the entity cache.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type      string `toml:"type"` // "memory", "filesystem", "sqlite" or "s3"
	Encrypted bool   `toml:"encrypted"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`
}

// DatabaseConfig represents configuration for the relational store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// EncryptionConfig holds paths to the age key pair used for at-rest encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// SyncConfig tunes the sync orchestrator and the offline queue.
type SyncConfig struct {
	IntervalSeconds     int    `toml:"interval_seconds"`      // resync period while foregrounded, defaults to 25
	StalledAfter        int    `toml:"stalled_after"`         // failed attempts before a scan counts as stalled, defaults to 5
	ConnectivityURL     string `toml:"connectivity_url"`      // websocket endpoint used as the connectivity signal
	PingIntervalSeconds int    `toml:"ping_interval_seconds"` // defaults to 10
}

// StatusConfig configures the daemon's local status endpoints.
type StatusConfig struct {
	Listen string `toml:"listen,omitempty"` // empty disables the status server
}

// Defaults applied when a field is left at its zero value.
const (
	DefaultSyncInterval = 25 * time.Second
	DefaultStalledAfter = 5
	DefaultPingInterval = 10 * time.Second
	DefaultAPITimeout   = 30 * time.Second
)

// Interval returns the resync period.
func (c SyncConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return DefaultSyncInterval
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// PingInterval returns the connectivity heartbeat period.
func (c SyncConfig) PingInterval() time.Duration {
	if c.PingIntervalSeconds <= 0 {
		return DefaultPingInterval
	}
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// StalledThreshold returns the attempt count after which a scan is reported as stalled.
func (c SyncConfig) StalledThreshold() int {
	if c.StalledAfter <= 0 {
		return DefaultStalledAfter
	}
	return c.StalledAfter
}

// Timeout returns the HTTP timeout for API calls.
func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultAPITimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Store: StoreConfig{
			Type: "sqlite",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "lmssync.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "lmssync.key"),
		},
		Sync: SyncConfig{
			IntervalSeconds:     int(DefaultSyncInterval / time.Second),
			StalledAfter:        DefaultStalledAfter,
			PingIntervalSeconds: int(DefaultPingInterval / time.Second),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The API token lives in this file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
