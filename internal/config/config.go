package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the daemon configuration file (~/.cmsync/config.toml).
type Config struct {
	Imap    ImapConfig    `toml:"imap"`
	Sync    SyncConfig    `toml:"sync"`
	Message MessageConfig `toml:"message"`
}

// ImapConfig holds the remote message store endpoint.
type ImapConfig struct {
	Address    string `toml:"address"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	TLS        bool   `toml:"tls"`
	RootFolder string `toml:"root_folder"`
}

// SyncConfig controls the periodic synchronization pass.
type SyncConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// MessageConfig controls which native message types are mirrored remotely.
// A type with push disabled is still tracked locally, just never uploaded.
type MessageConfig struct {
	PushSms bool `toml:"push_sms"`
	PushMms bool `toml:"push_mms"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Imap: ImapConfig{
			TLS:        true,
			RootFolder: "Default",
		},
		Sync: SyncConfig{
			IntervalSeconds: 300,
		},
		Message: MessageConfig{
			PushSms: true,
			PushMms: true,
		},
	}
}

// Interval returns the periodic sync interval as a duration.
func (c *Config) Interval() time.Duration {
	if c.Sync.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// Load reads config from the given path.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
