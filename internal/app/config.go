package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	strduration "github.com/xhit/go-str2duration/v2"

	"unhidra/internal/domain"
	"unhidra/internal/protocol/ratchet"
	"unhidra/internal/services/prekey"
	"unhidra/internal/store"
)

// Environment variables that override the config file.
const (
	EnvHome       = "UNHIDRA_HOME"
	EnvRelayURL   = "UNHIDRA_RELAY_URL"
	EnvDebugLevel = "UNHIDRA_DEBUGLEVEL"
	EnvDevice     = "UNHIDRA_DEVICE"
)

// ConfigFilename is the config file name inside the home directory.
const ConfigFilename = "unhidra.conf"

// Duration is a time.Duration written human-style in the config file, for
// example "7d" or "36h".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := strduration.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the on-disk configuration of the CLI and the relay.
type Config struct {
	// Home holds the keystore, pre-keys, sessions and logs.
	Home string `toml:"home"`
	// Device is this installation's device id.
	Device string `toml:"device"`

	Ratchet struct {
		SkippedKeyCapacity int    `toml:"skipped_key_capacity"`
		MaxSkip            uint32 `toml:"max_skip"`
		RetiredKeyLimit    int    `toml:"retired_key_limit"`
	} `toml:"ratchet"`

	Session struct {
		LeaseTimeout Duration `toml:"lease_timeout"`
	} `toml:"session"`

	PreKeys struct {
		RotationInterval Duration `toml:"rotation_interval"`
		Retention        Duration `toml:"retention"`
		OneTimeBatch     int      `toml:"one_time_batch"`
		LowWatermark     int      `toml:"low_watermark"`
	} `toml:"prekeys"`

	Storage struct {
		Backend string `toml:"backend"`
		Path    string `toml:"path"`
		// Seal encrypts session records under a key derived from the
		// identity passphrase.
		Seal bool `toml:"seal"`
	} `toml:"storage"`

	Log struct {
		DebugLevel string `toml:"debuglevel"`
		LogFile    string `toml:"logfile"`
	} `toml:"log"`

	Relay struct {
		URL           string `toml:"url"`
		Listen        string `toml:"listen"`
		MetricsListen string `toml:"metrics_listen"`
		MaxQueue      int    `toml:"max_queue"`
	} `toml:"relay"`
}

// DefaultHome returns ~/.unhidra, or ./.unhidra when the home directory is
// unknown.
func DefaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".unhidra")
	}
	return ".unhidra"
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	var c Config
	c.Home = DefaultHome()

	rc := ratchet.DefaultConfig()
	c.Ratchet.SkippedKeyCapacity = rc.SkippedKeyCapacity
	c.Ratchet.MaxSkip = rc.MaxSkip
	c.Ratchet.RetiredKeyLimit = rc.RetiredKeyLimit

	c.Session.LeaseTimeout = Duration(store.DefaultLeaseTimeout)

	p := prekey.DefaultPolicy()
	c.PreKeys.RotationInterval = Duration(p.RotationInterval)
	c.PreKeys.Retention = Duration(p.Retention)
	c.PreKeys.OneTimeBatch = p.OneTimeBatch
	c.PreKeys.LowWatermark = p.LowWatermark

	c.Storage.Backend = string(store.BackendFile)
	c.Storage.Seal = true

	c.Log.DebugLevel = "info"

	c.Relay.URL = "http://127.0.0.1:8080"
	c.Relay.Listen = "127.0.0.1:8080"
	c.Relay.MaxQueue = 10000
	return c
}

// LoadConfig builds the configuration from defaults, an optional .env file
// in the working directory, the config file and the environment, in that
// order. An empty path selects <home>/unhidra.conf; a missing file is not
// an error.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}
	if path == "" {
		path = filepath.Join(cfg.Home, ConfigFilename)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	// The environment wins over the file.
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv(EnvRelayURL); v != "" {
		cfg.Relay.URL = v
	}
	if v := os.Getenv(EnvDebugLevel); v != "" {
		cfg.Log.DebugLevel = v
	}
	if v := os.Getenv(EnvDevice); v != "" {
		cfg.Device = v
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail much later.
func (c Config) Validate() error {
	switch store.Backend(c.Storage.Backend) {
	case store.BackendFile, store.BackendSQLite, store.BackendLevelDB, store.BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Ratchet.SkippedKeyCapacity < 0 {
		return errors.New("ratchet.skipped_key_capacity must not be negative")
	}
	if c.Ratchet.RetiredKeyLimit < 0 {
		return errors.New("ratchet.retired_key_limit must not be negative")
	}
	if c.Session.LeaseTimeout < 0 {
		return errors.New("session.lease_timeout must not be negative")
	}
	if c.PreKeys.RotationInterval <= 0 || c.PreKeys.Retention < 0 {
		return errors.New("prekeys.rotation_interval must be positive and prekeys.retention not negative")
	}
	if c.PreKeys.OneTimeBatch < 0 || c.PreKeys.LowWatermark < 0 {
		return errors.New("prekeys.one_time_batch and prekeys.low_watermark must not be negative")
	}
	return nil
}

// DeviceID returns the configured device id.
func (c Config) DeviceID() (domain.DeviceID, error) {
	if c.Device == "" {
		return "", fmt.Errorf("no device id configured; set device in %s or %s",
			ConfigFilename, EnvDevice)
	}
	return domain.DeviceID(c.Device), nil
}

// StoragePath returns the session storage directory.
func (c Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return c.Home
}

// RatchetConfig returns the ratchet settings.
func (c Config) RatchetConfig() ratchet.Config {
	return ratchet.Config{
		SkippedKeyCapacity: c.Ratchet.SkippedKeyCapacity,
		MaxSkip:            c.Ratchet.MaxSkip,
		RetiredKeyLimit:    c.Ratchet.RetiredKeyLimit,
	}
}

// SessionStoreConfig returns the session store settings.
func (c Config) SessionStoreConfig() store.SessionStoreConfig {
	return store.SessionStoreConfig{LeaseTimeout: c.Session.LeaseTimeout.Std()}
}

// PreKeyPolicy returns the pre-key rotation policy.
func (c Config) PreKeyPolicy() prekey.Policy {
	return prekey.Policy{
		RotationInterval: c.PreKeys.RotationInterval.Std(),
		Retention:        c.PreKeys.Retention.Std(),
		OneTimeBatch:     c.PreKeys.OneTimeBatch,
		LowWatermark:     c.PreKeys.LowWatermark,
	}
}

// WriteConfig writes c to path as TOML, creating parent directories.
func WriteConfig(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
