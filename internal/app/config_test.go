package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	conf := `
device = "alice"

[ratchet]
skipped_key_capacity = 64

[session]
lease_timeout = "500ms"

[prekeys]
rotation_interval = "3d"
retention = "2w"

[storage]
backend = "sqlite"

[relay]
url = "http://relay.example:8080"
`
	path := filepath.Join(home, ConfigFilename)
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvHome, home)
	t.Setenv(EnvRelayURL, "http://override:9000")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Home != home || cfg.Device != "alice" {
		t.Fatalf("home/device = %q/%q", cfg.Home, cfg.Device)
	}
	if cfg.Ratchet.SkippedKeyCapacity != 64 || cfg.Ratchet.MaxSkip != DefaultConfig().Ratchet.MaxSkip {
		t.Fatalf("ratchet = %+v", cfg.Ratchet)
	}
	if got := cfg.SessionStoreConfig().LeaseTimeout; got != 500*time.Millisecond {
		t.Fatalf("lease timeout = %v", got)
	}
	p := cfg.PreKeyPolicy()
	if p.RotationInterval != 72*time.Hour || p.Retention != 14*24*time.Hour {
		t.Fatalf("policy = %+v", p)
	}
	if p.OneTimeBatch != 100 {
		t.Fatalf("one-time batch default lost: %d", p.OneTimeBatch)
	}
	if cfg.Relay.URL != "http://override:9000" {
		t.Fatalf("relay url = %q", cfg.Relay.URL)
	}
	if cfg.Storage.Backend != "sqlite" || !cfg.Storage.Seal {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := cfg.DeviceID(); err == nil {
		t.Fatal("expected an error without a device id")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	path := filepath.Join(home, "bad.conf")
	if err := os.WriteFile(path, []byte("[storage]\nbackend = \"tape\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown backend accepted")
	}
	if err := os.WriteFile(path, []byte("[session]\nlease_timeout = \"soon\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	cfg := DefaultConfig()
	cfg.Home = home
	cfg.Device = "bob"
	path := filepath.Join(home, ConfigFilename)
	if err := WriteConfig(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != cfg {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}
