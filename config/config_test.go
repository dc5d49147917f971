package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fbugreporter/server/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "network:\n  port_for_reporters: 7001\n  port_for_clients: 7002\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.MaxTotalAttachmentSizeMB != 5 {
		t.Fatalf("MaxTotalAttachmentSizeMB = %d, want 5", cfg.Network.MaxTotalAttachmentSizeMB)
	}
	if cfg.Ban.MaxAllowedLoginAttempts != 3 {
		t.Fatalf("MaxAllowedLoginAttempts = %d, want 3", cfg.Ban.MaxAllowedLoginAttempts)
	}
	if cfg.Ban.BanDuration != 5*time.Minute {
		t.Fatalf("BanDuration = %v, want 5m", cfg.Ban.BanDuration)
	}
	if cfg.Storage.DatabasePath != "./database.db3" {
		t.Fatalf("DatabasePath = %q", cfg.Storage.DatabasePath)
	}
	if cfg.Network.ReporterBindAddress != "0.0.0.0" {
		t.Fatalf("ReporterBindAddress = %q", cfg.Network.ReporterBindAddress)
	}
}

func TestLoadRejectsIdenticalPorts(t *testing.T) {
	path := writeConfig(t, "network:\n  port_for_reporters: 7001\n  port_for_clients: 7001\n")

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for identical ports")
	}
}

func TestLoadHonorsExplicitBanDuration(t *testing.T) {
	path := writeConfig(t, "network:\n  port_for_reporters: 7001\n  port_for_clients: 7002\nban:\n  ban_time_duration_in_min: 15\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ban.BanDuration != 15*time.Minute {
		t.Fatalf("BanDuration = %v, want 15m", cfg.Ban.BanDuration)
	}
}
