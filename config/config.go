// Package config loads and validates the server's YAML configuration file
// (§4.9/§6.5): unmarshal, apply defaults for zero-value fields, then
// validate, in the same shape as the ecosystem's other YAML agent configs.
package config

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Ban     BanConfig     `yaml:"ban"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NetworkConfig configures the two listeners and the attachment budget.
type NetworkConfig struct {
	ReporterBindAddress string `yaml:"reporter_bind_address"`
	ReporterPort        uint16 `yaml:"port_for_reporters"`
	OperatorBindAddress string `yaml:"operator_bind_address"`
	OperatorPort        uint16 `yaml:"port_for_clients"`

	MaxTotalAttachmentSizeMB uint64 `yaml:"max_total_attachment_size_in_mb"`
}

// BanConfig configures the C4 ban manager.
type BanConfig struct {
	MaxAllowedLoginAttempts uint32 `yaml:"max_allowed_login_attempts_until_ban"`
	// BanDurationInMin is the YAML-facing field, in minutes (matching
	// §6.5's ban_time_duration_in_min). BanDuration is derived from it
	// after unmarshaling and is what the rest of the server consumes.
	BanDurationInMin uint32        `yaml:"ban_time_duration_in_min"`
	BanDuration      time.Duration `yaml:"-"`
	BanListPath      string        `yaml:"ban_list_path"`
}

// StorageConfig configures the C8 store and logging destinations.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	LogFilePath  string `yaml:"log_file_path"`
}

// MetricsConfig configures the optional C10 Prometheus endpoint.
type MetricsConfig struct {
	// BindAddress, when non-empty, serves Prometheus metrics on this
	// address. Empty disables the endpoint.
	BindAddress string `yaml:"metrics_bind_address"`
}

const (
	defaultMaxTotalAttachmentSizeMB = 5
	defaultMaxAllowedLoginAttempts  = 3
	defaultBanDuration              = 5 * time.Minute
	defaultDatabasePath             = "./database.db3"
	defaultBanListPath              = "./banned_ips.ini"
	defaultLogFilePath              = "./server.log"
	minRandomPort                   = 7000
	maxRandomPort                   = 65534
)

// Load reads path, applies defaults, validates, and returns the config.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Network.ReporterBindAddress == "" {
		c.Network.ReporterBindAddress = "0.0.0.0"
	}
	if c.Network.OperatorBindAddress == "" {
		c.Network.OperatorBindAddress = "0.0.0.0"
	}
	if c.Network.ReporterPort == 0 {
		c.Network.ReporterPort = randomPort()
	}
	if c.Network.OperatorPort == 0 {
		c.Network.OperatorPort = randomDistinctPort(c.Network.ReporterPort)
	}
	if c.Network.MaxTotalAttachmentSizeMB == 0 {
		c.Network.MaxTotalAttachmentSizeMB = defaultMaxTotalAttachmentSizeMB
	}

	if c.Ban.MaxAllowedLoginAttempts == 0 {
		c.Ban.MaxAllowedLoginAttempts = defaultMaxAllowedLoginAttempts
	}
	if c.Ban.BanDurationInMin == 0 {
		c.Ban.BanDuration = defaultBanDuration
	} else {
		c.Ban.BanDuration = time.Duration(c.Ban.BanDurationInMin) * time.Minute
	}
	if c.Ban.BanListPath == "" {
		c.Ban.BanListPath = defaultBanListPath
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = defaultDatabasePath
	}
	if c.Storage.LogFilePath == "" {
		c.Storage.LogFilePath = defaultLogFilePath
	}
}

func (c *Config) validate() error {
	if c.Network.ReporterPort == c.Network.OperatorPort {
		return fmt.Errorf("network.port_for_reporters and network.port_for_clients must differ")
	}
	if c.Ban.MaxAllowedLoginAttempts == 0 {
		return fmt.Errorf("ban.max_allowed_login_attempts_until_ban must be positive")
	}
	if c.Ban.BanDuration <= 0 {
		return fmt.Errorf("ban.ban_time_duration_in_min must be positive")
	}
	if c.Network.MaxTotalAttachmentSizeMB == 0 {
		return fmt.Errorf("network.max_total_attachment_size_in_mb must be positive")
	}
	return nil
}

func randomPort() uint16 {
	return uint16(minRandomPort + rand.Intn(maxRandomPort-minRandomPort+1))
}

func randomDistinctPort(taken uint16) uint16 {
	for {
		p := randomPort()
		if p != taken {
			return p
		}
	}
}
