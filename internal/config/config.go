// Package config loads and validates curator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Enrichment   EnrichmentConfig   `mapstructure:"enrichment"`
	Reachability ReachabilityConfig `mapstructure:"reachability"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int `mapstructure:"port"`
	ReadTimeoutSec    int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSec   int `mapstructure:"write_timeout_seconds"`
	RequestTimeoutSec int `mapstructure:"request_timeout_seconds"`
}

// StorageConfig sets the data directory the JSON documents live in.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// EnrichmentConfig governs the enrichment run and its collaborators.
type EnrichmentConfig struct {
	Workers       int    `mapstructure:"workers"`
	ClaimDelayMs  int    `mapstructure:"claim_delay_ms"`
	FetchTimeout  int    `mapstructure:"fetch_timeout_seconds"`
	MaxTextRunes  int    `mapstructure:"max_text_runes"`
	UserAgent     string `mapstructure:"user_agent"`
	SuggestAPIURL string `mapstructure:"suggest_api_url"`
}

// ReachabilityConfig governs the reachability run and its probe.
type ReachabilityConfig struct {
	Workers         int `mapstructure:"workers"`
	ClaimDelayMs    int `mapstructure:"claim_delay_ms"`
	ProbeTimeoutSec int `mapstructure:"probe_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("enrichment.workers", 5)
	v.SetDefault("enrichment.claim_delay_ms", 200)
	v.SetDefault("enrichment.fetch_timeout_seconds", 15)
	v.SetDefault("enrichment.max_text_runes", 6000)
	v.SetDefault("enrichment.user_agent", "curator/1.0")
	v.SetDefault("reachability.workers", 10)
	v.SetDefault("reachability.claim_delay_ms", 50)
	v.SetDefault("reachability.probe_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}
	if c.Enrichment.Workers <= 0 {
		return fmt.Errorf("enrichment.workers must be > 0")
	}
	if c.Enrichment.ClaimDelayMs < 0 {
		return fmt.Errorf("enrichment.claim_delay_ms must be >= 0")
	}
	if c.Reachability.Workers <= 0 {
		return fmt.Errorf("reachability.workers must be > 0")
	}
	if c.Reachability.ClaimDelayMs < 0 {
		return fmt.Errorf("reachability.claim_delay_ms must be >= 0")
	}
	if c.Reachability.ProbeTimeoutSec <= 0 {
		return fmt.Errorf("reachability.probe_timeout_seconds must be > 0")
	}
	return nil
}

// EnrichmentClaimDelay returns the enrichment throttle as a duration.
func (c Config) EnrichmentClaimDelay() time.Duration {
	return time.Duration(c.Enrichment.ClaimDelayMs) * time.Millisecond
}

// ReachabilityClaimDelay returns the reachability throttle as a duration.
func (c Config) ReachabilityClaimDelay() time.Duration {
	return time.Duration(c.Reachability.ClaimDelayMs) * time.Millisecond
}

// ProbeTimeout returns the reachability probe timeout as a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Reachability.ProbeTimeoutSec) * time.Second
}

// FetchTimeout returns the page fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Enrichment.FetchTimeout) * time.Second
}
