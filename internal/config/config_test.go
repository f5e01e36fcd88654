package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  read_timeout_seconds: 5
  write_timeout_seconds: 20
  request_timeout_seconds: 40
storage:
  data_dir: /var/lib/curator
enrichment:
  workers: 3
  claim_delay_ms: 100
  fetch_timeout_seconds: 20
  max_text_runes: 4000
  user_agent: curator-test
reachability:
  workers: 8
  claim_delay_ms: 25
  probe_timeout_seconds: 5
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/var/lib/curator" {
		t.Fatalf("expected data dir override, got %q", cfg.Storage.DataDir)
	}
	if cfg.Enrichment.Workers != 3 || cfg.Enrichment.UserAgent != "curator-test" {
		t.Fatalf("expected enrichment overrides to apply: %+v", cfg.Enrichment)
	}
	if got := cfg.EnrichmentClaimDelay(); got != 100*time.Millisecond {
		t.Fatalf("expected enrichment claim delay 100ms, got %v", got)
	}
	if got := cfg.ReachabilityClaimDelay(); got != 25*time.Millisecond {
		t.Fatalf("expected reachability claim delay 25ms, got %v", got)
	}
	if got := cfg.ProbeTimeout(); got != 5*time.Second {
		t.Fatalf("expected probe timeout 5s, got %v", got)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected development logging disabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Enrichment.Workers != 5 || cfg.Enrichment.ClaimDelayMs != 200 {
		t.Fatalf("expected enrichment defaults 5 workers / 200ms, got %+v", cfg.Enrichment)
	}
	if cfg.Reachability.Workers != 10 || cfg.Reachability.ClaimDelayMs != 50 {
		t.Fatalf("expected reachability defaults 10 workers / 50ms, got %+v", cfg.Reachability)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:       ServerConfig{Port: 8080},
		Storage:      StorageConfig{DataDir: "./data"},
		Enrichment:   EnrichmentConfig{Workers: 5},
		Reachability: ReachabilityConfig{Workers: 10, ProbeTimeoutSec: 10},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "missing data dir",
			cfg: func() Config {
				c := base
				c.Storage.DataDir = "  "
				return c
			}(),
			want: "storage.data_dir",
		},
		{
			name: "invalid enrichment workers",
			cfg: func() Config {
				c := base
				c.Enrichment.Workers = 0
				return c
			}(),
			want: "enrichment.workers",
		},
		{
			name: "negative claim delay",
			cfg: func() Config {
				c := base
				c.Reachability.ClaimDelayMs = -1
				return c
			}(),
			want: "reachability.claim_delay_ms",
		},
		{
			name: "invalid probe timeout",
			cfg: func() Config {
				c := base
				c.Reachability.ProbeTimeoutSec = 0
				return c
			}(),
			want: "reachability.probe_timeout_seconds",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
