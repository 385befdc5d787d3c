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
pipeline:
  concurrency: 5
  work_dir: /tmp/courier-work
fetch:
  binary: /usr/local/bin/yt-dlp
  retries: 4
  retry_delay_seconds: 2
transform:
  timeout_seconds: 120
  target_size: 10485760
delivery:
  size_threshold: 1048576
  chunk_size: 1048576
  max_artifact_size: 10485760
telegram:
  token: bot-token
store:
  provider: memory
sweep:
  schedule: "@every 30m"
  retention_hours: 12
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
	if cfg.Pipeline.Concurrency != 5 || cfg.Pipeline.WorkDir != "/tmp/courier-work" {
		t.Fatalf("expected pipeline overrides to apply: %+v", cfg.Pipeline)
	}
	if cfg.Fetch.Binary != "/usr/local/bin/yt-dlp" || cfg.Fetch.Retries != 4 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Delivery.ChunkSize != 1<<20 {
		t.Fatalf("expected chunk size override, got %d", cfg.Delivery.ChunkSize)
	}
	if cfg.Store.Provider != "memory" {
		t.Fatalf("expected memory store provider, got %q", cfg.Store.Provider)
	}
	if cfg.Telegram.Token != "bot-token" {
		t.Fatalf("expected telegram token to be loaded")
	}
	if got := cfg.TransformTimeout(); got != 120*time.Second {
		t.Fatalf("expected transform timeout 120s, got %v", got)
	}
	if got := cfg.Retention(); got != 12*time.Hour {
		t.Fatalf("expected retention 12h, got %v", got)
	}
	// Defaults still fill in untouched sections.
	if cfg.Fetch.MaxFileSize != int64(2)<<30 {
		t.Fatalf("expected default max file size, got %d", cfg.Fetch.MaxFileSize)
	}
	if cfg.Delivery.SendRetries != 3 {
		t.Fatalf("expected default send retries, got %d", cfg.Delivery.SendRetries)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.Concurrency != 3 {
		t.Fatalf("expected default concurrency 3, got %d", cfg.Pipeline.Concurrency)
	}
	if cfg.Store.Provider != "sqlite" {
		t.Fatalf("expected default sqlite provider, got %q", cfg.Store.Provider)
	}
	if cfg.Sweep.Schedule != "@every 1h" {
		t.Fatalf("expected hourly sweep default, got %q", cfg.Sweep.Schedule)
	}
	if cfg.Sweep.Budget != int64(500)<<20 {
		t.Fatalf("expected 500MB sweep budget default, got %d", cfg.Sweep.Budget)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Pipeline: PipelineConfig{Concurrency: 3, WorkDir: "downloads"},
		Transform: TransformConfig{
			TimeoutSeconds: 300,
		},
		Delivery: DeliveryConfig{
			SizeThreshold:   50 << 20,
			ChunkSize:       50 << 20,
			MaxArtifactSize: 2 << 30,
		},
		Store: StoreConfig{Provider: "memory"},
		Sweep: SweepConfig{RetentionHour: 24},
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
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Pipeline.Concurrency = 0
				return c
			}(),
			want: "pipeline.concurrency",
		},
		{
			name: "missing work dir",
			cfg: func() Config {
				c := base
				c.Pipeline.WorkDir = ""
				return c
			}(),
			want: "pipeline.work_dir",
		},
		{
			name: "invalid transform timeout",
			cfg: func() Config {
				c := base
				c.Transform.TimeoutSeconds = 0
				return c
			}(),
			want: "transform.timeout_seconds",
		},
		{
			name: "ceiling below threshold",
			cfg: func() Config {
				c := base
				c.Delivery.MaxArtifactSize = 1
				return c
			}(),
			want: "delivery.max_artifact_size",
		},
		{
			name: "postgres without dsn",
			cfg: func() Config {
				c := base
				c.Store.Provider = "postgres"
				return c
			}(),
			want: "store.dsn",
		},
		{
			name: "unknown store provider",
			cfg: func() Config {
				c := base
				c.Store.Provider = "redis"
				return c
			}(),
			want: "store.provider",
		},
		{
			name: "invalid retention",
			cfg: func() Config {
				c := base
				c.Sweep.RetentionHour = 0
				return c
			}(),
			want: "sweep.retention_hours",
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
