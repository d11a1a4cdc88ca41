package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("RATE_LIMIT_WINDOW_MS", "")
	t.Setenv("RATE_LIMIT_BACKEND", "")
	t.Setenv("SUBMISSION_STORE", "")

	cfg := LoadConfig()

	if cfg.RateLimit.Window != 24*time.Hour {
		t.Errorf("Window = %v, want 24h", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.VoteQuota != 1 {
		t.Errorf("VoteQuota = %d, want 1", cfg.RateLimit.VoteQuota)
	}
	if cfg.RateLimit.CommentQuota != 3 {
		t.Errorf("CommentQuota = %d, want 3", cfg.RateLimit.CommentQuota)
	}
	if cfg.RateLimit.Backend != BackendRedis {
		t.Errorf("Backend = %q, want %q", cfg.RateLimit.Backend, BackendRedis)
	}
	if cfg.SubmissionStore != BackendScylla {
		t.Errorf("SubmissionStore = %q, want %q", cfg.SubmissionStore, BackendScylla)
	}
	if Get() != cfg {
		t.Error("Get() should return the config loaded last")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_WINDOW_MS", "60000")
	t.Setenv("RATE_LIMIT_BACKEND", "Memory")
	t.Setenv("SCYLLA_NODES", "a:9042, b:9042 ,")
	t.Setenv("STORE_TIMEOUT", "250ms")
	t.Setenv("KAFKA_ENABLED", "true")

	cfg := LoadConfig()

	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("Window = %v, want 1m", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.Backend != BackendMemory {
		t.Errorf("Backend = %q, want memory", cfg.RateLimit.Backend)
	}
	if len(cfg.Scylla.Nodes) != 2 || cfg.Scylla.Nodes[1] != "b:9042" {
		t.Errorf("Nodes = %v", cfg.Scylla.Nodes)
	}
	if cfg.StoreTimeout != 250*time.Millisecond {
		t.Errorf("StoreTimeout = %v", cfg.StoreTimeout)
	}
	if !cfg.Kafka.Enabled {
		t.Error("Kafka.Enabled should be true")
	}
}

func TestLoadConfig_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("SWEEPER_INTERVAL", "daily")

	cfg := LoadConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sweeper.Interval != 24*time.Hour {
		t.Errorf("Interval = %v, want 24h", cfg.Sweeper.Interval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.RateLimit.Backend = "etcd" },
			wantErr: "RATE_LIMIT_BACKEND",
		},
		{
			name:    "zero quota",
			mutate:  func(c *Config) { c.RateLimit.VoteQuota = 0 },
			wantErr: "quotas",
		},
		{
			name:    "sweep margin below floor",
			mutate:  func(c *Config) { c.Sweeper.RetentionMargin = 0 },
			wantErr: "SWEEPER_RETENTION_MARGIN",
		},
		{
			name:    "kms without ciphertext",
			mutate:  func(c *Config) { c.KMS.Enabled = true },
			wantErr: "FINGERPRINT_PEPPER_CIPHERTEXT",
		},
		{
			name:    "tls without certificates",
			mutate:  func(c *Config) { c.Server.TLS.Enabled = true },
			wantErr: "TLS_CERT_FILE",
		},
		{
			name: "autocert without domain",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
				c.Server.TLS.AutoCert = true
			},
			wantErr: "TLS_DOMAIN",
		},
		{
			name: "production needs cron secret",
			mutate: func(c *Config) {
				c.Environment = EnvProduction
				c.CronSecret = ""
			},
			wantErr: "CRON_SECRET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
