package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"captioner/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("HF_TOKEN", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "captioner", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.OutboxPath() != filepath.Join(tempHome, ".local", "share", "captioner", "state", "outbox.db") {
		t.Fatalf("unexpected outbox path: %q", cfg.OutboxPath())
	}
	if cfg.Engines.Precision != "float16" || cfg.Engines.FallbackPrecision != "int8" {
		t.Fatalf("unexpected precision defaults: %q/%q", cfg.Engines.Precision, cfg.Engines.FallbackPrecision)
	}
	if !cfg.Engines.AlignmentEnabled || !cfg.Engines.DiarizationEnabled {
		t.Fatal("expected alignment and diarization enabled by default")
	}
	if cfg.Engines.AlignmentRequired {
		t.Fatal("expected alignment to be optional by default")
	}
	if cfg.Health.MaxCPS != 20 {
		t.Fatalf("unexpected max cps: %v", cfg.Health.MaxCPS)
	}
	if cfg.Delivery.MaxAttempts != 1 {
		t.Fatalf("expected a single delivery attempt by default, got %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.DeliveryTimeout().Seconds() != 30 {
		t.Fatalf("unexpected delivery timeout: %v", cfg.DeliveryTimeout())
	}
	if cfg.Transcription.DefaultLanguage != "auto" {
		t.Fatalf("unexpected default language: %q", cfg.Transcription.DefaultLanguage)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	dir := t.TempDir()
	path := filepath.Join(dir, "captioner.toml")
	content := `[paths]
staging_dir = "~/jobs"

[engines]
sidecar_url = "http://gpu-box:9000/"
device = "CPU"
precision = ""
diarization_enabled = false

[delivery]
max_attempts = 4
persist = true

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.StagingDir != filepath.Join(tempHome, "jobs") {
		t.Fatalf("unexpected staging dir: %q", cfg.Paths.StagingDir)
	}
	if cfg.Engines.SidecarURL != "http://gpu-box:9000" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Engines.SidecarURL)
	}
	if cfg.Engines.Device != "cpu" || cfg.Engines.Precision != "float32" {
		t.Fatalf("expected cpu device to default to float32, got %q/%q", cfg.Engines.Device, cfg.Engines.Precision)
	}
	if cfg.Engines.DiarizationEnabled {
		t.Fatal("expected diarization disabled")
	}
	if cfg.Delivery.MaxAttempts != 4 || !cfg.Delivery.Persist {
		t.Fatalf("unexpected delivery settings: %+v", cfg.Delivery)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HF_TOKEN", " hf_secret ")
	t.Setenv("CAPTIONER_SIDECAR_URL", "http://override:1234")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Engines.HFToken != "hf_secret" {
		t.Fatalf("expected HF token from env, got %q", cfg.Engines.HFToken)
	}
	if cfg.Engines.SidecarURL != "http://override:1234" {
		t.Fatalf("expected sidecar url from env, got %q", cfg.Engines.SidecarURL)
	}
}

func TestDefaultCallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CAPTIONER_WEBHOOK_BASE_URL", " https://hooks.example.com/webhook/ ")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.DefaultCallback("job 1"); got != "https://hooks.example.com/webhook/job%201" {
		t.Fatalf("unexpected default callback %q", got)
	}
	if got := cfg.DefaultCallback(""); got != "" {
		t.Fatalf("expected no callback without a job id, got %q", got)
	}

	plain := config.Default()
	if got := plain.DefaultCallback("job-1"); got != "" {
		t.Fatalf("expected no default callback, got %q", got)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[engines\nsidecar_url = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StagingDir, "captioner") {
		t.Fatalf("expected staging dir to contain captioner, got %q", cfg.Paths.StagingDir)
	}
	if cfg.Engines.TranscriptionModel != config.Default().Engines.TranscriptionModel {
		t.Fatalf("sample model %q drifted from defaults", cfg.Engines.TranscriptionModel)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad sidecar url", func(c *config.Config) { c.Engines.SidecarURL = "gpu-box" }},
		{"unknown device", func(c *config.Config) { c.Engines.Device = "tpu" }},
		{"unknown precision", func(c *config.Config) { c.Engines.Precision = "float8" }},
		{"unknown fallback", func(c *config.Config) { c.Engines.FallbackPrecision = "int4" }},
		{"required alignment disabled", func(c *config.Config) {
			c.Engines.AlignmentEnabled = false
			c.Engines.AlignmentRequired = true
		}},
		{"zero max cps", func(c *config.Config) { c.Health.MaxCPS = 0 }},
		{"negative tolerance", func(c *config.Config) { c.Health.DurationToleranceSeconds = -1 }},
		{"zero attempts", func(c *config.Config) { c.Delivery.MaxAttempts = 0 }},
		{"backoff inverted", func(c *config.Config) { c.Delivery.MaxBackoffMS = 10 }},
		{"negative stale hours", func(c *config.Config) { c.Staging.StaleAfterHours = -1 }},
		{"bad webhook base", func(c *config.Config) { c.Delivery.WebhookBaseURL = "hooks.local" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
