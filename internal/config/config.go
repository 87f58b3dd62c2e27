package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Media contains settings for fetching and normalizing job input.
type Media struct {
	FFmpegBinary           string `toml:"ffmpeg_binary"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
	MaxDownloadMB          int    `toml:"max_download_mb"`
}

// Engines contains inference sidecar and model settings.
type Engines struct {
	SidecarURL            string `toml:"sidecar_url"`
	Device                string `toml:"device"`
	Precision             string `toml:"precision"`
	FallbackPrecision     string `toml:"fallback_precision"`
	TranscriptionModel    string `toml:"transcription_model"`
	AlignmentModel        string `toml:"alignment_model"`
	DiarizationModel      string `toml:"diarization_model"`
	AlignmentEnabled      bool   `toml:"alignment_enabled"`
	AlignmentRequired     bool   `toml:"alignment_required"`
	DiarizationEnabled    bool   `toml:"diarization_enabled"`
	HFToken               string `toml:"hf_token"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Transcription contains per-job defaults for transcription.
type Transcription struct {
	DefaultLanguage string `toml:"default_language"`
}

// Health contains thresholds used when scoring a timeline.
type Health struct {
	MaxCPS                   float64 `toml:"max_cps"`
	DurationToleranceSeconds float64 `toml:"duration_tolerance_seconds"`
}

// Delivery contains callback settings.
//
// MaxAttempts of 1 keeps the baseline single-attempt behaviour; higher values
// enable retry with exponential backoff. WebhookBaseURL, when set, is the
// callback for jobs that name none: WebhookBaseURL/{job id}.
type Delivery struct {
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxAttempts           int    `toml:"max_attempts"`
	InitialBackoffMS      int    `toml:"initial_backoff_ms"`
	MaxBackoffMS          int    `toml:"max_backoff_ms"`
	Persist               bool   `toml:"persist"`
	UserAgent             string `toml:"user_agent"`
	WebhookBaseURL        string `toml:"webhook_base_url"`
}

// Staging contains workspace housekeeping settings.
type Staging struct {
	StaleAfterHours int `toml:"stale_after_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for captioner.
//
// Configuration sections by subsystem:
//   - Paths: staging, state (outbox database) and log directories
//   - Media: ffmpeg binary and source download limits
//   - Engines: inference sidecar, device, precision and model selection
//   - Transcription: default language hint
//   - Health: legibility thresholds
//   - Delivery: callback timeout, retry and persistence
//   - Staging: stale workspace cleanup
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Media         Media         `toml:"media"`
	Engines       Engines       `toml:"engines"`
	Transcription Transcription `toml:"transcription"`
	Health        Health        `toml:"health"`
	Delivery      Delivery      `toml:"delivery"`
	Staging       Staging       `toml:"staging"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/captioner/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("captioner.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// OutboxPath returns the location of the delivery outbox database.
func (c *Config) OutboxPath() string {
	return filepath.Join(c.Paths.StateDir, "outbox.db")
}

// DefaultCallback returns the callback for a job without one, or "" when no
// webhook base is configured.
func (c *Config) DefaultCallback(jobID string) string {
	if c.Delivery.WebhookBaseURL == "" || strings.TrimSpace(jobID) == "" {
		return ""
	}
	return c.Delivery.WebhookBaseURL + "/" + url.PathEscape(jobID)
}

// DeliveryTimeout returns the per-attempt callback timeout.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.Delivery.RequestTimeoutSeconds) * time.Second
}

// EngineTimeout returns the per-request inference sidecar timeout.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engines.RequestTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the source download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Media.DownloadTimeoutSeconds) * time.Second
}

// StaleAfter returns the age after which abandoned workspaces are removed.
// A zero duration disables cleanup.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Staging.StaleAfterHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
