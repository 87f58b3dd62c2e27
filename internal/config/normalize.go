package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMedia()
	c.normalizeEngines()
	c.normalizeTranscription()
	c.normalizeDelivery()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Media.DownloadTimeoutSeconds <= 0 {
		c.Media.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Media.MaxDownloadMB <= 0 {
		c.Media.MaxDownloadMB = defaultMaxDownloadMB
	}
}

func (c *Config) normalizeEngines() {
	c.Engines.SidecarURL = strings.TrimRight(strings.TrimSpace(c.Engines.SidecarURL), "/")
	if value, ok := os.LookupEnv("CAPTIONER_SIDECAR_URL"); ok && strings.TrimSpace(value) != "" {
		c.Engines.SidecarURL = strings.TrimRight(strings.TrimSpace(value), "/")
	}
	if c.Engines.SidecarURL == "" {
		c.Engines.SidecarURL = defaultSidecarURL
	}
	c.Engines.Device = strings.ToLower(strings.TrimSpace(c.Engines.Device))
	if c.Engines.Device == "" {
		c.Engines.Device = defaultDevice
	}
	c.Engines.Precision = strings.ToLower(strings.TrimSpace(c.Engines.Precision))
	c.Engines.FallbackPrecision = strings.ToLower(strings.TrimSpace(c.Engines.FallbackPrecision))
	if c.Engines.Precision == "" {
		if c.Engines.Device == "cpu" {
			c.Engines.Precision = defaultCPUPrecision
		} else {
			c.Engines.Precision = defaultPrecision
		}
	}
	c.Engines.TranscriptionModel = strings.TrimSpace(c.Engines.TranscriptionModel)
	if c.Engines.TranscriptionModel == "" {
		c.Engines.TranscriptionModel = defaultTranscriptionModel
	}
	c.Engines.AlignmentModel = strings.TrimSpace(c.Engines.AlignmentModel)
	c.Engines.DiarizationModel = strings.TrimSpace(c.Engines.DiarizationModel)
	if c.Engines.DiarizationModel == "" {
		c.Engines.DiarizationModel = defaultDiarizationModel
	}
	c.Engines.HFToken = strings.TrimSpace(c.Engines.HFToken)
	if c.Engines.HFToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Engines.HFToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Engines.HFToken = strings.TrimSpace(value)
		}
	}
	if c.Engines.RequestTimeoutSeconds <= 0 {
		c.Engines.RequestTimeoutSeconds = defaultEngineTimeoutSeconds
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Transcription.DefaultLanguage))
	if c.Transcription.DefaultLanguage == "" {
		c.Transcription.DefaultLanguage = defaultLanguage
	}
}

func (c *Config) normalizeDelivery() {
	if c.Delivery.RequestTimeoutSeconds <= 0 {
		c.Delivery.RequestTimeoutSeconds = defaultDeliveryTimeoutSeconds
	}
	if c.Delivery.MaxAttempts <= 0 {
		c.Delivery.MaxAttempts = defaultDeliveryAttempts
	}
	if c.Delivery.InitialBackoffMS <= 0 {
		c.Delivery.InitialBackoffMS = defaultInitialBackoffMS
	}
	if c.Delivery.MaxBackoffMS <= 0 {
		c.Delivery.MaxBackoffMS = defaultMaxBackoffMS
	}
	c.Delivery.WebhookBaseURL = strings.TrimRight(strings.TrimSpace(c.Delivery.WebhookBaseURL), "/")
	if value, ok := os.LookupEnv("CAPTIONER_WEBHOOK_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Delivery.WebhookBaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
	}
	c.Delivery.UserAgent = strings.TrimSpace(c.Delivery.UserAgent)
	if c.Delivery.UserAgent == "" {
		c.Delivery.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
