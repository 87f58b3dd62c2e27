package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var knownPrecisions = map[string]struct{}{
	"float16":      {},
	"float32":      {},
	"bfloat16":     {},
	"int8":         {},
	"int8_float16": {},
	"int8_float32": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngines(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if c.Staging.StaleAfterHours < 0 {
		return errors.New("staging.stale_after_hours must not be negative")
	}
	return nil
}

func (c *Config) validateEngines() error {
	parsed, err := url.Parse(c.Engines.SidecarURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("engines.sidecar_url must be an http(s) URL, got %q", c.Engines.SidecarURL)
	}
	switch c.Engines.Device {
	case "cuda", "cpu", "auto":
	default:
		return fmt.Errorf("engines.device must be one of cuda, cpu, auto; got %q", c.Engines.Device)
	}
	if _, ok := knownPrecisions[c.Engines.Precision]; !ok {
		return fmt.Errorf("engines.precision %q is not supported", c.Engines.Precision)
	}
	if c.Engines.FallbackPrecision != "" {
		if _, ok := knownPrecisions[c.Engines.FallbackPrecision]; !ok {
			return fmt.Errorf("engines.fallback_precision %q is not supported", c.Engines.FallbackPrecision)
		}
	}
	if c.Engines.AlignmentRequired && !c.Engines.AlignmentEnabled {
		return errors.New("engines.alignment_required needs engines.alignment_enabled")
	}
	return nil
}

func (c *Config) validateHealth() error {
	if c.Health.MaxCPS <= 0 {
		return errors.New("health.max_cps must be positive")
	}
	if c.Health.DurationToleranceSeconds < 0 {
		return errors.New("health.duration_tolerance_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if err := ensurePositiveMap(map[string]int{
		"delivery.request_timeout_seconds": c.Delivery.RequestTimeoutSeconds,
		"delivery.max_attempts":            c.Delivery.MaxAttempts,
		"delivery.initial_backoff_ms":      c.Delivery.InitialBackoffMS,
		"delivery.max_backoff_ms":          c.Delivery.MaxBackoffMS,
	}); err != nil {
		return err
	}
	if c.Delivery.MaxBackoffMS < c.Delivery.InitialBackoffMS {
		return errors.New("delivery.max_backoff_ms must be at least delivery.initial_backoff_ms")
	}
	if base := c.Delivery.WebhookBaseURL; base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("delivery.webhook_base_url must be an http(s) URL, got %q", base)
		}
	}
	if c.Delivery.Persist && strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("delivery.persist requires paths.state_dir")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
