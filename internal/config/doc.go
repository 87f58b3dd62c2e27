// Package config loads, normalizes, and validates captioner configuration.
//
// Configuration lives in TOML (default ~/.config/captioner/config.toml or
// ./captioner.toml). Load applies repository defaults, decodes the file,
// expands paths, folds in environment overrides such as HF_TOKEN and
// CAPTIONER_SIDECAR_URL, and validates the result before returning it.
//
// The embedded sample_config.toml backs `captioner config init`.
package config
