package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"captioner/internal/logging"
	"captioner/internal/services"
)

const (
	// SampleRate is the sample rate of normalized audio.
	SampleRate = 16000
	// Channels is the channel count of normalized audio.
	Channels = 1
)

// CommandRunner executes an external binary.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Asset is normalized mono 16 kHz PCM audio inside a job workspace.
type Asset struct {
	Path        string
	DurationSec float64
}

// Normalizer converts arbitrary media to engine-ready WAV with ffmpeg.
type Normalizer struct {
	binary string
	run    CommandRunner
	logger *slog.Logger
}

// NormalizerOption customizes a Normalizer.
type NormalizerOption func(*Normalizer)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r CommandRunner) NormalizerOption {
	return func(n *Normalizer) {
		if r != nil {
			n.run = r
		}
	}
}

// NewNormalizer builds a normalizer around the given ffmpeg binary.
func NewNormalizer(binary string, logger *slog.Logger, opts ...NormalizerOption) *Normalizer {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	n := &Normalizer{
		binary: binary,
		run:    defaultCommandRunner,
		logger: logging.NewComponentLogger(logger, "normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Args returns the ffmpeg arguments used to normalize source into destination.
func Args(source, destination string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", fmt.Sprint(Channels),
		"-ar", fmt.Sprint(SampleRate),
		"-c:a", "pcm_s16le",
		destination,
	}
}

// Normalize converts source into destination and probes the result.
// Any failure is marked services.ErrMediaConversion.
func (n *Normalizer) Normalize(ctx context.Context, source, destination string) (Asset, error) {
	start := time.Now()
	logger := logging.WithContext(ctx, n.logger)
	logger.Debug("normalizing audio",
		logging.String("source", source),
		logging.String("destination", destination),
	)

	if err := n.run(ctx, n.binary, Args(source, destination)...); err != nil {
		removeQuietly(destination)
		return Asset{}, services.Wrap(services.ErrMediaConversion, "normalizing", "ffmpeg", "Failed to convert source to 16 kHz mono WAV", err)
	}

	info, err := Probe(destination)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrMediaConversion, "normalizing", "probe", "Normalized audio is unreadable", err)
	}
	if info.SampleRate != SampleRate || info.Channels != Channels {
		return Asset{}, services.Wrap(services.ErrMediaConversion, "normalizing", "probe",
			fmt.Sprintf("Unexpected audio layout %d Hz x %d channels", info.SampleRate, info.Channels), nil)
	}

	logger.Info("audio normalized",
		logging.Float64("duration_sec", info.DurationSec),
		logging.Duration("elapsed", time.Since(start)),
	)
	return Asset{Path: destination, DurationSec: info.DurationSec}, nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// removeQuietly deletes a partially written file.
func removeQuietly(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
