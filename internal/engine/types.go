package engine

import (
	"context"
	"errors"
	"strings"

	"captioner/internal/timeline"
)

// Kind identifies an inference capability.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindAlignment     Kind = "alignment"
	KindDiarization   Kind = "diarization"
)

// ErrWrongKind is returned when an operation is called on a handle of another kind.
var ErrWrongKind = errors.New("engine: operation not supported by this engine kind")

// Config selects the engine to acquire.
type Config struct {
	Model             string
	Language          string
	Device            string
	Precision         string
	FallbackPrecision string
	HFToken           string
}

// Key identifies a cached engine.
type Key struct {
	Kind      Kind
	Model     string
	Language  string
	Device    string
	Precision string
}

// DefaultPrecision returns the preferred compute type for a device.
func DefaultPrecision(device string) string {
	if strings.EqualFold(strings.TrimSpace(device), "cpu") {
		return "float32"
	}
	return "float16"
}

func (c Config) key(kind Kind) Key {
	precision := strings.TrimSpace(c.Precision)
	if precision == "" {
		precision = DefaultPrecision(c.Device)
	}
	return Key{
		Kind:      kind,
		Model:     strings.TrimSpace(c.Model),
		Language:  strings.ToLower(strings.TrimSpace(c.Language)),
		Device:    strings.ToLower(strings.TrimSpace(c.Device)),
		Precision: precision,
	}
}

// LoadSpec is what a Loader needs to construct one engine.
type LoadSpec struct {
	Kind      Kind
	Model     string
	Language  string
	Device    string
	Precision string
	HFToken   string
}

// Loader constructs engines. Implementations may block for a long time.
type Loader interface {
	Load(ctx context.Context, spec LoadSpec) (Engine, error)
}

// Engine is a loaded model.
type Engine interface {
	Close() error
}

// PrecisionReporter is implemented by engines that know the compute type they
// actually loaded with, which may differ from the one requested.
type PrecisionReporter interface {
	Precision() string
}

func loadedPrecision(e Engine, requested string) string {
	if r, ok := e.(PrecisionReporter); ok {
		if p := strings.TrimSpace(r.Precision()); p != "" {
			return p
		}
	}
	return requested
}

// Transcriber is an engine that turns audio into raw segments.
type Transcriber interface {
	Engine
	Transcribe(ctx context.Context, req TranscribeRequest) (Transcript, error)
}

// Aligner is an engine that produces word timing for raw segments.
type Aligner interface {
	Engine
	Align(ctx context.Context, req AlignRequest) ([]timeline.Word, error)
}

// Diarizer is an engine that finds who spoke when.
type Diarizer interface {
	Engine
	Diarize(ctx context.Context, req DiarizeRequest) ([]timeline.SpeakerSpan, error)
}

// TranscribeRequest asks for a transcript. Language "auto" or empty lets the
// engine detect.
type TranscribeRequest struct {
	AudioPath string
	Language  string
}

// Transcript is the raw transcription output.
type Transcript struct {
	Language string
	Segments []timeline.RawSegment
}

// AlignRequest asks for word timing.
type AlignRequest struct {
	AudioPath string
	Language  string
	Segments  []timeline.RawSegment
}

// DiarizeRequest asks for speaker spans. Zero bounds mean an open range.
type DiarizeRequest struct {
	AudioPath   string
	MinSpeakers int
	MaxSpeakers int
}

// SpeakerRange returns the diarization bounds for an expected speaker count.
// A positive count pins both bounds; otherwise the range is open.
func SpeakerRange(count int) (minSpeakers, maxSpeakers int) {
	if count > 0 {
		return count, count
	}
	return 0, 0
}
