package workflow

import (
	"maps"
	"math"
	"time"

	"captioner/internal/delivery"
	"captioner/internal/health"
	"captioner/internal/timeline"
)

// Stage is a job state.
type Stage string

const (
	StageReceived     Stage = "RECEIVED"
	StageNormalizing  Stage = "NORMALIZING"
	StageTranscribing Stage = "TRANSCRIBING"
	StageAligning     Stage = "ALIGNING"
	StageDiarizing    Stage = "DIARIZING"
	StageAssembling   Stage = "ASSEMBLING"
	StageReporting    Stage = "REPORTING"
	StageDelivering   Stage = "DELIVERING"
	StageDone         Stage = "DONE"
	StageFailed       Stage = "FAILED"
)

// Terminal reports whether the stage ends a job.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Meta describes how a job was processed.
type Meta struct {
	Model            string             `json:"model"`
	Language         string             `json:"language"`
	DetectedLanguage string             `json:"detectedLanguage,omitempty"`
	DurationSec      float64            `json:"durationSec"`
	Device           string             `json:"device"`
	Precision        string             `json:"precision,omitempty"`
	Aligned          bool               `json:"aligned"`
	Diarized         bool               `json:"diarized"`
	Phases           map[string]float64 `json:"phases"`
	TotalSec         float64            `json:"totalSec"`
}

// Report is the single terminal result of a job.
type Report struct {
	JobID    string             `json:"id"`
	Status   delivery.Status    `json:"status"`
	Trail    []Stage            `json:"trail"`
	Error    string             `json:"error,omitempty"`
	Kind     string             `json:"errorKind,omitempty"`
	Segments []timeline.Segment `json:"segments,omitempty"`
	Health   *health.Report     `json:"health,omitempty"`
	SRT      string             `json:"srt,omitempty"`
	Meta     Meta               `json:"meta"`
	Delivery *delivery.Outcome  `json:"delivery,omitempty"`
}

// Final returns the terminal stage recorded in the trail.
func (r Report) Final() Stage {
	if len(r.Trail) == 0 {
		return ""
	}
	return r.Trail[len(r.Trail)-1]
}

// Output is the callback payload for a completed job.
type Output struct {
	Segments []timeline.Segment `json:"segments"`
	Health   *health.Report     `json:"health"`
	SRT      string             `json:"srt"`
	Meta     Meta               `json:"meta"`
}

func (r Report) output() Output {
	segments := r.Segments
	if segments == nil {
		segments = []timeline.Segment{}
	}
	return Output{Segments: segments, Health: r.Health, SRT: r.SRT, Meta: r.Meta}
}

// InputEcho is the job input returned to the caller for correlation. Inline
// bytes are never echoed.
type InputEcho struct {
	URL          string `json:"url,omitempty"`
	Filename     string `json:"filename,omitempty"`
	Language     string `json:"language,omitempty"`
	SpeakerCount int    `json:"speakerCount,omitempty"`
	Model        string `json:"model,omitempty"`
}

func echoInput(job Job) any {
	if job.Echo != nil {
		echo := maps.Clone(job.Echo)
		delete(echo, "file")
		return echo
	}
	return InputEcho{
		URL:          job.Input.URL,
		Filename:     job.Input.Filename,
		Language:     job.Options.Language,
		SpeakerCount: job.Options.SpeakerCount,
		Model:        job.Options.Size,
	}
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
