package health

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"captioner/internal/timeline"
)

const (
	// DefaultMaxCPS is the legibility threshold in characters per second.
	DefaultMaxCPS = 20.0
	// DefaultDurationTolerance is how far the timeline may run past the audio.
	DefaultDurationTolerance = 2.0
)

// Report summarizes a subtitle timeline.
type Report struct {
	TotalLines         int      `json:"totalLines"`
	TotalChars         int      `json:"totalChars"`
	AvgCPS             float64  `json:"avgCps"`
	Duplicates         int      `json:"duplicates"`
	SpeakerConsistency bool     `json:"speakerConsistency"`
	SpeakerCount       int      `json:"speakerCount"`
	Issues             []string `json:"issues"`
	AudioDurationSec   float64  `json:"audioDurationSec"`
}

// AddIssue appends a human-readable issue.
func (r *Report) AddIssue(issue string) {
	r.Issues = append(r.Issues, issue)
}

// Options tunes the thresholds. Zero values select the defaults.
type Options struct {
	MaxCPS            float64
	DurationTolerance float64
}

func (o Options) withDefaults() Options {
	if o.MaxCPS <= 0 {
		o.MaxCPS = DefaultMaxCPS
	}
	if o.DurationTolerance <= 0 {
		o.DurationTolerance = DefaultDurationTolerance
	}
	return o
}

// Check computes the health report using default thresholds.
func Check(segments []timeline.Segment, audioDuration float64) Report {
	return CheckWith(segments, audioDuration, Options{})
}

// CheckWith computes the health report. audioDuration <= 0 means unknown.
func CheckWith(segments []timeline.Segment, audioDuration float64, opts Options) Report {
	opts = opts.withDefaults()
	report := Report{
		TotalLines:         len(segments),
		SpeakerConsistency: true,
		SpeakerCount:       1,
		Issues:             []string{},
		AudioDurationSec:   math.Max(0, audioDuration),
	}
	if len(segments) == 0 {
		return report
	}

	var totalDuration, lastEnd float64
	texts := make(map[string]struct{}, len(segments))
	speakers := make(map[string]struct{})
	var badLabels []string
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		report.TotalChars += utf8.RuneCountInString(text)
		totalDuration += seg.End - seg.Start
		texts[text] = struct{}{}
		lastEnd = math.Max(lastEnd, seg.End)

		label := strings.TrimSpace(seg.Speaker)
		if label == "" {
			continue
		}
		if _, seen := speakers[label]; !seen {
			speakers[label] = struct{}{}
			if !timeline.IsCanonicalLabel(label) {
				badLabels = append(badLabels, label)
			}
		}
	}

	if totalDuration <= 0 {
		totalDuration = 1.0
	}
	report.AvgCPS = math.Round(float64(report.TotalChars)/totalDuration*100) / 100
	report.Duplicates = len(segments) - len(texts)
	report.SpeakerConsistency = len(badLabels) == 0
	if len(speakers) > 0 {
		report.SpeakerCount = len(speakers)
	}

	if report.AvgCPS > opts.MaxCPS {
		report.AddIssue(fmt.Sprintf("High CPS (%.2f > %g)", report.AvgCPS, opts.MaxCPS))
	}
	if report.Duplicates > 0 {
		report.AddIssue(fmt.Sprintf("Duplicate lines detected (%d)", report.Duplicates))
	}
	if !report.SpeakerConsistency {
		report.AddIssue(fmt.Sprintf("Inconsistent speaker labels: %s", strings.Join(badLabels, ", ")))
	}
	if audioDuration > 0 && lastEnd > audioDuration+opts.DurationTolerance {
		report.AddIssue(fmt.Sprintf("Timeline ends at %.2fs, past audio duration %.2fs", lastEnd, audioDuration))
	}
	return report
}
