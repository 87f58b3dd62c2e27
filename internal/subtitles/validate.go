package subtitles

import (
	"fmt"
	"strings"
)

// DurationTolerance is how far the last cue may end past the audio.
const DurationTolerance = 2.0

// Validate checks SRT content for format issues. audioSeconds <= 0 skips the
// duration check. An empty result means validation passed.
func Validate(content string, audioSeconds float64) []string {
	if strings.TrimSpace(content) == "" {
		return []string{"empty_subtitle_file"}
	}
	cues, err := ParseCues(content)
	if err != nil {
		return []string{fmt.Sprintf("parse_error: %v", err)}
	}

	var issues []string
	var lastEnd int64
	for i, cue := range cues {
		if cue.Index != i+1 {
			issues = append(issues, fmt.Sprintf("index_gap: block %d has index %d", i+1, cue.Index))
		}
		if cue.EndMS < cue.StartMS {
			issues = append(issues, fmt.Sprintf("negative_duration: block %d", i+1))
		}
		if i > 0 && cue.StartMS < lastEnd {
			issues = append(issues, fmt.Sprintf("overlap: block %d starts before block %d ends", i+1, i))
		}
		if cue.Text == "" {
			issues = append(issues, fmt.Sprintf("empty_text: block %d", i+1))
		}
		lastEnd = cue.EndMS
	}

	if audioSeconds > 0 && len(cues) > 0 {
		end := float64(cues[len(cues)-1].EndMS) / 1000
		if delta := end - audioSeconds; delta > DurationTolerance {
			issues = append(issues, fmt.Sprintf("duration_mismatch: delta=%.1fs", delta))
		}
	}
	return issues
}
