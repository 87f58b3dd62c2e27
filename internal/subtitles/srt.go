package subtitles

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"captioner/internal/timeline"
)

var speakerPrefix = regexp.MustCompile(`^(spk[1-9][0-9]*): `)

// Format renders segments as SRT. Segments with empty trimmed text are
// skipped and indices stay consecutive. Non-empty output ends with a single
// newline.
func Format(segments []timeline.Segment) string {
	blocks := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := cleanText(seg.Text)
		if text == "" {
			continue
		}
		if speaker := strings.TrimSpace(seg.Speaker); speaker != "" {
			text = speaker + ": " + text
		}
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s",
			len(blocks)+1, FormatTimestamp(seg.Start), FormatTimestamp(seg.End), text))
	}
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// cleanText trims the text and drops blank lines, which would otherwise end
// the block early.
func cleanText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm rounded to the nearest
// millisecond. Hours are not capped.
func FormatTimestamp(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	minutes := (ms / 60_000) % 60
	secs := (ms / 1000) % 60
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp parses HH:MM:SS,mmm (or HH:MM:SS.mmm) into seconds.
func ParseTimestamp(value string) (float64, error) {
	ms, err := parseMillis(value)
	if err != nil {
		return 0, err
	}
	return float64(ms) / 1000, nil
}

func parseMillis(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.ParseInt(hms[0], 10, 64)
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 || millis < 0 || len(timeParts[1]) != 3 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}
	return hours*3_600_000 + int64(minutes)*60_000 + int64(seconds)*1000 + int64(millis), nil
}

// Cue is one parsed SRT block.
type Cue struct {
	Index   int
	StartMS int64
	EndMS   int64
	Text    string
	Speaker string
}

// Segment converts the cue back to a timeline segment.
func (c Cue) Segment() timeline.Segment {
	return timeline.Segment{
		Start:   float64(c.StartMS) / 1000,
		End:     float64(c.EndMS) / 1000,
		Text:    c.Text,
		Speaker: c.Speaker,
	}
}

// Parse reads SRT content back into segments. A leading "spkN: " is always
// taken as the speaker label, so only labelled segments round-trip exactly:
// unlabelled text that itself starts with such a prefix comes back labelled.
func Parse(content string) ([]timeline.Segment, error) {
	cues, err := ParseCues(content)
	if err != nil {
		return nil, err
	}
	segments := make([]timeline.Segment, len(cues))
	for i, cue := range cues {
		segments[i] = cue.Segment()
	}
	return segments, nil
}

// ParseCues reads SRT content into cues, keeping the block indices.
func ParseCues(content string) ([]Cue, error) {
	var cues []Cue
	for n, block := range splitBlocks(content) {
		cue, err := parseBlock(block)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", n+1, err)
		}
		cues = append(cues, cue)
	}
	return cues, nil
}

func splitBlocks(content string) [][]string {
	content = strings.TrimPrefix(strings.ReplaceAll(content, "\r\n", "\n"), "\uFEFF")
	var blocks [][]string
	var current []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func parseBlock(lines []string) (Cue, error) {
	var cue Cue
	if !strings.Contains(lines[0], "-->") {
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return Cue{}, fmt.Errorf("invalid index %q", lines[0])
		}
		cue.Index = index
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return Cue{}, fmt.Errorf("missing timing line")
	}
	parts := strings.Split(lines[0], "-->")
	if len(parts) != 2 {
		return Cue{}, fmt.Errorf("invalid timing line %q", lines[0])
	}
	var err error
	if cue.StartMS, err = parseMillis(parts[0]); err != nil {
		return Cue{}, err
	}
	// Position settings may follow the end timestamp.
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return Cue{}, fmt.Errorf("invalid timing line %q", lines[0])
	}
	if cue.EndMS, err = parseMillis(endFields[0]); err != nil {
		return Cue{}, err
	}

	text := strings.Join(lines[1:], "\n")
	if match := speakerPrefix.FindStringSubmatch(text); match != nil {
		cue.Speaker = match[1]
		text = text[len(match[0]):]
	}
	cue.Text = strings.TrimSpace(text)
	return cue, nil
}
