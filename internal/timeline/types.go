package timeline

import (
	"fmt"
	"regexp"
)

const (
	// MinDuration is the shortest on-screen time a segment is extended to.
	MinDuration = 0.5
	// Gap is the minimum spacing kept between a segment end and the next start.
	Gap = 0.1
	// DefaultSpeaker labels every segment when diarization is unavailable.
	DefaultSpeaker = "spk1"
)

var labelPattern = regexp.MustCompile(`^spk[1-9][0-9]*$`)

// Label renders the display label for the n-th speaker (1-based).
func Label(n int) string {
	return fmt.Sprintf("spk%d", n)
}

// IsCanonicalLabel reports whether label has the form spk<positive integer>.
func IsCanonicalLabel(label string) bool {
	return labelPattern.MatchString(label)
}

// RawSegment is one transcription segment before alignment.
type RawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Word is an aligned word. Speaker is filled in during assembly.
type Word struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"word"`
	Speaker string  `json:"speaker,omitempty"`
}

// Segment is a displayable subtitle unit.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
	Words   []Word  `json:"words,omitempty"`
}

// Duration returns end minus start.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// SpeakerSpan is a diarization interval. Speaker is a process-local id.
type SpeakerSpan struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker int     `json:"speaker"`
}

// Words is the outcome of the alignment stage.
type Words struct {
	available bool
	words     []Word
	reason    string
}

// WordsAvailable wraps a successful alignment result.
func WordsAvailable(words []Word) Words {
	return Words{available: true, words: words}
}

// WordsUnavailable records that no word timing exists and why.
func WordsUnavailable(reason string) Words {
	return Words{reason: reason}
}

// Get returns the words and whether alignment produced them.
func (w Words) Get() ([]Word, bool) {
	return w.words, w.available
}

// Reason explains an unavailable result.
func (w Words) Reason() string {
	return w.reason
}

// Speakers is the outcome of the diarization stage.
type Speakers struct {
	available bool
	spans     []SpeakerSpan
	reason    string
}

// SpeakersAvailable wraps a successful diarization result.
func SpeakersAvailable(spans []SpeakerSpan) Speakers {
	return Speakers{available: true, spans: spans}
}

// SpeakersUnavailable records that no diarization exists and why.
func SpeakersUnavailable(reason string) Speakers {
	return Speakers{reason: reason}
}

// Get returns the spans and whether diarization produced them.
func (s Speakers) Get() ([]SpeakerSpan, bool) {
	return s.spans, s.available
}

// Reason explains an unavailable result.
func (s Speakers) Reason() string {
	return s.reason
}
