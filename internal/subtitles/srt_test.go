package subtitles

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"captioner/internal/timeline"
)

func TestFormat(t *testing.T) {
	segments := []timeline.Segment{
		{Start: 0, End: 1.5, Text: "Hello", Speaker: "spk1"},
		{Start: 1.6, End: 2.0, Text: "   ", Speaker: "spk2"},
		{Start: 3723.0456, End: 3725.9999, Text: "after an hour", Speaker: ""},
	}
	got := Format(segments)
	want := "1\n00:00:00,000 --> 00:00:01,500\nspk1: Hello\n\n" +
		"2\n01:02:03,046 --> 01:02:06,000\nafter an hour\n"
	if got != want {
		t.Fatalf("unexpected SRT:\n%q\nwant\n%q", got, want)
	}
}

func TestFormatEmpty(t *testing.T) {
	if got := Format(nil); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestFormatTimestampUnboundedHours(t *testing.T) {
	if got := FormatTimestamp(360000.25); got != "100:00:00,250" {
		t.Fatalf("unexpected timestamp %q", got)
	}
	if got := FormatTimestamp(-1); got != "00:00:00,000" {
		t.Fatalf("unexpected negative timestamp %q", got)
	}
}

func TestParseAcceptsVariants(t *testing.T) {
	content := "1\r\n00:00:01.250 --> 00:00:02,500\r\nspk2: line one\r\nline two\r\n\r\n\r\n" +
		"2\r\n00:00:03,000 --> 00:00:04,000 X1:10\r\nSPEAKER_1: untouched\r\n"
	got, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
	if got[0].Start != 1.25 || got[0].End != 2.5 || got[0].Speaker != "spk2" || got[0].Text != "line one\nline two" {
		t.Fatalf("unexpected first segment %+v", got[0])
	}
	if got[1].Speaker != "" || got[1].Text != "SPEAKER_1: untouched" {
		t.Fatalf("unexpected second segment %+v", got[1])
	}
}

func TestParseRejectsBadTiming(t *testing.T) {
	for _, content := range []string{
		"1\n00:00:01 --> 00:00:02,000\ntext\n",
		"1\nnot a timing line\ntext\n",
		"x\n00:00:01,000 --> 00:00:02,000\ntext\n",
		"1\n00:61:01,000 --> 00:00:02,000\ntext\n",
	} {
		if _, err := Parse(content); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}

func TestRoundTripNormalizedSegments(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	speakers := []string{"spk1", "spk2", "spk3", ""}
	for iter := 0; iter < 200; iter++ {
		n := 1 + r.IntN(10)
		raw := make([]timeline.Segment, n)
		for i := range raw {
			start := r.Float64() * 4000
			raw[i] = timeline.Segment{
				Start:   start,
				End:     start + r.Float64()*4,
				Text:    strings.Repeat("w", 1+r.IntN(20)),
				Speaker: speakers[r.IntN(len(speakers))],
			}
		}
		normalized := timeline.Normalize(raw)

		parsed, err := Parse(Format(normalized))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(parsed) != len(normalized) {
			t.Fatalf("expected %d segments, got %d", len(normalized), len(parsed))
		}
		for i := range parsed {
			if ms(parsed[i].Start) != ms(normalized[i].Start) || ms(parsed[i].End) != ms(normalized[i].End) {
				t.Fatalf("timing drift at %d: %+v vs %+v", i, parsed[i], normalized[i])
			}
			if parsed[i].Text != normalized[i].Text || parsed[i].Speaker != normalized[i].Speaker {
				t.Fatalf("content drift at %d: %+v vs %+v", i, parsed[i], normalized[i])
			}
		}
	}
}

func ms(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

func TestParseSpeakerPrefixInText(t *testing.T) {
	tests := []struct {
		name        string
		in          timeline.Segment
		wantText    string
		wantSpeaker string
	}{
		{"labelled keeps quoted prefix", timeline.Segment{Start: 0, End: 1, Text: "spk2: quoted", Speaker: "spk1"}, "spk2: quoted", "spk1"},
		{"unlabelled prefix reads as label", timeline.Segment{Start: 0, End: 1, Text: "spk2: quoted"}, "quoted", "spk2"},
		{"non-speaker prefix untouched", timeline.Segment{Start: 0, End: 1, Text: "note: quoted"}, "note: quoted", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(Format([]timeline.Segment{tt.in}))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(got) != 1 || got[0].Text != tt.wantText || got[0].Speaker != tt.wantSpeaker {
				t.Fatalf("got %+v, want text %q speaker %q", got, tt.wantText, tt.wantSpeaker)
			}
		})
	}
}

func TestParseStripsBOM(t *testing.T) {
	got, err := Parse("\uFEFF1\r\n00:00:00,000 --> 00:00:01,000\r\nspk1: hi\r\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 1 || got[0].Text != "hi" || got[0].Speaker != "spk1" {
		t.Fatalf("unexpected segments %+v", got)
	}
}
