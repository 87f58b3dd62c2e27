package subtitles

import (
	"strings"
	"testing"

	"captioner/internal/timeline"
)

func TestValidateClean(t *testing.T) {
	content := Format([]timeline.Segment{
		{Start: 0, End: 1, Text: "a", Speaker: "spk1"},
		{Start: 1.1, End: 2, Text: "b", Speaker: "spk1"},
	})
	if issues := Validate(content, 2); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	content := "1\n00:00:00,000 --> 00:00:02,000\na\n\n" +
		"3\n00:00:01,000 --> 00:00:00,500\nb\n\n" +
		"4\n00:00:09,000 --> 00:00:20,000\nc\n"
	issues := Validate(content, 10)
	joined := strings.Join(issues, "|")
	for _, want := range []string{"index_gap", "negative_duration", "overlap", "duration_mismatch"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %s in %v", want, issues)
		}
	}
}

func TestValidateEmptyAndUnparseable(t *testing.T) {
	if issues := Validate("  \n", 0); len(issues) != 1 || issues[0] != "empty_subtitle_file" {
		t.Fatalf("unexpected issues %v", issues)
	}
	if issues := Validate("1\nbroken\n", 0); len(issues) != 1 || !strings.HasPrefix(issues[0], "parse_error") {
		t.Fatalf("unexpected issues %v", issues)
	}
}
