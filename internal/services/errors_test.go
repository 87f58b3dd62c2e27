package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"captioner/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("exit status 1")
	err := services.Wrap(services.ErrMediaConversion, "normalizing", "ffmpeg", "convert to 16k mono", base)
	if !errors.Is(err, services.ErrMediaConversion) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"media conversion failed", "normalizing", "ffmpeg", "convert to 16k mono", "exit status 1"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestDetailsSurvivesOuterWrapping(t *testing.T) {
	inner := services.Wrap(services.ErrEngineUnavailable, "transcribing", "acquire", "no precision loaded", errors.New("cuda missing"))
	outer := fmt.Errorf("run job: %w", inner)

	details := services.Details(outer)
	if details.Kind != "engine_unavailable" {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Stage != "transcribing" || details.Operation != "acquire" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.Cause == nil || details.Cause.Error() != "cuda missing" {
		t.Fatalf("unexpected cause %v", details.Cause)
	}
}

func TestDetailsForPlainError(t *testing.T) {
	details := services.Details(errors.New("boom"))
	if details.Kind != "unknown" || details.Message != "boom" {
		t.Fatalf("unexpected details %+v", details)
	}
	if (services.Details(nil) != services.ErrorDetails{}) {
		t.Fatal("expected zero details for nil error")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"diarization", services.Wrap(services.ErrDiarization, "diarizing", "", "", nil), false},
		{"delivery", services.Wrap(services.ErrDelivery, "delivering", "", "", nil), false},
		{"transcription", services.Wrap(services.ErrTranscription, "transcribing", "", "", nil), true},
		{"plain", errors.New("x"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsFatal(tc.err); got != tc.fatal {
				t.Fatalf("IsFatal = %v, want %v", got, tc.fatal)
			}
		})
	}
}

func TestFailureMessage(t *testing.T) {
	err := services.Wrap(services.ErrInputMissing, "received", "validate", "url or inline file required", nil)
	if got := services.FailureMessage(err); got != "input missing: url or inline file required" {
		t.Fatalf("unexpected message %q", got)
	}
}
