package services

import (
	"errors"
	"strings"
)

var (
	ErrInputMissing      = errors.New("input missing")
	ErrFetch             = errors.New("source fetch failed")
	ErrMediaConversion   = errors.New("media conversion failed")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrTranscription     = errors.New("transcription failed")
	ErrAlignment         = errors.New("alignment failed")
	ErrDiarization       = errors.New("diarization failed")
	ErrDelivery          = errors.New("delivery failed")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrTimeout           = errors.New("timeout")
)

// Error carries a sentinel marker plus the stage context that produced it.
// Both the marker and the wrapped cause are reachable through errors.Is.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Marker.Error())
	b.WriteString(": ")
	b.WriteString(buildDetail(e.Stage, e.Operation, e.Message))
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrValidation
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the flattened view of a wrapped error used by log records and
// user facing failure messages.
type ErrorDetails struct {
	Kind      string
	Stage     string
	Operation string
	Message   string
	Cause     error
}

var markers = []error{
	ErrInputMissing,
	ErrFetch,
	ErrMediaConversion,
	ErrEngineUnavailable,
	ErrTranscription,
	ErrAlignment,
	ErrDiarization,
	ErrDelivery,
	ErrValidation,
	ErrConfiguration,
	ErrTimeout,
}

// Details extracts the outermost wrapped error context. Errors that were never
// passed through Wrap still report a kind when they match a known marker.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return ErrorDetails{
			Kind:      kindOf(svcErr.Marker),
			Stage:     svcErr.Stage,
			Operation: svcErr.Operation,
			Message:   svcErr.Message,
			Cause:     svcErr.Cause,
		}
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return ErrorDetails{Kind: kindOf(marker), Message: err.Error(), Cause: err}
		}
	}
	return ErrorDetails{Kind: "unknown", Message: err.Error(), Cause: err}
}

// IsFatal reports whether the error must terminate a job. Diarization and
// delivery failures are absorbed where they are detected.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDiarization) && !errors.Is(err, ErrDelivery)
}

// FailureMessage renders the human readable message reported for a failed job.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	details := Details(err)
	parts := make([]string, 0, 3)
	if details.Kind != "" && details.Kind != "unknown" {
		parts = append(parts, strings.ReplaceAll(details.Kind, "_", " "))
	}
	if details.Message != "" && details.Message != err.Error() {
		parts = append(parts, details.Message)
	}
	if details.Cause != nil {
		parts = append(parts, strings.TrimSpace(details.Cause.Error()))
	}
	if len(parts) == 0 {
		return strings.TrimSpace(err.Error())
	}
	return strings.Join(parts, ": ")
}

func kindOf(marker error) string {
	switch marker {
	case ErrInputMissing:
		return "input_missing"
	case ErrFetch:
		return "fetch_failed"
	case ErrMediaConversion:
		return "media_conversion_failed"
	case ErrEngineUnavailable:
		return "engine_unavailable"
	case ErrTranscription:
		return "transcription_failed"
	case ErrAlignment:
		return "alignment_failed"
	case ErrDiarization:
		return "diarization_failed"
	case ErrDelivery:
		return "delivery_failed"
	case ErrValidation:
		return "validation"
	case ErrConfiguration:
		return "configuration"
	case ErrTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
