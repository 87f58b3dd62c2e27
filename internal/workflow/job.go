package workflow

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"captioner/internal/language"
	"captioner/internal/media"
	"captioner/internal/services"
)

// MaxSpeakers bounds the expected speaker count a job may request.
const MaxSpeakers = 32

// Options tunes processing for one job.
type Options struct {
	Language     string `json:"language,omitempty"`
	SpeakerCount int    `json:"speakerCount,omitempty" validate:"gte=0,lte=32"`
	Size         string `json:"model,omitempty" validate:"omitempty,max=64"`
}

// Job is one accepted captioning request. It is not modified once Run starts.
type Job struct {
	ID          string       `json:"id" validate:"required,max=128"`
	Input       media.Source `json:"input"`
	Options     Options      `json:"options"`
	CallbackURL string       `json:"callbackUrl,omitempty" validate:"omitempty,http_url"`
	// Echo is the caller's raw input, returned in the callback so the caller
	// can correlate it. Nil echoes the fields above.
	Echo map[string]any `json:"-"`
}

// sourceRules carries the validated view of the job input.
type sourceRules struct {
	URL string `json:"url" validate:"omitempty,http_url"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ensureID assigns a generated id when the intake did not supply one.
func (j *Job) ensureID() {
	if strings.TrimSpace(j.ID) == "" {
		j.ID = uuid.NewString()
	}
}

// Validate checks the job before any resource is touched. A missing input is
// reported as services.ErrInputMissing ahead of any other problem.
func (j Job) Validate() error {
	if j.Input.Empty() {
		return services.Wrap(services.ErrInputMissing, "received", "validate job", "url or inline file required", nil)
	}
	v := getValidator()
	var messages []string
	for _, target := range []any{j, sourceRules{URL: strings.TrimSpace(j.Input.URL)}} {
		if err := v.Struct(target); err != nil {
			var fieldErrs validator.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				return services.Wrap(services.ErrValidation, "received", "validate job", "Invalid job", err)
			}
			for _, fe := range fieldErrs {
				messages = append(messages, fe.Field()+": "+describeRule(fe))
			}
		}
	}
	if len(messages) > 0 {
		return services.Wrap(services.ErrValidation, "received", "validate job", strings.Join(messages, "; "), nil)
	}
	if _, err := language.Normalize(j.Options.Language); err != nil {
		return services.Wrap(services.ErrValidation, "received", "validate job", "language: unknown language code", err)
	}
	return nil
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return "must be an http(s) URL"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
