package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Auto requests language detection by the transcription engine.
const Auto = "auto"

// Word forms and bibliographic ISO 639-2 codes that callers commonly send.
var aliases = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"fre":        "fr",
	"german":     "de",
	"ger":        "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"chi":        "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"dut":        "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
}

// Normalize converts a caller-supplied language hint to the shortest ISO 639
// code. Empty input and "auto" both map to Auto.
func Normalize(value string) (string, error) {
	code := strings.ToLower(strings.TrimSpace(value))
	if code == "" || code == Auto {
		return Auto, nil
	}
	if mapped, ok := aliases[code]; ok {
		return mapped, nil
	}
	// Region and script subtags are irrelevant to speech models.
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}
	base, err := language.ParseBase(code)
	if err != nil {
		return "", fmt.Errorf("unknown language %q", value)
	}
	return base.String(), nil
}

// IsAuto reports whether the hint requests detection.
func IsAuto(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	return code == "" || code == Auto
}

// DisplayName returns the English name for a language code. Returns "Auto" for
// detection and the uppercased code when the name is unknown.
func DisplayName(code string) string {
	if IsAuto(code) {
		return "Auto"
	}
	normalized, err := Normalize(code)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	name := display.English.Languages().Name(language.Make(normalized))
	if name == "" {
		return strings.ToUpper(normalized)
	}
	return name
}

// Resolve picks the effective language for a job: the job hint when given,
// otherwise the configured default.
func Resolve(hint, fallback string) (string, error) {
	if strings.TrimSpace(hint) != "" {
		return Normalize(hint)
	}
	return Normalize(fallback)
}
