// Package language normalizes language hints for the transcription engines.
//
// Hints may be ISO 639-1 or 639-2 codes, BCP 47 tags, English word forms, or
// "auto". Parsing is backed by golang.org/x/text/language.
package language
