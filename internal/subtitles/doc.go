// Package subtitles renders timelines as SRT and reads them back.
//
// Format writes one block per non-empty segment with consecutive 1-based
// indices and an "spkN: " prefix when the segment has a speaker. Parse
// accepts CRLF line endings and either "," or "." before the milliseconds.
// Validate reports structural problems in serialized content.
package subtitles
