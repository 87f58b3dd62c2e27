// Package timeline assembles subtitle segments from independently produced
// transcription, alignment and diarization results.
//
// Alignment and diarization are optional stages. Their results arrive as
// tagged values (Words, Speakers) that are either available or carry the
// reason they are not, and Assemble branches on that explicitly.
package timeline
