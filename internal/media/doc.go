// Package media turns job input into the normalized audio the engines consume.
//
// Fetch places the job source (URL download, inline bytes, or a local path)
// into the job workspace. Normalizer converts it with ffmpeg to mono 16 kHz
// 16-bit PCM WAV, and Probe reads the result with go-wav to learn its
// duration.
package media
