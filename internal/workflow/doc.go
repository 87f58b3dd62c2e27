// Package workflow drives a single captioning job from raw input to a
// delivered report.
//
// The Orchestrator advances a job through RECEIVED, NORMALIZING,
// TRANSCRIBING, ALIGNING, DIARIZING, ASSEMBLING, REPORTING and DELIVERING to
// DONE. Faults while normalizing or transcribing (and while aligning when
// alignment is required) jump straight to a failure notification and the
// FAILED terminal state. Alignment otherwise degrades to segment-level timing
// and diarization always degrades to a single default speaker.
//
// Every job owns a staging.Workspace that holds the fetched source and the
// normalized audio. It is released on every exit path, after delivery.
package workflow
