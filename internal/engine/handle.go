package engine

import (
	"context"
	"fmt"
	"slices"

	"captioner/internal/services"
	"captioner/internal/timeline"
)

// Handle is a shared, loaded engine. Inference calls hold the handle's slot,
// so concurrent callers are serialized.
type Handle struct {
	key       Key
	precision string
	engine    Engine
	slot      chan struct{}
}

func newHandle(key Key, precision string, engine Engine) *Handle {
	return &Handle{key: key, precision: precision, engine: engine, slot: make(chan struct{}, 1)}
}

// Kind returns the capability this handle provides.
func (h *Handle) Kind() Kind { return h.key.Kind }

// Key returns the pool key the handle was cached under.
func (h *Handle) Key() Key { return h.key }

// Precision returns the compute type that actually loaded.
func (h *Handle) Precision() string { return h.precision }

// acquire waits for the slot. Only the wait honours ctx.
func (h *Handle) acquire(ctx context.Context) error {
	select {
	case h.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) release() {
	<-h.slot
}

// Transcribe runs the transcription engine.
func (h *Handle) Transcribe(ctx context.Context, req TranscribeRequest) (Transcript, error) {
	transcriber, ok := h.engine.(Transcriber)
	if !ok || h.key.Kind != KindTranscription {
		return Transcript{}, fmt.Errorf("transcribe on %s engine: %w", h.key.Kind, ErrWrongKind)
	}
	if err := h.acquire(ctx); err != nil {
		return Transcript{}, services.Wrap(services.ErrTimeout, "transcribing", "wait for engine", "Cancelled while waiting for transcription engine", err)
	}
	defer h.release()

	transcript, err := transcriber.Transcribe(context.WithoutCancel(ctx), req)
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrTranscription, "transcribing", "transcribe", "Transcription failed", err)
	}
	slices.SortStableFunc(transcript.Segments, func(a, b timeline.RawSegment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return transcript, nil
}

// Align runs the alignment engine.
func (h *Handle) Align(ctx context.Context, req AlignRequest) ([]timeline.Word, error) {
	aligner, ok := h.engine.(Aligner)
	if !ok || h.key.Kind != KindAlignment {
		return nil, fmt.Errorf("align on %s engine: %w", h.key.Kind, ErrWrongKind)
	}
	if err := h.acquire(ctx); err != nil {
		return nil, services.Wrap(services.ErrTimeout, "aligning", "wait for engine", "Cancelled while waiting for alignment engine", err)
	}
	defer h.release()

	words, err := aligner.Align(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, services.Wrap(services.ErrAlignment, "aligning", "align", "Alignment failed", err)
	}
	return words, nil
}

// Diarize runs the diarization engine.
func (h *Handle) Diarize(ctx context.Context, req DiarizeRequest) ([]timeline.SpeakerSpan, error) {
	diarizer, ok := h.engine.(Diarizer)
	if !ok || h.key.Kind != KindDiarization {
		return nil, fmt.Errorf("diarize on %s engine: %w", h.key.Kind, ErrWrongKind)
	}
	if err := h.acquire(ctx); err != nil {
		return nil, services.Wrap(services.ErrTimeout, "diarizing", "wait for engine", "Cancelled while waiting for diarization engine", err)
	}
	defer h.release()

	spans, err := diarizer.Diarize(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, services.Wrap(services.ErrDiarization, "diarizing", "diarize", "Diarization failed", err)
	}
	return spans, nil
}
