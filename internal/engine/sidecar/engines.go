package sidecar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"captioner/internal/engine"
	"captioner/internal/language"
	"captioner/internal/timeline"
)

type remote struct {
	client      *Client
	id          string
	computeType string
}

// Precision returns the compute type the sidecar reported for this engine.
func (r remote) Precision() string { return r.computeType }

// Close deletes the remote engine instance.
func (r remote) Close() error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete,
		r.client.baseURL+"/v1/engines/"+url.PathEscape(r.id), nil)
	if err != nil {
		return fmt.Errorf("build close request: %w", err)
	}
	return r.client.do(req, "close", nil)
}

type rawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcriber struct{ remote }

type transcribeResponse struct {
	Language string       `json:"language"`
	Segments []rawSegment `json:"segments"`
}

func (t *transcriber) Transcribe(ctx context.Context, req engine.TranscribeRequest) (engine.Transcript, error) {
	f, err := newAudioForm(req.AudioPath)
	if err != nil {
		return engine.Transcript{}, err
	}
	if !language.IsAuto(req.Language) {
		f.field("language", req.Language)
	}
	var resp transcribeResponse
	if err := t.client.postForm(ctx, t.id, "transcribe", f, &resp); err != nil {
		return engine.Transcript{}, err
	}
	segments := make([]timeline.RawSegment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, timeline.RawSegment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return engine.Transcript{Language: resp.Language, Segments: segments}, nil
}

type aligner struct{ remote }

type alignedWord struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

type alignResponse struct {
	Segments []struct {
		Words []alignedWord `json:"words"`
	} `json:"segments"`
}

func (a *aligner) Align(ctx context.Context, req engine.AlignRequest) ([]timeline.Word, error) {
	f, err := newAudioForm(req.AudioPath)
	if err != nil {
		return nil, err
	}
	segments := make([]rawSegment, 0, len(req.Segments))
	for _, seg := range req.Segments {
		segments = append(segments, rawSegment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	encoded, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("encode segments: %w", err)
	}
	f.field("language", req.Language)
	f.field("segments", string(encoded))

	var resp alignResponse
	if err := a.client.postForm(ctx, a.id, "align", f, &resp); err != nil {
		return nil, err
	}
	var words []timeline.Word
	for _, seg := range resp.Segments {
		for _, w := range seg.Words {
			// Words the aligner could not place carry no timing.
			if w.Start == nil || w.End == nil || *w.End < *w.Start {
				continue
			}
			words = append(words, timeline.Word{Start: *w.Start, End: *w.End, Text: w.Word})
		}
	}
	return words, nil
}

type diarizer struct{ remote }

type diarizeResponse struct {
	Segments []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segments"`
}

func (d *diarizer) Diarize(ctx context.Context, req engine.DiarizeRequest) ([]timeline.SpeakerSpan, error) {
	f, err := newAudioForm(req.AudioPath)
	if err != nil {
		return nil, err
	}
	if req.MinSpeakers > 0 {
		f.field("min_speakers", strconv.Itoa(req.MinSpeakers))
	}
	if req.MaxSpeakers > 0 {
		f.field("max_speakers", strconv.Itoa(req.MaxSpeakers))
	}
	var resp diarizeResponse
	if err := d.client.postForm(ctx, d.id, "diarize", f, &resp); err != nil {
		return nil, err
	}
	ids := make(map[string]int)
	spans := make([]timeline.SpeakerSpan, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		id, ok := ids[seg.Speaker]
		if !ok {
			id = len(ids)
			ids[seg.Speaker] = id
		}
		spans = append(spans, timeline.SpeakerSpan{Start: seg.Start, End: seg.End, Speaker: id})
	}
	return spans, nil
}
