package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"captioner/internal/engine"
	"captioner/internal/logging"
	"captioner/internal/testsupport"
	"captioner/internal/timeline"
)

type fakeSidecar struct {
	mu       sync.Mutex
	created  []createRequest
	deleted  []string
	forms    map[string]map[string]string
	rejectCT string
	actualCT string
}

func newFakeSidecar(t *testing.T) (*fakeSidecar, *httptest.Server) {
	t.Helper()
	fs := &fakeSidecar{forms: make(map[string]map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("POST /v1/engines", func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.created = append(fs.created, req)
		fs.mu.Unlock()
		if req.ComputeType == fs.rejectCT {
			http.Error(w, "compute type not supported", http.StatusUnprocessableEntity)
			return
		}
		computeType := req.ComputeType
		if fs.actualCT != "" {
			computeType = fs.actualCT
		}
		_ = json.NewEncoder(w).Encode(createResponse{ID: req.Kind + "-1", ComputeType: computeType})
	})
	mux.HandleFunc("DELETE /v1/engines/{id}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.deleted = append(fs.deleted, r.PathValue("id"))
		fs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/engines/{id}/{op}", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("audio"); err != nil {
			http.Error(w, "audio required", http.StatusBadRequest)
			return
		}
		values := make(map[string]string)
		for k, v := range r.MultipartForm.Value {
			values[k] = v[0]
		}
		op := r.PathValue("op")
		fs.mu.Lock()
		fs.forms[op] = values
		fs.mu.Unlock()
		switch op {
		case "transcribe":
			_, _ = io.WriteString(w, `{"language":"en","segments":[{"start":0,"end":1.5,"text":" hello there"}]}`)
		case "align":
			_, _ = io.WriteString(w, `{"segments":[{"start":0,"end":1.5,"text":"hello there","words":[
				{"word":"hello","start":0.1,"end":0.5},
				{"word":"uh"},
				{"word":"there","start":0.6,"end":1.4}]}]}`)
		case "diarize":
			_, _ = io.WriteString(w, `{"segments":[
				{"speaker":"SPEAKER_01","start":0,"end":1},
				{"speaker":"SPEAKER_00","start":1,"end":2},
				{"speaker":"SPEAKER_01","start":2,"end":3}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	testsupport.WriteWAV(t, path, 1)
	return path
}

func TestHealth(t *testing.T) {
	_, srv := newFakeSidecar(t)
	client := New(srv.URL, time.Second, logging.NewNop())
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	err := New(down.URL, time.Second, logging.NewNop()).Health(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 status error, got %v", err)
	}
}

func TestLoadRejectedComputeType(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.rejectCT = "float16"
	client := New(srv.URL, time.Second, logging.NewNop())

	_, err := client.Load(context.Background(), engine.LoadSpec{Kind: engine.KindTranscription, Model: "base", Precision: "float16"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected rejected load, got %v", err)
	}
	if !strings.Contains(err.Error(), "compute type not supported") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestTranscribeAlignDiarize(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	client := New(srv.URL, time.Second, logging.NewNop())
	audio := writeAudio(t)
	ctx := context.Background()

	eng, err := client.Load(ctx, engine.LoadSpec{Kind: engine.KindTranscription, Model: "base", Device: "cpu", Precision: "float32"})
	if err != nil {
		t.Fatalf("Load transcription: %v", err)
	}
	transcript, err := eng.(engine.Transcriber).Transcribe(ctx, engine.TranscribeRequest{AudioPath: audio, Language: "auto"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if transcript.Language != "en" || len(transcript.Segments) != 1 || transcript.Segments[0].End != 1.5 {
		t.Fatalf("unexpected transcript %+v", transcript)
	}
	if _, ok := fs.forms["transcribe"]["language"]; ok {
		t.Fatal("expected auto language to be omitted")
	}

	eng, err = client.Load(ctx, engine.LoadSpec{Kind: engine.KindAlignment, Language: "en", Precision: "float32"})
	if err != nil {
		t.Fatalf("Load alignment: %v", err)
	}
	words, err := eng.(engine.Aligner).Align(ctx, engine.AlignRequest{AudioPath: audio, Language: "en", Segments: transcript.Segments})
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(words) != 2 || words[0].Text != "hello" || words[1].Text != "there" {
		t.Fatalf("expected untimed word dropped, got %+v", words)
	}
	var sent []rawSegment
	if err := json.Unmarshal([]byte(fs.forms["align"]["segments"]), &sent); err != nil || len(sent) != 1 {
		t.Fatalf("expected segments form field, got %q (%v)", fs.forms["align"]["segments"], err)
	}

	eng, err = client.Load(ctx, engine.LoadSpec{Kind: engine.KindDiarization, Model: "pyannote", Precision: "float32", HFToken: "hf_x"})
	if err != nil {
		t.Fatalf("Load diarization: %v", err)
	}
	if fs.created[len(fs.created)-1].HFToken != "hf_x" {
		t.Fatal("expected hf token forwarded for diarization")
	}
	lo, hi := engine.SpeakerRange(2)
	spans, err := eng.(engine.Diarizer).Diarize(ctx, engine.DiarizeRequest{AudioPath: audio, MinSpeakers: lo, MaxSpeakers: hi})
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	want := []timeline.SpeakerSpan{{Start: 0, End: 1, Speaker: 0}, {Start: 1, End: 2, Speaker: 1}, {Start: 2, End: 3, Speaker: 0}}
	if len(spans) != len(want) {
		t.Fatalf("unexpected spans %+v", spans)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Fatalf("span %d: got %+v want %+v", i, spans[i], want[i])
		}
	}
	if fs.forms["diarize"]["min_speakers"] != "2" || fs.forms["diarize"]["max_speakers"] != "2" {
		t.Fatalf("unexpected diarize form %+v", fs.forms["diarize"])
	}

	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(fs.deleted) != 1 || fs.deleted[0] != "diarization-1" {
		t.Fatalf("expected engine deleted, got %v", fs.deleted)
	}
}

func TestPoolFallsBackThroughSidecar(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.rejectCT = "float16"
	pool := engine.NewPool(New(srv.URL, time.Second, logging.NewNop()), logging.NewNop())
	defer pool.Close()

	h, err := pool.Acquire(context.Background(), engine.KindTranscription, engine.Config{Model: "base", Device: "cuda", FallbackPrecision: "int8"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Precision() != "int8" {
		t.Fatalf("expected int8 fallback, got %q", h.Precision())
	}
}

func TestHandleReportsSidecarComputeType(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.actualCT = "int8_float16"
	pool := engine.NewPool(New(srv.URL, time.Second, logging.NewNop()), logging.NewNop())
	defer pool.Close()

	h, err := pool.Acquire(context.Background(), engine.KindTranscription, engine.Config{Model: "base", Device: "cuda", Precision: "float16"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Precision() != "int8_float16" {
		t.Fatalf("expected sidecar compute type, got %q", h.Precision())
	}
	if h.Key().Precision != "float16" {
		t.Fatalf("expected key to keep the requested precision, got %q", h.Key().Precision)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestFormFieldErrorSurfaces(t *testing.T) {
	f := &form{writer: multipart.NewWriter(failingWriter{})}
	f.field("language", "en")
	f.field("segments", "[]")
	client := New("http://127.0.0.1:1", time.Second, logging.NewNop())
	err := client.postForm(context.Background(), "id", "align", f, nil)
	if err == nil || !strings.Contains(err.Error(), "write form field language") {
		t.Fatalf("expected form write error, got %v", err)
	}
}
