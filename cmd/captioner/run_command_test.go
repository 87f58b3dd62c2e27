package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"captioner/internal/delivery"
	"captioner/internal/health"
	"captioner/internal/timeline"
	"captioner/internal/workflow"
)

func TestRunCommandWritesReportAndSubtitles(t *testing.T) {
	env := setupCLITestEnv(t)
	source := env.writeSource(t, "episode.mp3")
	srtPath := filepath.Join(env.baseDir, "episode.srt")

	res, err := runCLI(t, env, "", "run", source, "--id", "job-1", "--json", "--output", srtPath)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, res.stderr)
	}

	report := decodeJSON[workflow.Report](t, res.stdout)
	if report.JobID != "job-1" || report.Status != delivery.StatusCompleted {
		t.Fatalf("unexpected report identity: %+v", report)
	}
	if len(report.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(report.Segments))
	}
	if report.Segments[0].Speaker != "spk1" || report.Segments[1].Speaker != "spk2" {
		t.Fatalf("unexpected speakers: %q %q", report.Segments[0].Speaker, report.Segments[1].Speaker)
	}
	if report.Meta.DetectedLanguage != "en" || !report.Meta.Aligned || !report.Meta.Diarized {
		t.Fatalf("unexpected meta: %+v", report.Meta)
	}

	written, err := os.ReadFile(srtPath)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	if string(written) != report.SRT {
		t.Fatalf("srt file differs from report:\n%s\nvs\n%s", written, report.SRT)
	}
	requireContains(t, report.SRT, "spk2: General Kenobi.")

	entries, err := os.ReadDir(env.cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected job workspace to be removed, found %d entries", len(entries))
	}
}

func TestRunCommandDeliversCallback(t *testing.T) {
	env := setupCLITestEnv(t)
	source := env.writeSource(t, "episode.mp3")

	var mu sync.Mutex
	var bodies []string
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer callback.Close()

	res, err := runCLI(t, env, "", "run", source, "--json", "--callback", callback.URL+"/hook")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	report := decodeJSON[workflow.Report](t, res.stdout)
	if report.Delivery == nil || !report.Delivery.Delivered {
		t.Fatalf("expected delivered outcome, got %+v", report.Delivery)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("expected one callback, got %d", len(bodies))
	}
	requireContains(t, bodies[0], `"status":"COMPLETED"`)
	requireContains(t, bodies[0], `"id":"`+report.JobID+`"`)
}

func TestRunCommandFailsPreflight(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Media.FFmpegBinary = filepath.Join(env.baseDir, "missing", "ffmpeg")
	env.writeConfig(t)
	source := env.writeSource(t, "episode.mp3")

	res, err := runCLI(t, env, "", "run", source, "--json")
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	requireContains(t, err.Error(), "FFmpeg")
	if res.stdout != "" {
		t.Fatalf("expected no report on preflight failure, got %s", res.stdout)
	}
}

func TestRunCommandReportsFailedJob(t *testing.T) {
	env := setupCLITestEnv(t)
	env.sidecar.failOp = "transcribe"
	source := env.writeSource(t, "episode.mp3")

	res, err := runCLI(t, env, "", "run", source, "--json", "--id", "broken")
	if err == nil {
		t.Fatal("expected failed job to return an error")
	}
	requireContains(t, err.Error(), "job broken failed")

	report := decodeJSON[workflow.Report](t, res.stdout)
	if report.Status != delivery.StatusFailed || report.Final() != workflow.StageFailed {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Kind == "" {
		t.Fatal("expected error kind on failed report")
	}
}

func TestRunCommandMissingSource(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env, "", "run", filepath.Join(env.baseDir, "nope.mp3"))
	if err == nil {
		t.Fatal("expected missing source error")
	}
	requireContains(t, err.Error(), "nope.mp3")
}

func TestSourceFromArg(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name     string
		arg      string
		wantURL  string
		wantPath string
		wantErr  bool
	}{
		{name: "http", arg: "http://example.com/a.mp3", wantURL: "http://example.com/a.mp3"},
		{name: "https", arg: " https://example.com/a.mp3 ", wantURL: "https://example.com/a.mp3"},
		{name: "file", arg: file, wantPath: file},
		{name: "directory", arg: dir, wantErr: true},
		{name: "missing", arg: filepath.Join(dir, "missing.wav"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := sourceFromArg(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.arg)
				}
				return
			}
			if err != nil {
				t.Fatalf("sourceFromArg: %v", err)
			}
			if src.URL != tt.wantURL || src.Path != tt.wantPath {
				t.Fatalf("unexpected source: %+v", src)
			}
			if tt.wantPath != "" && src.Filename != "clip.wav" {
				t.Fatalf("expected filename clip.wav, got %q", src.Filename)
			}
		})
	}
}

func TestRenderReport(t *testing.T) {
	report := workflow.Report{
		JobID:  "job-7",
		Status: delivery.StatusCompleted,
		Segments: []timeline.Segment{
			{Start: 0, End: 1, Text: "hi", Speaker: "spk1"},
		},
		Health: &health.Report{TotalLines: 1, SpeakerCount: 1, Issues: []string{"diarization unavailable: no token"}},
		SRT:    "1\n00:00:00,000 --> 00:00:01,000\nspk1: hi\n",
		Meta:   workflow.Meta{Language: "auto", DetectedLanguage: "en", Model: "base", Device: "cpu", Precision: "float32"},
		Delivery: &delivery.Outcome{
			Attempts: 2,
			Error:    "callback returned HTTP 500",
		},
	}

	out := renderReport(report, true)
	for _, want := range []string{"job-7", "COMPLETED", "auto (detected en)", "cpu float32", "diarization unavailable: no token", "spk1: hi", "failed after 2 attempt(s)"} {
		requireContains(t, out, want)
	}
	if strings.Contains(renderReport(report, false), "spk1: hi") {
		t.Fatal("expected SRT to be omitted when written to a file")
	}
}
