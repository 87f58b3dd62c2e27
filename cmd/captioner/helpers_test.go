package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"captioner/internal/config"
	"captioner/internal/testsupport"
)

type fakeSidecar struct {
	mu         sync.Mutex
	models     []string
	failOp     string
	healthDown bool
}

func (f *fakeSidecar) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		down := f.healthDown
		f.mu.Unlock()
		if down {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("POST /v1/engines", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Kind        string `json:"kind"`
			Model       string `json:"model"`
			ComputeType string `json:"compute_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.models = append(f.models, req.Kind+":"+req.Model)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"id": req.Kind + "-1", "compute_type": req.ComputeType})
	})
	mux.HandleFunc("DELETE /v1/engines/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/engines/{id}/{op}", func(w http.ResponseWriter, r *http.Request) {
		op := r.PathValue("op")
		f.mu.Lock()
		fail := f.failOp == op
		f.mu.Unlock()
		if fail {
			http.Error(w, "inference crashed", http.StatusInternalServerError)
			return
		}
		switch op {
		case "transcribe":
			_, _ = io.WriteString(w, `{"language":"en","segments":[
				{"start":0,"end":1.2,"text":" Hello there."},
				{"start":1.4,"end":2.6,"text":" General Kenobi."}]}`)
		case "align":
			_, _ = io.WriteString(w, `{"segments":[
				{"words":[{"word":"Hello","start":0.1,"end":0.5},{"word":"there.","start":0.6,"end":1.1}]},
				{"words":[{"word":"General","start":1.5,"end":2.0},{"word":"Kenobi.","start":2.0,"end":2.5}]}]}`)
		case "diarize":
			_, _ = io.WriteString(w, `{"segments":[
				{"speaker":"SPEAKER_00","start":0,"end":1.3},
				{"speaker":"SPEAKER_01","start":1.3,"end":3}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func (f *fakeSidecar) loadedModels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	sidecar    *fakeSidecar
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	sidecar := &fakeSidecar{}
	srv := httptest.NewServer(sidecar.handler())
	t.Cleanup(srv.Close)

	opts = append([]testsupport.ConfigOption{testsupport.WithSidecarURL(srv.URL)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	base := testsupport.BaseDir(cfg)
	cfg.Media.FFmpegBinary = writeFakeFFmpeg(t, base)

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: filepath.Join(base, "config.toml"),
		sidecar:    sidecar,
		baseDir:    base,
	}
	env.writeConfig(t)
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T) {
	t.Helper()
	data, err := toml.Marshal(e.cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// writeFakeFFmpeg installs a script that copies a prepared 16 kHz WAV to its
// last argument, the way ffmpeg writes its output file.
func writeFakeFFmpeg(t *testing.T, base string) string {
	t.Helper()
	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	fixture := filepath.Join(binDir, "fixture.wav")
	testsupport.WriteWAV(t, fixture, 3)
	script := "#!/bin/sh\nfor last; do :; done\ncp '" + fixture + "' \"$last\"\n"
	target := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	return target
}

func (e *cliTestEnv) writeSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, name)
	testsupport.WriteFile(t, path, 2048)
	return path
}

type cliResult struct {
	stdout string
	stderr string
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) (cliResult, error) {
	t.Helper()
	ctx := newCommandContext()
	ctx.envFile = ""
	return runCLIWithContext(t, ctx, env, stdin, args...)
}

func runCLIWithContext(t *testing.T, ctx *commandContext, env *cliTestEnv, stdin string, args ...string) (cliResult, error) {
	t.Helper()
	cmd := newRootCommandWithContext(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	if env != nil {
		args = append([]string{"--config", env.configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String()}, err
}

func decodeJSON[T any](t *testing.T, data string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		t.Fatalf("decode JSON output: %v\n%s", err, data)
	}
	return v
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
