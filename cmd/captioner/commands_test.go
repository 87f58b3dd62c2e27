package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"captioner/internal/delivery"
	"captioner/internal/engine"
	"captioner/internal/outbox"
	"captioner/internal/preflight"
	"captioner/internal/testsupport"
)

func TestWarmCommandListsLoadedEngines(t *testing.T) {
	env := setupCLITestEnv(t)
	res, err := runCLI(t, env, "", "warm", "--size", "base", "--json")
	if err != nil {
		t.Fatalf("warm: %v", err)
	}
	result := decodeJSON[warmResult](t, res.stdout)
	if result.Model != "base" {
		t.Fatalf("expected base model, got %q", result.Model)
	}
	if len(result.Loaded) != 1 || result.Loaded[0].Kind != engine.KindTranscription {
		t.Fatalf("unexpected loaded engines: %+v", result.Loaded)
	}
}

func TestRenderEngines(t *testing.T) {
	out := renderEngines([]engine.Info{
		{Kind: engine.KindTranscription, Model: "large-v3", Device: "cuda", Precision: "int8"},
		{Kind: engine.KindAlignment, Model: "wav2vec", Language: "en", Device: "cuda", Precision: "float16"},
	})
	for _, want := range []string{"Kind", "Precision", "large-v3", "int8", "wav2vec", "en"} {
		requireContains(t, out, want)
	}
	if strings.Contains(out, "KIND") {
		t.Fatal("expected headers to keep their case")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	res, err := runCLI(t, env, "", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, res.stdout)
	}
	report := decodeJSON[statusReport](t, res.stdout)
	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
		if !check.Passed && !check.Optional {
			t.Fatalf("check %s failed: %s", check.Name, check.Detail)
		}
	}
	requireContains(t, strings.Join(names, ","), "FFmpeg")

	env.sidecar.mu.Lock()
	env.sidecar.healthDown = true
	env.sidecar.mu.Unlock()
	if _, err := runCLI(t, env, "", "status", "--json"); err == nil {
		t.Fatal("expected status to fail when the sidecar is down")
	}
}

func TestRenderStatus(t *testing.T) {
	out := renderStatus(statusReport{
		Checks: []preflight.Result{
			{Name: "FFmpeg", Passed: true, Detail: "/usr/bin/ffmpeg"},
			{Name: "Hugging Face token", Detail: "not set", Optional: true},
			{Name: "Inference sidecar", Detail: "connection refused"},
		},
		Workspaces: 2,
	})
	for _, want := range []string{"OK", "WARN", "FAIL", "connection refused", "Job workspaces on disk: 2"} {
		requireContains(t, out, want)
	}
}

func seedOutbox(t *testing.T, env *cliTestEnv, endpoint string, jobIDs ...string) []outbox.Record {
	t.Helper()
	store, err := outbox.Open(env.cfg.OutboxPath())
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	defer store.Close()
	records := make([]outbox.Record, 0, len(jobIDs))
	for _, id := range jobIDs {
		rec, err := store.Save(context.Background(), id, endpoint, []byte(`{"id":"`+id+`","status":"COMPLETED"}`))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func TestDeliveriesListResumeDrop(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithPersistentDelivery())

	var hits atomic.Int32
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer callback.Close()

	records := seedOutbox(t, env, callback.URL, "job-a", "job-b")

	res, err := runCLI(t, env, "", "deliveries", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	pending := decodeJSON[[]outbox.Record](t, res.stdout)
	if len(pending) != 2 || pending[0].JobID != "job-a" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	res, err = runCLI(t, env, "", "deliveries", "drop", strconv.FormatInt(records[1].ID, 10))
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	requireContains(t, res.stdout, "Dropped delivery")
	if _, err := runCLI(t, env, "", "deliveries", "drop", strconv.FormatInt(records[1].ID, 10)); err == nil {
		t.Fatal("expected second drop to report not found")
	}

	res, err = runCLI(t, env, "", "deliveries", "resume", "--json")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	summary := decodeJSON[delivery.ResumeSummary](t, res.stdout)
	if summary.Pending != 1 || summary.Delivered != 1 || hits.Load() != 1 {
		t.Fatalf("unexpected resume summary %+v (hits=%d)", summary, hits.Load())
	}

	res, err = runCLI(t, env, "", "deliveries", "list", "--json")
	if err != nil {
		t.Fatalf("list after resume: %v", err)
	}
	if left := decodeJSON[[]outbox.Record](t, res.stdout); len(left) != 0 {
		t.Fatalf("expected empty outbox, got %+v", left)
	}
}

func TestDeliveriesDropRejectsBadID(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := runCLI(t, env, "", "deliveries", "drop", "abc"); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestRenderDeliveriesEmpty(t *testing.T) {
	if got := renderDeliveries(nil); got != "No pending deliveries" {
		t.Fatalf("unexpected empty rendering %q", got)
	}
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	res, err := runCLI(t, nil, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, res.stdout, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, nil, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected existing config to be protected")
	}
	if _, err := runCLI(t, nil, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	res, err := runCLI(t, env, "", "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, res.stdout, "Configuration valid")
	requireContains(t, res.stdout, env.configPath)
}

func TestConfigShowRedactsToken(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Engines.HFToken = "hf_secret_value"
	env.writeConfig(t)

	res, err := runCLI(t, env, "", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(res.stdout, "hf_secret_value") {
		t.Fatalf("token leaked in output:\n%s", res.stdout)
	}
	requireContains(t, res.stdout, "sidecar_url")
	requireContains(t, res.stdout, "********")
}

func TestDotEnvLoadedBeforeConfig(t *testing.T) {
	const key = "CAPTIONER_SIDECAR_URL"
	previous, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, previous)
		} else {
			_ = os.Unsetenv(key)
		}
	})

	env := setupCLITestEnv(t)
	dotenv := filepath.Join(env.baseDir, ".env")
	if err := os.WriteFile(dotenv, []byte(key+"=http://sidecar.internal:9000\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	ctx := newCommandContext()
	ctx.envFile = dotenv
	res, err := runCLIWithContext(t, ctx, env, "", "config", "show", "--json")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, res.stdout, "http://sidecar.internal:9000")
}
