package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"captioner/internal/logging"
)

func TestWorkspaceLifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "staging")

	ws, err := NewWorkspace(root, "job/../42", logging.NewNop())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if filepath.Dir(ws.Dir()) != root {
		t.Fatalf("workspace %q not under %q", ws.Dir(), root)
	}
	if !strings.HasPrefix(filepath.Base(ws.Dir()), "job-job_.._42-") {
		t.Fatalf("unexpected workspace name %q", filepath.Base(ws.Dir()))
	}

	target := ws.Path("../../etc/passwd")
	if filepath.Dir(target) != ws.Dir() {
		t.Fatalf("Path escaped workspace: %q", target)
	}
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("second Release should be a no-op: %v", err)
	}
}

func TestWorkspacesAreDistinctPerCall(t *testing.T) {
	root := t.TempDir()
	a, err := NewWorkspace(root, "same", logging.NewNop())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	b, err := NewWorkspace(root, "same", logging.NewNop())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if a.Dir() == b.Dir() {
		t.Fatal("expected distinct directories for concurrent jobs with the same id")
	}
}

func TestSanitizeNameEmpty(t *testing.T) {
	if got := sanitizeName("  "); got != "anon" {
		t.Fatalf("sanitizeName = %q", got)
	}
}
