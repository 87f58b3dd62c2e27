package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"captioner/internal/logging"
)

const workspacePrefix = "job-"

// Workspace is the scoped temporary directory that holds one job's source
// bytes and normalized audio. Release removes it and is safe to call more
// than once.
type Workspace struct {
	dir    string
	jobID  string
	logger *slog.Logger

	once       sync.Once
	releaseErr error
}

// NewWorkspace creates a fresh workspace for jobID under root.
func NewWorkspace(root, jobID string, logger *slog.Logger) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	dir, err := os.MkdirTemp(root, workspacePrefix+sanitizeName(jobID)+"-")
	if err != nil {
		return nil, fmt.Errorf("create job workspace: %w", err)
	}
	return &Workspace{dir: dir, jobID: jobID, logger: logging.NewComponentLogger(logger, "staging")}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns a location for name inside the workspace. Directory components
// in name are discarded so callers cannot escape the workspace.
func (w *Workspace) Path(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "file"
	}
	return filepath.Join(w.dir, base)
}

// Release deletes the workspace and everything in it.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.releaseErr = os.RemoveAll(w.dir)
		if w.releaseErr != nil {
			logging.WarnWithContext(w.logger, "failed to remove job workspace", "staging_release_failed",
				logging.String(logging.FieldJobID, w.jobID),
				logging.String("path", w.dir),
				logging.Error(w.releaseErr),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed until stale cleanup"),
			)
			return
		}
		w.logger.Debug("job workspace released",
			logging.String(logging.FieldJobID, w.jobID),
			logging.String("path", w.dir),
		)
	})
	return w.releaseErr
}

func sanitizeName(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 48 {
			break
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}
