package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const sidecarTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary resolves command on PATH.
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", command)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckSidecar verifies the inference sidecar answers its health endpoint.
func CheckSidecar(ctx context.Context, url string, sidecar Pinger) Result {
	const name = "Inference sidecar"

	checkCtx, cancel := context.WithTimeout(ctx, sidecarTimeout)
	defer cancel()
	if err := sidecar.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", url, summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (ready)", url)}
}

// CheckHFToken reports whether a Hugging Face token is configured. Gated
// diarization models cannot download without one, but a sidecar with cached
// models still works.
func CheckHFToken(token string) Result {
	const name = "Hugging Face token"
	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Optional: true, Detail: "not set (gated diarization models may fail to load)"}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: "configured"}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "unreachable: " + opErr.Err.Error()
	}
	return err.Error()
}
