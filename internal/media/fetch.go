package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"captioner/internal/logging"
	"captioner/internal/services"
)

// Source is the raw job input. Exactly one of URL, Data or Path is expected;
// URL wins when several are set.
type Source struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Empty reports whether the source carries no input at all.
func (s Source) Empty() bool {
	return strings.TrimSpace(s.URL) == "" && len(s.Data) == 0 && strings.TrimSpace(s.Path) == ""
}

// Describe returns a short, log-safe description of the source.
func (s Source) Describe() string {
	switch {
	case strings.TrimSpace(s.URL) != "":
		return s.URL
	case len(s.Data) > 0:
		return fmt.Sprintf("inline:%s (%d bytes)", s.name(), len(s.Data))
	default:
		return s.Path
	}
}

func (s Source) name() string {
	if name := path.Base(strings.TrimSpace(s.Filename)); name != "" && name != "." && name != "/" {
		return name
	}
	if parsed, err := url.Parse(strings.TrimSpace(s.URL)); err == nil {
		if name := path.Base(parsed.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return "source"
}

// Workspace hands out file locations for job-scoped files.
type Workspace interface {
	Path(name string) string
}

// Fetcher materializes job sources on local disk.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *slog.Logger
}

// NewFetcher constructs a fetcher. maxBytes <= 0 disables the size limit.
func NewFetcher(timeout time.Duration, maxBytes int64, userAgent string, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		userAgent: userAgent,
		logger:    logging.NewComponentLogger(logger, "fetcher"),
	}
}

// WithHTTPClient swaps the HTTP client (primarily for tests).
func (f *Fetcher) WithHTTPClient(client *http.Client) *Fetcher {
	if client != nil {
		f.client = client
	}
	return f
}

// Fetch returns a local path for src, downloading or writing it into ws when
// needed. Local paths are used in place.
func (f *Fetcher) Fetch(ctx context.Context, src Source, ws Workspace) (string, error) {
	switch {
	case strings.TrimSpace(src.URL) != "":
		return f.download(ctx, src, ws)
	case len(src.Data) > 0:
		if f.maxBytes > 0 && int64(len(src.Data)) > f.maxBytes {
			return "", services.Wrap(services.ErrValidation, "normalizing", "inline source",
				fmt.Sprintf("Inline file exceeds %d bytes", f.maxBytes), nil)
		}
		target := ws.Path("source-" + src.name())
		if err := os.WriteFile(target, src.Data, 0o644); err != nil {
			return "", services.Wrap(services.ErrMediaConversion, "normalizing", "inline source", "Failed to stage inline file", err)
		}
		return target, nil
	case strings.TrimSpace(src.Path) != "":
		info, err := os.Stat(src.Path)
		if err != nil {
			return "", services.Wrap(services.ErrFetch, "normalizing", "local source", "Source file is not readable", err)
		}
		if info.IsDir() {
			return "", services.Wrap(services.ErrFetch, "normalizing", "local source", "Source path is a directory", nil)
		}
		return src.Path, nil
	default:
		return "", services.Wrap(services.ErrInputMissing, "received", "validate input", "url or inline file required", nil)
	}
}

func (f *Fetcher) download(ctx context.Context, src Source, ws Workspace) (string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "normalizing", "download", "Invalid source URL", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "normalizing", "download", "Source download timed out", err)
		}
		return "", services.Wrap(services.ErrFetch, "normalizing", "download", "Source download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", services.Wrap(services.ErrFetch, "normalizing", "download",
			fmt.Sprintf("Source download returned %s", resp.Status), errors.New(strings.TrimSpace(string(snippet))))
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return "", services.Wrap(services.ErrValidation, "normalizing", "download",
			fmt.Sprintf("Source exceeds %d bytes", f.maxBytes), nil)
	}

	target := ws.Path("source-" + src.name())
	file, err := os.Create(target)
	if err != nil {
		return "", services.Wrap(services.ErrMediaConversion, "normalizing", "download", "Failed to create staging file", err)
	}
	defer file.Close()

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	written, err := io.Copy(file, body)
	if err != nil {
		removeQuietly(target)
		return "", services.Wrap(services.ErrFetch, "normalizing", "download", "Source download interrupted", err)
	}
	if f.maxBytes > 0 && written > f.maxBytes {
		removeQuietly(target)
		return "", services.Wrap(services.ErrValidation, "normalizing", "download",
			fmt.Sprintf("Source exceeds %d bytes", f.maxBytes), nil)
	}

	logging.WithContext(ctx, f.logger).Info("source downloaded",
		logging.String("url", src.URL),
		logging.Int64("bytes", written),
		logging.Duration("elapsed", time.Since(start)),
	)
	return target, nil
}
