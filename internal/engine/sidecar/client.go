package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"captioner/internal/engine"
	"captioner/internal/logging"
)

const (
	defaultTimeout = 30 * time.Minute
	maxErrorBody   = 2048
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for sidecar requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// Client talks to the inference sidecar. It implements engine.Loader.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a sidecar client. A non-positive timeout selects the default.
func New(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "sidecar"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// StatusError reports a non-2xx sidecar response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sidecar %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("sidecar %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Health checks that the sidecar is reachable and ready.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("health", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type createRequest struct {
	Kind        string `json:"kind"`
	Model       string `json:"model"`
	Language    string `json:"language,omitempty"`
	Device      string `json:"device,omitempty"`
	ComputeType string `json:"compute_type"`
	HFToken     string `json:"hf_token,omitempty"`
}

type createResponse struct {
	ID          string `json:"id"`
	ComputeType string `json:"compute_type"`
}

// Load creates a remote engine instance. A rejected compute type surfaces as
// a StatusError so the pool can retry with its fallback precision.
func (c *Client) Load(ctx context.Context, spec engine.LoadSpec) (engine.Engine, error) {
	payload := createRequest{
		Kind:        string(spec.Kind),
		Model:       spec.Model,
		Language:    spec.Language,
		Device:      spec.Device,
		ComputeType: spec.Precision,
	}
	if spec.Kind == engine.KindDiarization {
		payload.HFToken = spec.HFToken
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode engine request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/engines", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var created createResponse
	if err := c.do(req, "load", &created); err != nil {
		return nil, err
	}
	if strings.TrimSpace(created.ID) == "" {
		return nil, errors.New("sidecar load: response missing engine id")
	}

	base := remote{client: c, id: created.ID, computeType: strings.TrimSpace(created.ComputeType)}
	c.logger.Debug("remote engine created",
		logging.String("engine_id", created.ID),
		logging.String("kind", string(spec.Kind)),
		logging.String("compute_type", created.ComputeType),
	)
	switch spec.Kind {
	case engine.KindTranscription:
		return &transcriber{remote: base}, nil
	case engine.KindAlignment:
		return &aligner{remote: base}, nil
	case engine.KindDiarization:
		return &diarizer{remote: base}, nil
	default:
		_ = base.Close()
		return nil, fmt.Errorf("sidecar load: unknown engine kind %q", spec.Kind)
	}
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode sidecar %s response: %w", op, err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}

// form is a multipart body with the audio file attached. The first write
// error is kept and reported when the form is posted.
type form struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	err    error
}

func newAudioForm(audioPath string) (*form, error) {
	f := &form{}
	f.writer = multipart.NewWriter(&f.buf)
	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer audio.Close()
	part, err := f.writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	return f, nil
}

func (f *form) field(name, value string) {
	if value == "" || f.err != nil {
		return
	}
	if err := f.writer.WriteField(name, value); err != nil {
		f.err = fmt.Errorf("write form field %s: %w", name, err)
	}
}

func (c *Client) postForm(ctx context.Context, id, op string, f *form, out any) error {
	if f.err != nil {
		return f.err
	}
	if err := f.writer.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}
	endpoint := c.baseURL + "/v1/engines/" + url.PathEscape(id) + "/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &f.buf)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", f.writer.FormDataContentType())
	return c.do(req, op, out)
}
