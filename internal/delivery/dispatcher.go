package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/gokit/resilience"

	"captioner/internal/config"
	"captioner/internal/logging"
	"captioner/internal/outbox"
	"captioner/internal/services"
)

// Status is the terminal job status carried in a notification.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Notification is one terminal job result bound for a callback endpoint.
type Notification struct {
	JobID    string
	Endpoint string
	Status   Status
	Input    any
	Output   any
	Error    string
}

type body struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Input  any    `json:"input,omitempty"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Body renders the JSON callback payload.
func (n Notification) Body() ([]byte, error) {
	return json.Marshal(body{ID: n.JobID, Status: n.Status, Input: n.Input, Output: n.Output, Error: n.Error})
}

// Outcome reports what happened to a delivery.
type Outcome struct {
	Delivered  bool   `json:"delivered"`
	Attempts   int    `json:"attempts"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
	Exhausted  bool   `json:"exhausted,omitempty"`
	Pending    bool   `json:"pending,omitempty"`
}

// Outbox persists deliveries across restarts.
type Outbox interface {
	Save(ctx context.Context, jobID, endpoint string, payload []byte) (outbox.Record, error)
	RecordAttempt(ctx context.Context, id int64, status int, outcome string) error
	Remove(ctx context.Context, id int64) error
	Pending(ctx context.Context) ([]outbox.Record, error)
	Lock() (*outbox.ResumeLock, error)
}

// Policy bounds each attempt and the retry schedule.
type Policy struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         float64
	UserAgent      string
}

const (
	defaultTimeout   = 30 * time.Second
	defaultJitter    = 0.2
	defaultUserAgent = "captioner/0.1.0"
)

// PolicyFromConfig builds the delivery policy from configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Timeout:        cfg.DeliveryTimeout(),
		MaxAttempts:    cfg.Delivery.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Delivery.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Delivery.MaxBackoffMS) * time.Millisecond,
		Jitter:         defaultJitter,
		UserAgent:      cfg.Delivery.UserAgent,
	}
}

func (p Policy) normalized() Policy {
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = defaultJitter
	}
	if strings.TrimSpace(p.UserAgent) == "" {
		p.UserAgent = defaultUserAgent
	}
	return p
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client. Its own timeout is left untouched;
// attempts are bounded by the policy timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithOutbox persists deliveries in store.
func WithOutbox(store Outbox) Option {
	return func(d *Dispatcher) {
		d.outbox = store
	}
}

// Dispatcher sends notifications.
type Dispatcher struct {
	policy Policy
	client *http.Client
	outbox Outbox
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with the given policy.
func NewDispatcher(policy Policy, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		policy: policy.normalized(),
		client: &http.Client{},
		logger: logging.NewComponentLogger(logger, "delivery"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Deliver sends n to its endpoint. The returned Outcome is informational.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification) Outcome {
	logger := logging.WithContext(ctx, d.logger).With(
		logging.String("endpoint", n.Endpoint),
		logging.String("status", string(n.Status)),
	)
	if strings.TrimSpace(n.Endpoint) == "" {
		return Outcome{Error: "no callback endpoint"}
	}
	payload, err := n.Body()
	if err != nil {
		logging.ErrorWithContext(logger, "encode callback payload", "delivery_encode_failed", logging.Error(err))
		return Outcome{Error: fmt.Sprintf("encode payload: %v", err)}
	}

	var recordID int64
	if d.outbox != nil {
		rec, err := d.outbox.Save(ctx, n.JobID, n.Endpoint, payload)
		if err != nil {
			logging.WarnWithContext(logger, "delivery not persisted", "delivery_persist_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "delivery cannot be resumed after a crash"),
			)
		} else {
			recordID = rec.ID
		}
	}
	return d.send(ctx, logger, n.Endpoint, payload, recordID, d.policy.MaxAttempts)
}

func (d *Dispatcher) send(ctx context.Context, logger *slog.Logger, endpoint string, payload []byte, recordID int64, attempts int) Outcome {
	var outcome Outcome
	cfg := retryConfig(d.policy, attempts)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("callback attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Int("status_code", statusOf(err)),
			logging.Duration("retry_in", wait),
			logging.Error(err),
		)
	}

	lastErr := resilience.RetryFunc(ctx, cfg, func() error {
		status, err := d.post(ctx, endpoint, payload)
		outcome.Attempts++
		outcome.StatusCode = status
		d.recordAttempt(ctx, logger, recordID, status, err)
		return err
	})
	if lastErr == nil {
		outcome.Delivered = true
		d.removeRecord(ctx, logger, recordID)
		logger.Info("callback delivered",
			logging.Int("attempts", outcome.Attempts),
			logging.Int("status_code", outcome.StatusCode),
		)
		return outcome
	}
	outcome.Error = lastErr.Error()

	// A cancelled caller leaves the record for Resume.
	if ctx.Err() != nil && recordID != 0 {
		outcome.Pending = true
		return outcome
	}
	outcome.Exhausted = true
	d.removeRecord(ctx, logger, recordID)
	logging.ErrorWithContext(logger, "callback delivery failed", "delivery_exhausted",
		logging.Int("attempts", outcome.Attempts),
		logging.Int("status_code", outcome.StatusCode),
		logging.Error(services.Wrap(services.ErrDelivery, "delivering", "post callback", "Callback delivery exhausted", lastErr)),
		logging.String(logging.FieldErrorHint, "verify the callback endpoint is reachable"),
		logging.String(logging.FieldImpact, "caller was not notified of the job result"),
	)
	return outcome
}

// post performs one bounded attempt. A returned status of zero means no
// response was received.
func (d *Dispatcher) post(ctx context.Context, endpoint string, payload []byte) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.policy.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, &permanentError{err: fmt.Errorf("build callback request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.policy.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(data))
		return resp.StatusCode, &statusError{status: resp.StatusCode, body: msg}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (d *Dispatcher) recordAttempt(ctx context.Context, logger *slog.Logger, id int64, status int, err error) {
	if d.outbox == nil || id == 0 {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = err.Error()
	}
	if recErr := d.outbox.RecordAttempt(context.WithoutCancel(ctx), id, status, outcome); recErr != nil {
		logger.Warn("failed to record delivery attempt", logging.Int64("record_id", id), logging.Error(recErr))
	}
}

func (d *Dispatcher) removeRecord(ctx context.Context, logger *slog.Logger, id int64) {
	if d.outbox == nil || id == 0 {
		return
	}
	if err := d.outbox.Remove(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, outbox.ErrNotFound) {
		logger.Warn("failed to remove delivery record", logging.Int64("record_id", id), logging.Error(err))
	}
}
