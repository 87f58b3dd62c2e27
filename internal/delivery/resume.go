package delivery

import (
	"context"
	"errors"
	"fmt"

	"captioner/internal/logging"
)

// ErrNoOutbox is returned by Resume when the dispatcher has no outbox.
var ErrNoOutbox = errors.New("delivery outbox not configured")

// ResumeSummary counts what a Resume pass did.
type ResumeSummary struct {
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Resume re-drives every pending outbox record. Records that already used
// their attempts still get one more. Only one process resumes at a time.
func (d *Dispatcher) Resume(ctx context.Context) (ResumeSummary, error) {
	var summary ResumeSummary
	if d.outbox == nil {
		return summary, ErrNoOutbox
	}
	lock, err := d.outbox.Lock()
	if err != nil {
		return summary, fmt.Errorf("resume deliveries: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			d.logger.Warn("failed to release outbox lock", logging.Error(err))
		}
	}()

	records, err := d.outbox.Pending(ctx)
	if err != nil {
		return summary, fmt.Errorf("list pending deliveries: %w", err)
	}
	summary.Pending = len(records)
	for _, rec := range records {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		logger := d.logger.With(
			logging.String(logging.FieldJobID, rec.JobID),
			logging.String("endpoint", rec.Endpoint),
			logging.Int64("record_id", rec.ID),
		)
		attempts := max(d.policy.MaxAttempts-rec.Attempts, 1)
		outcome := d.send(ctx, logger, rec.Endpoint, rec.Payload, rec.ID, attempts)
		if outcome.Delivered {
			summary.Delivered++
		} else {
			summary.Failed++
		}
	}
	if summary.Pending > 0 {
		d.logger.Info("resumed pending deliveries",
			logging.Int("pending", summary.Pending),
			logging.Int("delivered", summary.Delivered),
			logging.Int("failed", summary.Failed),
		)
	}
	return summary, nil
}
