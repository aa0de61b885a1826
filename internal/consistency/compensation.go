package consistency

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/dreamware/taograph/internal/wal"
)

// scheduleCompensation inverts every compensatable operation in ops and
// enqueues the inverse for best-effort application. Operations with no
// safe automatic inverse (object updates/deletes) are logged and
// skipped, matching spec.md §4.8's "best-effort — log as
// un-compensatable" for those cases.
func (m *Manager) scheduleCompensation(ops []wal.Operation) {
	for _, op := range ops {
		inverted, ok := op.Invert()
		if !ok {
			m.logger.Warn("operation has no safe automatic inverse, skipping compensation",
				zap.String("type", string(op.Type)))
			continue
		}
		select {
		case m.compensationQueue <- inverted:
		default:
			m.logger.Error("compensation queue full, dropping compensating operation",
				zap.String("type", string(inverted.Type)))
		}
	}
}

func (m *Manager) compensationWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case op := <-m.compensationQueue:
			m.runCompensation(ctx, op)
		}
	}
}

// runCompensation retries op through a standard exponential backoff
// (github.com/cenkalti/backoff/v4), bounded by
// cfg.MaxCompensationAttempts. This is a plain library-driven retry
// loop, distinct from the WAL's own exact-doubling schedule, because
// compensation has no durability contract of its own to match.
func (m *Manager) runCompensation(ctx context.Context, op wal.Operation) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.CompensationRetryDelay
	b.MaxElapsedTime = 0

	attempt := 0
	// WithMaxRetries counts retries after the first attempt.
	maxRetries := 0
	if m.cfg.MaxCompensationAttempts > 1 {
		maxRetries = m.cfg.MaxCompensationAttempts - 1
	}
	retryable := backoff.WithMaxRetries(b, uint64(maxRetries))

	err := backoff.Retry(func() error {
		attempt++
		if err := m.apply(ctx, op); err != nil {
			return err
		}
		return nil
	}, retryable)

	if err != nil {
		m.logger.Error("compensation exhausted retries, giving up",
			zap.String("type", string(op.Type)), zap.Int("attempts", attempt), zap.Error(err))
	}
}
