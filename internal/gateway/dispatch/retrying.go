package dispatch

import (
	"context"
	"errors"
	"time"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/logx"
)

type provider interface {
	AssignWorker(ctx context.Context, containerID, workerID string) error
	UnassignWorker(ctx context.Context, containerID string) error
	MoveToPool(ctx context.Context, containerID, poolID string) error
}

type counter interface {
	Inc()
}

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryingGateway retries idempotent provider calls with exponential backoff.
// AssignWorker is never retried.
type RetryingGateway struct {
	next    provider
	logger  logx.Logger
	retries counter
	cfg     RetryConfig
}

// NewRetryingGateway wraps next. It returns nil when next is nil.
func NewRetryingGateway(next provider, logger logx.Logger, retries counter, cfg RetryConfig) *RetryingGateway {
	if next == nil {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &RetryingGateway{next: next, logger: logger, retries: retries, cfg: cfg}
}

// AssignWorker calls the provider exactly once.
func (g *RetryingGateway) AssignWorker(ctx context.Context, containerID, workerID string) error {
	return g.next.AssignWorker(ctx, containerID, workerID)
}

// UnassignWorker retries transient failures.
func (g *RetryingGateway) UnassignWorker(ctx context.Context, containerID string) error {
	return g.retry(ctx, OpUnassign, containerID, func(ctx context.Context) error {
		return g.next.UnassignWorker(ctx, containerID)
	})
}

// MoveToPool retries transient failures.
func (g *RetryingGateway) MoveToPool(ctx context.Context, containerID, poolID string) error {
	return g.retry(ctx, OpMoveToPool, containerID, func(ctx context.Context) error {
		return g.next.MoveToPool(ctx, containerID, poolID)
	})
}

func (g *RetryingGateway) retry(ctx context.Context, op, containerID string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == g.cfg.MaxAttempts || !isRetryable(err) {
			break
		}
		delay := backoff(g.cfg.BaseDelay, g.cfg.MaxDelay, attempt)
		if g.retries != nil {
			g.retries.Inc()
		}
		g.logger.Warn("dispatch provider retry",
			logx.String("op", op),
			logx.String("container_id", containerID),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if !sleepWithContext(ctx, delay) {
			break
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	var se *apperr.SyncError
	return errors.As(err, &se) && se.Retryable
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 32 {
		return max
	}
	d := base << (attempt - 1)
	if d > max || d <= 0 {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
