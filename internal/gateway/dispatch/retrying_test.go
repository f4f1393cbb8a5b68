package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offer-dispatch/internal/apperr"
	testlog "offer-dispatch/internal/testutil"
)

type fakeProvider struct {
	assignFn   func(context.Context, string, string) error
	unassignFn func(context.Context, string) error
	poolFn     func(context.Context, string, string) error
}

func (f *fakeProvider) AssignWorker(ctx context.Context, c, w string) error {
	return f.assignFn(ctx, c, w)
}
func (f *fakeProvider) UnassignWorker(ctx context.Context, c string) error {
	return f.unassignFn(ctx, c)
}
func (f *fakeProvider) MoveToPool(ctx context.Context, c, p string) error { return f.poolFn(ctx, c, p) }

type counterStub struct{ n int64 }

func (c *counterStub) Inc()         { atomic.AddInt64(&c.n, 1) }
func (c *counterStub) Count() int64 { return atomic.LoadInt64(&c.n) }

func transient() error {
	return &apperr.SyncError{Op: OpUnassign, Container: "ct", StatusCode: 503, Retryable: true}
}

func TestRetryingGateway_UnassignRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	var calls int32
	next := &fakeProvider{unassignFn: func(context.Context, string) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return transient()
		}
		return nil
	}}
	ctr := &counterStub{}
	g := NewRetryingGateway(next, rec.Logger(), ctr, RetryConfig{MaxAttempts: 5})

	require.NoError(t, g.UnassignWorker(context.Background(), "ct"))
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Equal(t, int64(2), ctr.Count())
	require.Len(t, rec.Messages("warn"), 2)
}

func TestRetryingGateway_NoRetryOnPermanent(t *testing.T) {
	t.Parallel()

	var calls int32
	permanent := &apperr.SyncError{Op: OpMoveToPool, StatusCode: 409}
	next := &fakeProvider{poolFn: func(context.Context, string, string) error {
		atomic.AddInt32(&calls, 1)
		return permanent
	}}
	g := NewRetryingGateway(next, nil, nil, RetryConfig{MaxAttempts: 5})

	err := g.MoveToPool(context.Background(), "ct", "ops")
	require.ErrorIs(t, err, permanent)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryingGateway_StopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls int32
	next := &fakeProvider{unassignFn: func(context.Context, string) error {
		atomic.AddInt32(&calls, 1)
		return transient()
	}}
	g := NewRetryingGateway(next, nil, nil, RetryConfig{MaxAttempts: 3})

	require.ErrorIs(t, g.UnassignWorker(context.Background(), "ct"), apperr.ErrExternalSync)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetryingGateway_AssignIsNeverRetried(t *testing.T) {
	t.Parallel()

	var calls int32
	next := &fakeProvider{assignFn: func(context.Context, string, string) error {
		atomic.AddInt32(&calls, 1)
		return transient()
	}}
	g := NewRetryingGateway(next, nil, nil, RetryConfig{MaxAttempts: 5})

	require.Error(t, g.AssignWorker(context.Background(), "ct", "w"))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryingGateway_ContextCancelledStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	next := &fakeProvider{unassignFn: func(context.Context, string) error {
		atomic.AddInt32(&calls, 1)
		cancel()
		return transient()
	}}
	g := NewRetryingGateway(next, nil, nil, RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second})

	require.Error(t, g.UnassignWorker(ctx, "ct"))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewRetryingGateway_NilNext(t *testing.T) {
	t.Parallel()
	require.Nil(t, NewRetryingGateway(nil, nil, nil, RetryConfig{}))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100*time.Millisecond, backoff(100*time.Millisecond, time.Second, 1))
	require.Equal(t, 400*time.Millisecond, backoff(100*time.Millisecond, time.Second, 3))
	require.Equal(t, time.Second, backoff(100*time.Millisecond, time.Second, 10))
	require.Equal(t, time.Second, backoff(time.Second, time.Second, 80))
	require.Zero(t, backoff(0, time.Second, 3))
}
