package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testlog "offer-dispatch/internal/testutil"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (r *countingRunner) Run(ctx context.Context) (Report, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
		}
	}
	return Report{}, r.err
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	t.Parallel()

	r := &countingRunner{}
	s := NewScheduler(r, "@every 1s", time.Second, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&countingRunner{}, "every tuesday", time.Second, nil)
	err := s.Start(context.Background())
	require.ErrorContains(t, err, `schedule sweep "every tuesday"`)
}

func TestScheduler_TickLogsFailure(t *testing.T) {
	t.Parallel()

	logs := testlog.New()
	r := &countingRunner{err: errors.New("db down")}
	s := NewScheduler(r, "@every 1m", time.Second, logs.Logger())

	s.tick(context.Background())

	require.Equal(t, int32(1), r.calls.Load())
	_, ok := logs.Find("scheduled sweep failed")
	require.True(t, ok)
}

func TestScheduler_TickSkipsAfterShutdown(t *testing.T) {
	t.Parallel()

	r := &countingRunner{}
	s := NewScheduler(r, "@every 1m", time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.tick(ctx)

	require.Zero(t, r.calls.Load())
}

func TestScheduler_TickAppliesTimeout(t *testing.T) {
	t.Parallel()

	r := &countingRunner{delay: time.Minute}
	s := NewScheduler(r, "@every 1m", 20*time.Millisecond, nil)

	start := time.Now()
	s.tick(context.Background())

	require.Less(t, time.Since(start), 5*time.Second)
}

func TestKVFields(t *testing.T) {
	t.Parallel()

	got := kvFields([]interface{}{"entry", 3, "dangling"})
	require.Len(t, got, 1)
	require.Equal(t, "entry", got[0].Key)
}
