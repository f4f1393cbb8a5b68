package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"offer-dispatch/internal/http/pprofserver"
	"offer-dispatch/internal/logx"
	"offer-dispatch/internal/service/sweep"
	testlog "offer-dispatch/internal/testutil"
	"offer-dispatch/internal/transport/kafka"
)

type idleSweeper struct{}

func (idleSweeper) Run(context.Context) (sweep.Report, error) { return sweep.Report{}, nil }

func loggerContainer(t *testing.T, rec *testlog.Recorder) *dig.Container {
	t.Helper()
	c := dig.New()
	require.NoError(t, c.Provide(func() logx.Logger { return rec.Logger() }))
	return c
}

func TestRunner_MustRun_ShutdownRequested(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	r := &Runner{runFn: func(*dig.Container) error { return context.Canceled }}

	r.MustRun(loggerContainer(t, rec))

	_, ok := rec.Find("shutdown requested, exiting")
	require.True(t, ok)
}

func TestRunner_MustRun_StartupTimeout(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	r := &Runner{runFn: func(*dig.Container) error { return context.DeadlineExceeded }}

	r.MustRun(loggerContainer(t, rec))

	_, ok := rec.Find("startup aborted: startup timeout exceeded")
	require.True(t, ok)
}

func TestRunner_MustRun_PanicsOnOtherError(t *testing.T) {
	t.Parallel()

	r := &Runner{runFn: func(*dig.Container) error { return errors.New("listen: address in use") }}
	require.Panics(t, func() { r.MustRun(dig.New()) })
}

func TestNewRunner_DefaultFields(t *testing.T) {
	t.Parallel()

	r := NewRunner()
	require.NotNil(t, r)
	require.NotNil(t, r.runFn)
}

func TestGracefulShutdown_DoesNotPanic(t *testing.T) {
	t.Parallel()

	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()}
	require.NotPanics(t, func() {
		gracefulShutdown(srv, logx.Nop(), 100*time.Millisecond)
	})
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := testlog.New()

	c := loggerContainer(t, rec)
	require.NoError(t, provideAll(c,
		func() context.Context { return ctx },
		func() *pgxpool.Pool { return nil },
		func() *http.Server { return &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()} },
		func() *sweep.Scheduler { return sweep.NewScheduler(idleSweeper{}, "@every 1h", time.Second, nil) },
		func() *pprofserver.Server { return nil },
		func() *kafka.Producer { return nil },
	))

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := run(c)
	require.ErrorIs(t, err, context.Canceled)
	_, ok := rec.Find("shutting down service-offers")
	require.True(t, ok)
}

func TestRun_ReturnsListenError(t *testing.T) {
	t.Parallel()

	err := appRun(serviceIn{
		Ctx:    context.Background(),
		Logger: logx.Nop(),
		Server: &http.Server{Addr: "127.0.0.1:-1", Handler: http.NewServeMux()},
	})
	require.Error(t, err)
}
