package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"offer-dispatch/internal/config"
	"offer-dispatch/internal/http/handlers"
	"offer-dispatch/internal/http/middleware/ratelimit"
	"offer-dispatch/internal/http/pprofserver"
	"offer-dispatch/internal/logx"
	"offer-dispatch/internal/notify"
	"offer-dispatch/internal/service/intake"
	"offer-dispatch/internal/service/sweep"
	"offer-dispatch/internal/transport/kafka"
)

func testConfig() *config.Config {
	offers := config.DefaultOffers()
	offers.TokenSecret = "0123456789abcdef0123456789abcdef"
	return &config.Config{
		Port:      8080,
		DB:        config.DefaultDB(),
		Offers:    offers,
		Sweep:     config.DefaultSweep(),
		Dispatch:  config.DefaultDispatch(),
		Operators: config.DefaultOperators(),
		Notify:    config.DefaultNotify(),
		RateLimit: config.DefaultRateLimit(),
		Pprof:     config.DefaultPprof(),
		Log:       config.Log{Format: "json", Level: "error"},
	}
}

func stubDBConnect(context.Context, logx.Logger, string, int, time.Duration) (*pgxpool.Pool, error) {
	return &pgxpool.Pool{}, nil
}

func buildTestContainer(t *testing.T, cfg *config.Config) *dig.Container {
	t.Helper()

	c, err := NewContainerBuilder().
		WithConfig(cfg).
		WithDBConnect(stubDBConnect).
		build(context.Background())
	require.NoError(t, err)
	return c
}

func TestBuild_ProvidesServiceGraph(t *testing.T) {
	t.Parallel()

	c := buildTestContainer(t, testConfig())

	err := c.Invoke(func(
		srv *http.Server,
		base *handlers.Handlers,
		offers *handlers.OfferHandler,
		units *handlers.UnitHandler,
		sched *sweep.Scheduler,
		proc *intake.Processor,
		pub notify.Publisher,
		pp *pprofserver.Server,
	) {
		require.Equal(t, ":8080", srv.Addr)
		require.Greater(t, srv.ReadHeaderTimeout, time.Duration(0))
		require.Greater(t, srv.WriteTimeout, time.Duration(0))
		require.NotNil(t, base)
		require.NotNil(t, offers)
		require.NotNil(t, units)
		require.NotNil(t, sched)
		require.NotNil(t, proc)
		require.IsType(t, &notify.LogPublisher{}, pub)
		require.Nil(t, pp)
	})
	require.NoError(t, err)
}

func TestBuild_ConsumerIsNilWithoutKafka(t *testing.T) {
	t.Parallel()

	c := buildTestContainer(t, testConfig())
	err := c.Invoke(func(consumer *kafka.Consumer, producer *kafka.Producer) {
		require.Nil(t, consumer)
		require.Nil(t, producer)
	})
	require.NoError(t, err)
}

func TestBuild_PprofEnabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Pprof.Enabled = true
	c := buildTestContainer(t, cfg)

	err := c.Invoke(func(pp *pprofserver.Server) {
		require.NotNil(t, pp)
	})
	require.NoError(t, err)
}

func TestBuild_BadSecretFailsOnInvoke(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Offers.TokenSecret = "short"
	c := buildTestContainer(t, cfg)

	err := c.Invoke(func(*http.Server) {})
	require.ErrorContains(t, err, "token secret must be at least 32 bytes")
}

func TestBuild_BadDispatchURLFailsOnInvoke(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Dispatch.BaseURL = "not a url"
	c := buildTestContainer(t, cfg)

	err := c.Invoke(func(*sweep.Sweeper) {})
	require.ErrorContains(t, err, "invalid dispatch base url")
}

func TestRouter_ServesMetricsFromRegistry(t *testing.T) {
	t.Parallel()

	c := buildTestContainer(t, testConfig())
	err := c.Invoke(func(h http.Handler) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), "go_goroutines")
		require.Contains(t, rr.Body.String(), "rate_limit_exceeded_total 0")
		require.Contains(t, rr.Body.String(), "gateway_retries_total 0")
		require.Contains(t, rr.Body.String(), "offers_expired_total 0")
	})
	require.NoError(t, err)
}

func TestRegisterMetrics_CountersAreNamed(t *testing.T) {
	t.Parallel()

	c := dig.New()
	require.NoError(t, c.Provide(newRegistry))
	require.NoError(t, registerMetrics(c))

	type in struct {
		dig.In
		RateLimited prometheus.Counter `name:"rate_limit_exceeded_total"`
		Retries     prometheus.Counter `name:"gateway_retries_total"`
	}
	err := c.Invoke(func(p in) {
		require.NotNil(t, p.RateLimited)
		require.NotNil(t, p.Retries)
	})
	require.NoError(t, err)
}

func TestNewRateLimiter(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	require.IsType(t, &ratelimit.TokenBucketLimiter{}, newRateLimiter(cfg, ratelimit.RealClock{}))

	cfg.RateLimit.Enabled = false
	require.Equal(t, ratelimit.NopLimiter{}, newRateLimiter(cfg, ratelimit.RealClock{}))
}

func TestProvideAll_Success(t *testing.T) {
	t.Parallel()

	c := dig.New()

	err := provideAll(c,
		func() context.Context { return context.Background() },
		func() time.Duration { return 3 * time.Second },
	)
	require.NoError(t, err)

	err = c.Invoke(func(ctx context.Context, d time.Duration) {
		require.NotNil(t, ctx)
		require.Equal(t, 3*time.Second, d)
	})
	require.NoError(t, err)
}

func TestProvideAll_InvalidProvider(t *testing.T) {
	t.Parallel()

	c := dig.New()

	type bad struct{}
	err := provideAll(c, bad{})
	require.Error(t, err)
}

func TestMustBuild_ReportsConfigError(t *testing.T) {
	t.Parallel()

	var fatal string
	b := NewContainerBuilder().WithLogFatalf(func(format string, _ ...interface{}) { fatal = format })
	b.loadConfig = func() (*config.Config, error) { return nil, context.Canceled }

	c := b.MustBuild(context.Background())
	require.NotNil(t, c)
	require.Empty(t, fatal)

	err := c.Invoke(func(*config.Config) {})
	require.ErrorIs(t, err, context.Canceled)
}
