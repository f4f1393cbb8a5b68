package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"offer-dispatch/internal/config"
	"offer-dispatch/internal/http/handlers"
	"offer-dispatch/internal/http/middleware/ratelimit"
	"offer-dispatch/internal/http/pprofserver"
	"offer-dispatch/internal/http/router"
	"offer-dispatch/internal/logx"
	"offer-dispatch/internal/metrics"
	"offer-dispatch/internal/repository"
	"offer-dispatch/internal/service/intake"
	"offer-dispatch/internal/service/offer"
	"offer-dispatch/internal/service/sweep"
)

// requestTimeout bounds a single HTTP request.
const requestTimeout = 10 * time.Second

func registerHTTP(container *dig.Container) error {
	serverProvider := func(cfg *config.Config, mux http.Handler) *http.Server {
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return provideAll(container,
		handlers.New,
		func(logger logx.Logger, r *offer.ResponseHandler) *handlers.OfferHandler {
			return handlers.NewOfferHandler(logger, r)
		},
		func(
			logger logx.Logger,
			p *intake.Processor,
			units *repository.UnitRepo,
			rc *offer.Reconfirmer,
			c *offer.Canceller,
		) *handlers.UnitHandler {
			return handlers.NewUnitHandler(logger, p, units, rc, c)
		},
		func(logger logx.Logger, s *sweep.Sweeper) *handlers.SweepHandler {
			return handlers.NewSweepHandler(logger, s)
		},
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		newRouter,
		serverProvider,
		newPprofServer,
	)
}

func newRateLimiter(cfg *config.Config, clock ratelimit.Clock) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.NopLimiter{}
	}
	return ratelimit.NewTokenBucketLimiter(clock, ratelimit.Config{
		Rate:       rl.Rate,
		Burst:      rl.Burst,
		TTL:        rl.TTL,
		MaxBuckets: rl.MaxBuckets,
	})
}

func newRateLimitClock() ratelimit.Clock {
	return ratelimit.RealClock{}
}

type rateLimitIn struct {
	dig.In
	Logger  logx.Logger
	Counter prometheus.Counter `name:"rate_limit_exceeded_total"`
	Limiter ratelimit.Limiter
}

func newRateLimitMiddleware(in rateLimitIn) *ratelimit.Middleware {
	return ratelimit.New(in.Logger, in.Counter, in.Limiter)
}

type routerIn struct {
	dig.In

	Logger    logx.Logger
	Base      *handlers.Handlers
	Offers    *handlers.OfferHandler
	Units     *handlers.UnitHandler
	Sweep     *handlers.SweepHandler
	Requests  *metrics.HTTP
	Gatherer  prometheus.Gatherer
	RateLimit *ratelimit.Middleware
}

func newRouter(in routerIn) http.Handler {
	return router.New(router.Handlers{
		Base:   in.Base,
		Offers: in.Offers,
		Units:  in.Units,
		Sweep:  in.Sweep,
	}, router.Options{
		Logger:    in.Logger,
		Requests:  in.Requests,
		RateLimit: in.RateLimit.Handler(),
		Gatherer:  in.Gatherer,
		Timeout:   requestTimeout,
	})
}

// newPprofServer returns nil when profiling is disabled.
func newPprofServer(cfg *config.Config, logger logx.Logger) *pprofserver.Server {
	if !cfg.Pprof.Enabled {
		return nil
	}
	return pprofserver.New(pprofserver.Config{
		Addr: cfg.Pprof.Addr,
		User: cfg.Pprof.User,
		Pass: cfg.Pprof.Pass,
	}, logger)
}
