package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/dig"

	"offer-dispatch/internal/http/pprofserver"
	"offer-dispatch/internal/logx"
	"offer-dispatch/internal/service/sweep"
	"offer-dispatch/internal/transport/kafka"
)

// Runner runs the HTTP service.
type Runner struct {
	runFn func(*dig.Container) error
}

// NewRunner returns a new Runner
func NewRunner() *Runner {
	return &Runner{runFn: run}
}

// MustRun starts the HTTP server using the provided DI container
func (r *Runner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil {
		return
	}
	logger := containerLogger(container)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("shutdown requested, exiting")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("startup aborted: startup timeout exceeded")
	default:
		logger.Error("run error", logx.Err(err))
		panic(err)
	}
}

func containerLogger(container *dig.Container) logx.Logger {
	var logger logx.Logger = logx.Nop()
	_ = container.Invoke(func(l logx.Logger) { logger = l })
	return logger
}

type serviceIn struct {
	dig.In

	Ctx       context.Context
	Logger    logx.Logger
	Server    *http.Server
	Pool      *pgxpool.Pool
	Scheduler *sweep.Scheduler
	Pprof     *pprofserver.Server
	Producer  *kafka.Producer
}

func run(container *dig.Container) error {
	return container.Invoke(appRun)
}

func appRun(in serviceIn) error {
	defer closeResources(in.Pool, in.Producer, in.Server, in.Logger)

	if in.Scheduler != nil {
		if err := in.Scheduler.Start(in.Ctx); err != nil {
			return err
		}
		defer in.Scheduler.Stop()
	}
	if in.Pprof != nil {
		go func() {
			if err := in.Pprof.Run(in.Ctx); err != nil {
				in.Logger.Error("pprof server stopped", logx.Err(err))
			}
		}()
	}

	serveErr := startServer(in.Server, in.Logger)
	select {
	case err := <-serveErr:
		return err
	case <-in.Ctx.Done():
	}
	in.Logger.Info("shutting down service-offers")
	gracefulShutdown(in.Server, in.Logger, 15*time.Second)
	return in.Ctx.Err()
}

func startServer(server *http.Server, logger logx.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("service-offers listening", logx.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown error", logx.Err(err))
	}
}

func closeResources(pool *pgxpool.Pool, producer *kafka.Producer, server *http.Server, logger logx.Logger) {
	if server != nil {
		if err := server.Close(); err != nil {
			logger.Error("server close error", logx.Err(err))
		}
	}
	if err := producer.Close(); err != nil {
		logger.Error("kafka producer close error", logx.Err(err))
	}
	if pool != nil {
		pool.Close()
	}
	_ = logger.Sync()
}
