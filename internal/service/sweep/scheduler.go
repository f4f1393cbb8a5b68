package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"offer-dispatch/internal/logx"
)

type runner interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler runs the sweep on a cron spec. A tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  runner
	spec    string
	timeout time.Duration
	logger  logx.Logger
}

// NewScheduler creates a Scheduler. spec accepts the standard five-field
// syntax and descriptors such as "@every 5m".
func NewScheduler(r runner, spec string, timeout time.Duration, logger logx.Logger) *Scheduler {
	if logger == nil {
		logger = logx.Nop()
	}
	logger = logger.With(logx.String("component", "sweep_scheduler"))
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		runner:  r,
		spec:    spec,
		timeout: timeout,
		logger:  logger,
	}
}

// Start registers the job and starts the cron loop. Runs use ctx as parent.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("sweep scheduled", logx.String("spec", s.spec))
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.runner.Run(ctx); err != nil {
		s.logger.Error("scheduled sweep failed", logx.Err(err))
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct {
	logger logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
