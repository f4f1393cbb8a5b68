// Package sweep times out unanswered offers and moves their units on.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
)

// Report summarises one sweep run.
type Report struct {
	RunID     string        `json:"run_id"`
	Scanned   int           `json:"scanned"`
	Expired   int           `json:"expired"`
	Skipped   int           `json:"skipped"`
	Reoffered int           `json:"reoffered"`
	Escalated int           `json:"escalated"`
	Resumed   int           `json:"resumed"`
	Realerted int           `json:"realerted"`
	Failed    int           `json:"failed"`
	Purged    int64         `json:"purged"`
	Duration  time.Duration `json:"duration"`
}

// Config holds sweep settings.
type Config struct {
	BatchSize int
	// StallAfter is how long a unit may sit in none or expired before the
	// sweep resumes it.
	StallAfter time.Duration
}

// Sweeper expires due offers, re-dispatches their units and reports
// exhausted ones to operators in one message per run. Runs may overlap:
// every transition is a conditional write and a lost race is skipped.
type Sweeper struct {
	units    unitSource
	dispatch dispatcher
	alerts   escalationSink
	janitor  janitor
	metrics  recorder
	logger   logx.Logger
	cfg      Config
	now      func() time.Time
	newID    func() string
}

// New creates a Sweeper. janitor and metrics may be nil.
func New(units unitSource, d dispatcher, alerts escalationSink, j janitor, m recorder, cfg Config, logger logx.Logger) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StallAfter <= 0 {
		cfg.StallAfter = time.Minute
	}
	if logger == nil {
		logger = logx.Nop()
	}
	if m == nil {
		m = nopRecorder{}
	}
	return &Sweeper{
		units:    units,
		dispatch: d,
		alerts:   alerts,
		janitor:  j,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// WithClock replaces the time source (tests).
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	rep.RunID = s.newID()
	logger := s.logger.With(logx.String("run_id", rep.RunID))
	defer func() {
		rep.Duration = time.Since(start)
		s.metrics.SweepObserved(rep.Duration, err)
	}()

	now := s.now()
	due, err := s.units.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("list due offers: %w", err)
	}
	var escs []domain.Escalation
	for _, u := range due {
		rep.Scanned++
		if err := s.dispatch.Expire(ctx, u); err != nil {
			if errors.Is(err, apperr.ErrAlreadyResolved) {
				rep.Skipped++
				continue
			}
			rep.Failed++
			logger.Error("expire failed", logx.Int64("unit_id", u.ID), logx.Err(err))
			continue
		}
		rep.Expired++
		escs = s.advance(ctx, logger, u, &rep, escs)
	}

	stalled, err := s.units.ListStalled(ctx, now.Add(-s.cfg.StallAfter), s.cfg.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("list stalled units: %w", err)
	}
	for _, u := range stalled {
		rep.Resumed++
		escs = s.advance(ctx, logger, u, &rep, escs)
	}

	unnotified, err := s.units.ListUnnotifiedEscalations(ctx, now.Add(-s.cfg.StallAfter), s.cfg.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("list unnotified escalations: %w", err)
	}
	for _, u := range unnotified {
		if containsUnit(escs, u.ID) {
			continue
		}
		rep.Realerted++
		escs = append(escs, u.Escalation())
	}

	if len(escs) > 0 {
		if err := s.alerts.Escalations(ctx, escs); err != nil {
			logger.Error("operator escalation notification failed",
				logx.Int("units", len(escs)),
				logx.Err(err),
			)
			return rep, fmt.Errorf("notify operators: %w", err)
		}
		ids := make([]int64, 0, len(escs))
		for _, e := range escs {
			ids = append(ids, e.UnitID)
		}
		if err := s.units.MarkEscalationsNotified(ctx, ids, now); err != nil {
			logger.Warn("mark escalations notified failed", logx.Err(err))
		}
	}

	if s.janitor != nil {
		n, err := s.janitor.Purge(ctx, now)
		if err != nil {
			logger.Warn("purge notification log failed", logx.Err(err))
		}
		rep.Purged = n
	}

	logger.Info("sweep finished",
		logx.String("event", "sweep_finished"),
		logx.Int("scanned", rep.Scanned),
		logx.Int("expired", rep.Expired),
		logx.Int("skipped", rep.Skipped),
		logx.Int("reoffered", rep.Reoffered),
		logx.Int("escalated", rep.Escalated),
		logx.Int("resumed", rep.Resumed),
		logx.Int("realerted", rep.Realerted),
		logx.Int("failed", rep.Failed),
	)
	return rep, nil
}

func (s *Sweeper) advance(ctx context.Context, logger logx.Logger, u *domain.OfferUnit, rep *Report, escs []domain.Escalation) []domain.Escalation {
	esc, err := s.dispatch.Advance(ctx, u)
	switch {
	case errors.Is(err, apperr.ErrAlreadyResolved):
		rep.Skipped++
	case err != nil:
		rep.Failed++
		logger.Error("advance failed", logx.Int64("unit_id", u.ID), logx.Err(err))
	case esc != nil:
		rep.Escalated++
		escs = append(escs, *esc)
	default:
		rep.Reoffered++
	}
	return escs
}

func containsUnit(escs []domain.Escalation, id int64) bool {
	for _, e := range escs {
		if e.UnitID == id {
			return true
		}
	}
	return false
}
