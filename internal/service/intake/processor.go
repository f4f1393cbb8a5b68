// Package intake turns job lifecycle events into offer units and forwards
// changes and cancellations to the offer services.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
)

// Processor handles job events from Kafka and the HTTP intake.
type Processor struct {
	units     UnitStore
	starter   Starter
	reconfirm Reconfirmer
	canceller Canceller
	logger    logx.Logger
	now       func() time.Time
	factory   *actionFactory
}

// NewProcessor creates a Processor.
func NewProcessor(units UnitStore, s Starter, r Reconfirmer, c Canceller, logger logx.Logger) *Processor {
	if logger == nil {
		logger = logx.Nop()
	}
	p := &Processor{
		units:     units,
		starter:   s,
		reconfirm: r,
		canceller: c,
		logger:    logger.With(logx.String("component", "intake")),
		now:       func() time.Time { return time.Now().UTC() },
	}
	p.factory = newActionFactory(p.onCreated, p.onRescheduled, p.onCancelled)
	return p
}

// WithClock replaces the time source (tests).
func (p *Processor) WithClock(now func() time.Time) *Processor {
	if now != nil {
		p.now = now
	}
	return p
}

// Handle processes a single job event. Unknown kinds are ignored.
func (p *Processor) Handle(ctx context.Context, e Event) error {
	fn, ok := p.factory.get(e.Kind)
	if !ok {
		p.logger.Debug("unknown job event ignored",
			logx.String("kind", e.Kind),
			logx.String("external_ref", e.ExternalRef),
		)
		return nil
	}
	return fn(ctx, e)
}

// Create stores the unit described by e and starts offering it. A unit
// that already exists for the reference is returned as is with created
// set to false.
func (p *Processor) Create(ctx context.Context, e Event) (u *domain.OfferUnit, created bool, err error) {
	u, err = e.Unit(p.now().Truncate(time.Microsecond))
	if err != nil {
		return nil, false, err
	}
	existing, err := p.units.GetByExternalRef(ctx, u.ExternalRef)
	if err != nil {
		return nil, false, fmt.Errorf("find unit %q: %w", u.ExternalRef, err)
	}
	if existing != nil {
		return existing, false, nil
	}
	if err := p.units.Create(ctx, u); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, false, fmt.Errorf("create unit %q: %w", u.ExternalRef, err)
		}
		existing, err := p.units.GetByExternalRef(ctx, u.ExternalRef)
		if err != nil || existing == nil {
			return nil, false, fmt.Errorf("create unit %q: %w", u.ExternalRef, apperr.ErrConflict)
		}
		return existing, false, nil
	}
	p.logger.Info("unit created",
		logx.String("event", "unit_created"),
		logx.Int64("unit_id", u.ID),
		logx.String("external_ref", u.ExternalRef),
		logx.String("unit_type", string(u.Type)),
	)

	// A unit left in none is picked up by the sweep.
	if _, err := p.starter.Start(ctx, u.ID); err != nil {
		p.logger.Warn("start offering failed",
			logx.Int64("unit_id", u.ID),
			logx.Err(err),
		)
	}
	if cur, err := p.units.GetByExternalRef(ctx, u.ExternalRef); err == nil && cur != nil {
		u = cur
	}
	return u, true, nil
}

func (p *Processor) onCreated(ctx context.Context, e Event) error {
	_, _, err := p.Create(ctx, e)
	return err
}

func (p *Processor) onRescheduled(ctx context.Context, e Event) error {
	if e.Change == nil {
		return fmt.Errorf("%w: %s without a change", apperr.ErrValidation, KindRescheduled)
	}
	u, err := p.lookup(ctx, e.ExternalRef)
	if err != nil {
		return err
	}
	_, err = p.reconfirm.Reconfirm(ctx, u.ID, *e.Change)
	if errors.Is(err, apperr.ErrAlreadyResolved) {
		return nil
	}
	return err
}

func (p *Processor) onCancelled(ctx context.Context, e Event) error {
	u, err := p.lookup(ctx, e.ExternalRef)
	if errors.Is(err, apperr.ErrNotFound) {
		p.logger.Info("cancel for unknown unit ignored", logx.String("external_ref", e.ExternalRef))
		return nil
	}
	if err != nil {
		return err
	}
	err = p.canceller.Cancel(ctx, u.ID, e.Reason)
	if errors.Is(err, apperr.ErrAlreadyResolved) {
		return nil
	}
	return err
}

func (p *Processor) lookup(ctx context.Context, ref string) (*domain.OfferUnit, error) {
	u, err := p.units.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("find unit %q: %w", ref, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: unit %q", apperr.ErrNotFound, ref)
	}
	return u, nil
}
