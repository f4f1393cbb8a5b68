package offer

import (
	"context"
	"fmt"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
)

// Reconfirmer applies schedule changes. A change to an accepted unit
// demotes the acceptance and asks the incumbent again.
type Reconfirmer struct {
	*core
}

// NewReconfirmer creates a Reconfirmer sharing d's collaborators.
func NewReconfirmer(d *Dispatcher) *Reconfirmer {
	return &Reconfirmer{core: d.core}
}

// changeAttempts bounds how often a schedule change is re-applied after
// losing a conditional write to a concurrent transition.
const changeAttempts = 3

// Reconfirm applies change to the unit and returns its new state. A change
// that loses a write race is re-applied to the fresh row; only a cancelled
// unit refuses it.
func (r *Reconfirmer) Reconfirm(ctx context.Context, unitID int64, change domain.ScheduleChange) (*domain.OfferUnit, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	for attempt := 1; ; attempt++ {
		u, err := r.load(ctx, unitID)
		if err != nil {
			return nil, err
		}
		if u.Status == domain.StatusCancelled {
			return nil, fmt.Errorf("%w: unit %d was cancelled", apperr.ErrAlreadyResolved, u.ID)
		}
		if err := change.Validate(u); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		prev := u.Status

		err = r.apply(ctx, u, change)
		if isRace(err) {
			if attempt < changeAttempts {
				r.Logger.Info("schedule change lost a write race, retrying",
					logx.Int64("unit_id", u.ID),
					logx.Int("attempt", attempt),
				)
				continue
			}
			return nil, fmt.Errorf("schedule change for unit %d lost %d write races: %v", u.ID, attempt, err)
		}
		if err != nil {
			return nil, err
		}

		r.Logger.Info("schedule change applied",
			logx.String("event", "schedule_changed"),
			logx.Int64("unit_id", u.ID),
			logx.String("kind", string(change.Kind)),
			logx.String("from_status", string(prev)),
			logx.String("status", string(u.Status)),
			logx.Int64("schedule_version", u.ScheduleVersion),
		)

		switch prev {
		case domain.StatusAccepted, domain.StatusPendingReconfirmation:
			r.Metrics.Reconfirmation()
			return u, r.notifyHolder(ctx, u, true)
		case domain.StatusSent:
			return u, r.notifyHolder(ctx, u, false)
		}
		return u, nil
	}
}

// apply writes change to u with one conditional write.
func (r *Reconfirmer) apply(ctx context.Context, u *domain.OfferUnit, change domain.ScheduleChange) error {
	now := r.clock()

	switch u.Status {
	case domain.StatusAccepted, domain.StatusPendingReconfirmation:
		if err := r.commit(ctx, u, func(next *domain.OfferUnit) error {
			return next.RequestReconfirmation(change, now, r.settings.ReconfirmWindow)
		}); err != nil {
			return fmt.Errorf("request reconfirmation for unit %d: %w", u.ID, err)
		}

	case domain.StatusSent:
		change.Status = domain.ChangeConfirmed
		if err := r.commit(ctx, u, func(next *domain.OfferUnit) error {
			next.ApplyChange(change, now)
			return next.Reoffer(now, r.settings.Window(next.Type))
		}); err != nil {
			return fmt.Errorf("re-offer unit %d: %w", u.ID, err)
		}

	default:
		change.Status = domain.ChangeConfirmed
		if err := r.commit(ctx, u, func(next *domain.OfferUnit) error {
			next.ApplyChange(change, now)
			return nil
		}); err != nil {
			return fmt.Errorf("apply change to unit %d: %w", u.ID, err)
		}
	}
	return nil
}

func (r *Reconfirmer) notifyHolder(ctx context.Context, u *domain.OfferUnit, reconfirm bool) error {
	cand, err := r.candidate(ctx, *u.CandidateID)
	if err != nil {
		return err
	}
	r.sendOffer(ctx, u, cand, reconfirm)
	return nil
}
