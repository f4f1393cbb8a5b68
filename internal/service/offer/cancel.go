package offer

import (
	"context"
	"fmt"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
)

// Canceller withdraws units. Cancellation wins over every other state.
type Canceller struct {
	*core
}

// NewCanceller creates a Canceller sharing d's collaborators.
func NewCanceller(d *Dispatcher) *Canceller {
	return &Canceller{core: d.core}
}

// Cancel marks the unit cancelled, releases a bound worker and tells the
// candidate who held it.
func (c *Canceller) Cancel(ctx context.Context, unitID int64, reason string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	u, err := c.load(ctx, unitID)
	if err != nil {
		return err
	}
	if u.Status == domain.StatusCancelled {
		return fmt.Errorf("%w: unit %d is already cancelled", apperr.ErrAlreadyResolved, u.ID)
	}
	prev := u.Clone()
	if err := u.Cancel(reason, c.clock()); err != nil {
		return err
	}
	if err := c.Units.Cancel(ctx, u); err != nil {
		return fmt.Errorf("cancel unit %d: %w", u.ID, err)
	}
	c.Metrics.Cancelled()
	c.Logger.Info("unit cancelled",
		logx.String("event", "unit_cancelled"),
		logx.Int64("unit_id", u.ID),
		logx.String("from_status", string(prev.Status)),
		logx.String("reason", reason),
	)

	if prev.Status == domain.StatusAccepted || prev.Status == domain.StatusPendingReconfirmation {
		c.unassign(ctx, u)
	}
	holder := holderOf(prev)
	if holder == nil {
		return nil
	}
	cand, err := c.candidate(ctx, *holder)
	if err == nil {
		_, err = c.Notifier.Cancelled(ctx, u, cand)
	}
	if err != nil {
		c.Metrics.NotificationFailed("cancelled")
		c.Logger.Warn("cancellation notice failed",
			logx.Int64("unit_id", u.ID),
			logx.Int64("candidate_id", *holder),
			logx.Err(err),
		)
	}
	return nil
}

func holderOf(u *domain.OfferUnit) *int64 {
	switch {
	case u.AssignedCandidateID != nil:
		return u.AssignedCandidateID
	case u.Status.Outstanding():
		return u.CandidateID
	}
	return nil
}
