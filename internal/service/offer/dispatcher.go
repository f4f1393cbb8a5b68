package offer

import (
	"context"
	"fmt"
	"time"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
)

// Dispatcher sends offers and moves units on when nobody is left.
type Dispatcher struct {
	*core
}

// NewDispatcher creates a Dispatcher. The other offer services share its
// collaborators.
func NewDispatcher(deps Deps, settings Settings) *Dispatcher {
	return &Dispatcher{core: newCore(deps, settings)}
}

// WithClock replaces the time source for the dispatcher and every service
// built from it.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// Start begins dispatching a freshly created unit. Units that already left
// the initial state are left alone.
func (d *Dispatcher) Start(ctx context.Context, unitID int64) (*domain.Escalation, error) {
	u, err := d.load(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if u.Status != domain.StatusNone {
		return nil, nil
	}
	esc, err := d.Advance(ctx, u)
	if err != nil {
		if isRace(err) {
			return nil, nil
		}
		return nil, err
	}
	if esc != nil {
		d.alert(ctx, []domain.Escalation{*esc})
	}
	return esc, nil
}

// Advance offers u to the next eligible candidate, or escalates it to
// operators when the pool is exhausted. u must be in none or expired. The
// returned escalation is for the caller to report.
func (d *Dispatcher) Advance(ctx context.Context, u *domain.OfferUnit) (*domain.Escalation, error) {
	if u.Status != domain.StatusNone && u.Status != domain.StatusExpired {
		return nil, fmt.Errorf("%w: unit %d is %s", apperr.ErrAlreadyResolved, u.ID, u.Status)
	}
	cand, err := d.Selector.Next(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("select candidate for unit %d: %w", u.ID, err)
	}
	if cand == nil {
		return d.escalate(ctx, u, reasonNoCandidates)
	}
	return nil, d.Dispatch(ctx, u, cand)
}

// Dispatch commits an offer of u to cand and sends it. A failed
// notification does not undo the offer.
func (d *Dispatcher) Dispatch(ctx context.Context, u *domain.OfferUnit, cand *domain.Candidate) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	now := d.clock()
	window := d.settings.Window(u.Type)
	if err := d.commit(ctx, u, func(next *domain.OfferUnit) error {
		return next.Offer(cand.ID, now, window)
	}); err != nil {
		return fmt.Errorf("offer unit %d to candidate %d: %w", u.ID, cand.ID, err)
	}
	d.Metrics.OfferSent(u.Type)
	d.Logger.Info("offer sent",
		logx.String("event", "offer_sent"),
		logx.Int64("unit_id", u.ID),
		logx.String("unit_type", string(u.Type)),
		logx.Int64("candidate_id", cand.ID),
		logx.Time("expires_at", *u.ExpiresAt),
	)
	d.sendOffer(ctx, u, cand, false)
	return nil
}

// Expire times out u's live offer. An expired reconfirmation also releases
// the container at the provider.
func (d *Dispatcher) Expire(ctx context.Context, u *domain.OfferUnit) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	wasReconfirm := u.Status == domain.StatusPendingReconfirmation
	holder := u.CandidateID
	now := d.clock()
	if err := d.commit(ctx, u, func(next *domain.OfferUnit) error {
		return next.Expire(now)
	}); err != nil {
		return fmt.Errorf("expire unit %d: %w", u.ID, err)
	}
	d.Metrics.Expired()
	fields := []logx.Field{
		logx.String("event", "offer_expired"),
		logx.Int64("unit_id", u.ID),
	}
	if holder != nil {
		fields = append(fields, logx.Int64("candidate_id", *holder))
	}
	d.Logger.Info("offer expired", fields...)
	if wasReconfirm {
		d.unassign(ctx, u)
	}
	return nil
}

func (d *Dispatcher) escalate(ctx context.Context, u *domain.OfferUnit, reason string) (*domain.Escalation, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var esc domain.Escalation
	now := d.clock()
	if err := d.commit(ctx, u, func(next *domain.OfferUnit) error {
		var err error
		esc, err = next.Escalate(reason, now)
		return err
	}); err != nil {
		return nil, fmt.Errorf("escalate unit %d: %w", u.ID, err)
	}
	d.Metrics.Escalated(1)
	d.Logger.Warn("unit escalated to operators",
		logx.String("event", "admin_escalated"),
		logx.Int64("unit_id", u.ID),
		logx.String("reason", reason),
		logx.Int("declined", len(u.DeclinedCandidateIDs)),
	)
	if d.settings.OperatorPool != "" && u.ContainerID != "" {
		if err := d.Provider.MoveToPool(ctx, u.ContainerID, d.settings.OperatorPool); err != nil {
			d.syncFailed(ctx, u, OpMoveToPool, err)
		}
	}
	return &esc, nil
}
