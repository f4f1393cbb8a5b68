package sweep

import (
	"context"
	"time"

	"offer-dispatch/internal/domain"
)

type unitSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.OfferUnit, error)
	ListStalled(ctx context.Context, before time.Time, limit int) ([]*domain.OfferUnit, error)
	ListUnnotifiedEscalations(ctx context.Context, before time.Time, limit int) ([]*domain.OfferUnit, error)
	MarkEscalationsNotified(ctx context.Context, ids []int64, at time.Time) error
}

type dispatcher interface {
	Expire(ctx context.Context, u *domain.OfferUnit) error
	Advance(ctx context.Context, u *domain.OfferUnit) (*domain.Escalation, error)
}

type escalationSink interface {
	Escalations(ctx context.Context, escs []domain.Escalation) error
}

type janitor interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type recorder interface {
	SweepObserved(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) SweepObserved(time.Duration, error) {}
