package intake

import (
	"context"

	"offer-dispatch/internal/domain"
)

// UnitStore creates units and finds them by booking reference.
type UnitStore interface {
	Create(ctx context.Context, u *domain.OfferUnit) error
	GetByExternalRef(ctx context.Context, ref string) (*domain.OfferUnit, error)
}

// Starter begins offering a freshly created unit.
type Starter interface {
	Start(ctx context.Context, unitID int64) (*domain.Escalation, error)
}

// Reconfirmer applies a schedule change.
type Reconfirmer interface {
	Reconfirm(ctx context.Context, unitID int64, change domain.ScheduleChange) (*domain.OfferUnit, error)
}

// Canceller cancels a unit.
type Canceller interface {
	Cancel(ctx context.Context, unitID int64, reason string) error
}
