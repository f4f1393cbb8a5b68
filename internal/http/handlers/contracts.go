package handlers

import (
	"context"

	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/service/intake"
	"offer-dispatch/internal/service/sweep"
)

type responder interface {
	RespondToken(ctx context.Context, raw string) (domain.Resolution, error)
	RespondReply(ctx context.Context, from, body string) (domain.Resolution, error)
}

type unitCreator interface {
	Create(ctx context.Context, e intake.Event) (*domain.OfferUnit, bool, error)
}

type unitReader interface {
	Get(ctx context.Context, id int64) (*domain.OfferUnit, error)
}

type reconfirmer interface {
	Reconfirm(ctx context.Context, unitID int64, change domain.ScheduleChange) (*domain.OfferUnit, error)
}

type canceller interface {
	Cancel(ctx context.Context, unitID int64, reason string) error
}

type sweepRunner interface {
	Run(ctx context.Context) (sweep.Report, error)
}
