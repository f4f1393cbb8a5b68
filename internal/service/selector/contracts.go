package selector

import (
	"context"
	"time"

	"offer-dispatch/internal/domain"
)

type candidateSource interface {
	ListActive(ctx context.Context) ([]domain.Candidate, error)
}

type busyIndex interface {
	BusyCandidates(ctx context.Context, excludeUnitID int64, start, end time.Time) ([]int64, error)
}
