// Package selector picks the next candidate to offer a unit to.
package selector

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
)

// Selector filters and orders the candidate pool for a unit.
type Selector struct {
	candidates       candidateSource
	busy             busyIndex
	loc              *time.Location
	operationTimeout time.Duration
	logger           logx.Logger
}

// New creates a Selector. Availability windows are evaluated in loc.
func New(candidates candidateSource, busy busyIndex, loc *time.Location, timeout time.Duration, logger logx.Logger) *Selector {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Selector{
		candidates:       candidates,
		busy:             busy,
		loc:              loc,
		operationTimeout: timeout,
		logger:           logger,
	}
}

// Next returns the best eligible candidate, or nil when the pool is
// exhausted. An exhausted pool is not an error.
func (s *Selector) Next(ctx context.Context, u *domain.OfferUnit) (*domain.Candidate, error) {
	ranked, err := s.Rank(ctx, u)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	c := ranked[0]
	return &c, nil
}

// Rank returns every eligible candidate in offer order.
func (s *Selector) Rank(ctx context.Context, u *domain.OfferUnit) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	pool, err := s.candidates.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	req := u.Requirements
	var busy []int64
	if req.HasWindow() {
		busy, err = s.busy.BusyCandidates(ctx, u.ID, req.WindowStart, req.WindowEnd)
		if err != nil {
			return nil, fmt.Errorf("load busy candidates: %w", err)
		}
	}

	eligible := make([]domain.Candidate, 0, len(pool))
	for _, c := range pool {
		if reason := s.reject(u, c, busy); reason != "" {
			s.logger.Debug("candidate skipped",
				logx.Int64("unit_id", u.ID),
				logx.Int64("candidate_id", c.ID),
				logx.String("reason", reason),
			)
			continue
		}
		eligible = append(eligible, c)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if pa, pb := a.InTeam(req.Team), b.InTeam(req.Team); pa != pb {
			return pa
		}
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return a.ID < b.ID
	})
	return eligible, nil
}

func (s *Selector) reject(u *domain.OfferUnit, c domain.Candidate, busy []int64) string {
	req := u.Requirements
	switch {
	case !c.Active:
		return "inactive"
	case !c.Offers(req.Service):
		return "service"
	case req.TeamOnly && !c.InTeam(req.Team):
		return "team"
	case u.HasDeclined(c.ID):
		return "declined"
	case slices.Contains(busy, c.ID):
		return "busy"
	case req.HasWindow() && !c.Availability.Covers(req.WindowStart, req.WindowEnd, s.loc):
		return "availability"
	}
	return ""
}
