// Package memstore is an in-memory stand-in for the Postgres repositories.
// It applies the same conditional-write rules so service tests exercise
// real race outcomes.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
)

// Store holds units, candidates and notification claims.
type Store struct {
	mu         sync.Mutex
	nextID     int64
	units      map[int64]*domain.OfferUnit
	candidates map[int64]domain.Candidate
	claims     map[string]time.Time

	// BeforeSave, when set, runs before every conditional write. Tests use
	// it to interleave a competing writer.
	BeforeSave func(u *domain.OfferUnit)
}

// New returns an empty store.
func New() *Store {
	return &Store{
		units:      make(map[int64]*domain.OfferUnit),
		candidates: make(map[int64]domain.Candidate),
		claims:     make(map[string]time.Time),
	}
}

// Create inserts u and assigns its ID.
func (s *Store) Create(_ context.Context, u *domain.OfferUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.units {
		if x.ExternalRef == u.ExternalRef {
			return fmt.Errorf("%w: unit %q already exists", apperr.ErrConflict, u.ExternalRef)
		}
	}
	s.nextID++
	u.ID = s.nextID
	u.RowVersion = 1
	s.units[u.ID] = u.Clone()
	return nil
}

// Get returns a copy of the unit or nil.
func (s *Store) Get(_ context.Context, id int64) (*domain.OfferUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units[id].Clone(), nil
}

// GetByExternalRef returns a copy of the unit or nil.
func (s *Store) GetByExternalRef(_ context.Context, ref string) (*domain.OfferUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units {
		if u.ExternalRef == ref {
			return u.Clone(), nil
		}
	}
	return nil, nil
}

// Save is a conditional write on RowVersion and status.
func (s *Store) Save(_ context.Context, u *domain.OfferUnit, expected ...domain.OfferStatus) error {
	if hook := s.BeforeSave; hook != nil {
		hook(u)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.units[u.ID]
	if !ok || cur.RowVersion != u.RowVersion || !slices.Contains(expected, cur.Status) {
		return fmt.Errorf("%w: unit %d changed concurrently", apperr.ErrAlreadyResolved, u.ID)
	}
	if (u.Status == domain.StatusAccepted) != (u.AssignedCandidateID != nil) {
		return fmt.Errorf("%w: unit %d: assigned candidate without acceptance", apperr.ErrValidation, u.ID)
	}
	if u.Status == domain.StatusAdminEscalated {
		u.EscalationNotifiedAt = cloneTime(cur.EscalationNotifiedAt)
	} else {
		u.EscalationNotifiedAt = nil
	}
	u.RowVersion++
	s.units[u.ID] = u.Clone()
	return nil
}

// Cancel marks the unit cancelled unless it already is.
func (s *Store) Cancel(_ context.Context, u *domain.OfferUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.units[u.ID]
	if !ok || cur.Status == domain.StatusCancelled {
		return fmt.Errorf("%w: unit %d is already cancelled", apperr.ErrAlreadyResolved, u.ID)
	}
	cur.Status = domain.StatusCancelled
	cur.AssignedCandidateID = nil
	cur.StatusReason = u.StatusReason
	cur.EscalationNotifiedAt = nil
	cur.UpdatedAt = u.UpdatedAt
	cur.RowVersion++
	u.Status = domain.StatusCancelled
	u.AssignedCandidateID = nil
	u.RowVersion = cur.RowVersion
	return nil
}

// ListDue returns expired outstanding offers, oldest first.
func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]*domain.OfferUnit, error) {
	return s.list(limit, func(u *domain.OfferUnit) bool {
		return u.Status.Outstanding() && u.ExpiresAt != nil && !u.ExpiresAt.After(now)
	}, func(a, b *domain.OfferUnit) bool { return a.ExpiresAt.Before(*b.ExpiresAt) }), nil
}

// ListStalled returns none/expired units untouched since before.
func (s *Store) ListStalled(_ context.Context, before time.Time, limit int) ([]*domain.OfferUnit, error) {
	return s.list(limit, func(u *domain.OfferUnit) bool {
		return (u.Status == domain.StatusNone || u.Status == domain.StatusExpired) && !u.UpdatedAt.After(before)
	}, func(a, b *domain.OfferUnit) bool { return a.UpdatedAt.Before(b.UpdatedAt) }), nil
}

// ListUnnotifiedEscalations returns escalated units whose operator alert
// never went out, escalated at or before the cutoff.
func (s *Store) ListUnnotifiedEscalations(_ context.Context, before time.Time, limit int) ([]*domain.OfferUnit, error) {
	return s.list(limit, func(u *domain.OfferUnit) bool {
		return u.PendingEscalation() && !u.UpdatedAt.After(before)
	}, func(a, b *domain.OfferUnit) bool { return a.UpdatedAt.Before(b.UpdatedAt) }), nil
}

// MarkEscalationsNotified flags escalated units as reported. RowVersion is
// left untouched.
func (s *Store) MarkEscalationsNotified(_ context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if u, ok := s.units[id]; ok && u.PendingEscalation() {
			u.EscalationNotifiedAt = &at
		}
	}
	return nil
}

// ListOutstandingForCandidate returns live offers held by the candidate,
// most recently notified first.
func (s *Store) ListOutstandingForCandidate(_ context.Context, candidateID int64) ([]*domain.OfferUnit, error) {
	return s.list(0, func(u *domain.OfferUnit) bool {
		return u.HeldBy(candidateID)
	}, func(a, b *domain.OfferUnit) bool { return a.NotifiedAt.After(*b.NotifiedAt) }), nil
}

// BusyCandidates returns candidates holding or bound to another unit with
// an overlapping window.
func (s *Store) BusyCandidates(_ context.Context, excludeUnitID int64, start, end time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, u := range s.units {
		if u.ID == excludeUnitID || !u.Requirements.HasWindow() {
			continue
		}
		if !u.Status.Outstanding() && u.Status != domain.StatusAccepted {
			continue
		}
		if !u.Requirements.WindowStart.Before(end) || !u.Requirements.WindowEnd.After(start) {
			continue
		}
		holder := u.AssignedCandidateID
		if holder == nil {
			holder = u.CandidateID
		}
		if holder != nil && !slices.Contains(out, *holder) {
			out = append(out, *holder)
		}
	}
	return out, nil
}

func (s *Store) list(limit int, keep func(*domain.OfferUnit) bool, less func(a, b *domain.OfferUnit) bool) []*domain.OfferUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.OfferUnit
	for _, u := range s.units {
		if keep(u) {
			out = append(out, u.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Unit returns the stored unit without going through a context (tests).
func (s *Store) Unit(id int64) *domain.OfferUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units[id].Clone()
}

// AddCandidate registers a candidate and assigns an ID when it has none.
func (s *Store) AddCandidate(c domain.Candidate) domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = int64(len(s.candidates) + 1)
		for s.candidates[c.ID].ID != 0 {
			c.ID++
		}
	}
	s.candidates[c.ID] = c
	return c
}

// ListActive returns active candidates ordered by registration time.
func (s *Store) ListActive(_ context.Context) ([]domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Candidate
	for _, c := range s.candidates {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetCandidate returns the candidate or nil.
func (s *Store) GetCandidate(_ context.Context, id int64) (*domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// GetByPhone returns the candidate with phone or nil.
func (s *Store) GetByPhone(_ context.Context, phone string) (*domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.candidates {
		if c.Phone == phone {
			return &c, nil
		}
	}
	return nil, nil
}

// Claim records a dedup key until now+ttl.
func (s *Store) Claim(_ context.Context, key string, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.claims[key]; ok && exp.After(now) {
		return false, nil
	}
	s.claims[key] = now.Add(ttl)
	return true, nil
}

// Purge drops expired claims.
func (s *Store) Purge(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, exp := range s.claims {
		if !exp.After(now) {
			delete(s.claims, k)
			n++
		}
	}
	return n, nil
}

// Candidates adapts the store to the candidate repository shape.
func (s *Store) Candidates() *CandidateView { return &CandidateView{s: s} }

// CandidateView exposes candidate lookups under repository method names.
type CandidateView struct{ s *Store }

// ListActive returns active candidates.
func (v *CandidateView) ListActive(ctx context.Context) ([]domain.Candidate, error) {
	return v.s.ListActive(ctx)
}

// Get returns the candidate or nil.
func (v *CandidateView) Get(ctx context.Context, id int64) (*domain.Candidate, error) {
	return v.s.GetCandidate(ctx, id)
}

// GetByPhone returns the candidate or nil.
func (v *CandidateView) GetByPhone(ctx context.Context, phone string) (*domain.Candidate, error) {
	return v.s.GetByPhone(ctx, phone)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
