package offer

import (
	"context"
	"time"

	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/notify"
	"offer-dispatch/internal/token"
)

// UnitStore persists offer units with conditional writes.
type UnitStore interface {
	Get(ctx context.Context, id int64) (*domain.OfferUnit, error)
	Save(ctx context.Context, u *domain.OfferUnit, expected ...domain.OfferStatus) error
	Cancel(ctx context.Context, u *domain.OfferUnit) error
	ListOutstandingForCandidate(ctx context.Context, candidateID int64) ([]*domain.OfferUnit, error)
	MarkEscalationsNotified(ctx context.Context, ids []int64, at time.Time) error
}

// CandidateStore looks candidates up.
type CandidateStore interface {
	Get(ctx context.Context, id int64) (*domain.Candidate, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Candidate, error)
}

// Selector picks the next eligible candidate, nil when none is left.
type Selector interface {
	Next(ctx context.Context, u *domain.OfferUnit) (*domain.Candidate, error)
}

// Tokens mints and verifies offer links.
type Tokens interface {
	Mint(u *domain.OfferUnit, action domain.Action) (string, token.Claims, error)
	Parse(raw string) (token.Claims, error)
}

// Notifier sends candidate and operator messages.
type Notifier interface {
	Offer(ctx context.Context, u *domain.OfferUnit, c *domain.Candidate, links notify.Links) (bool, error)
	Reconfirm(ctx context.Context, u *domain.OfferUnit, c *domain.Candidate, links notify.Links) (bool, error)
	Cancelled(ctx context.Context, u *domain.OfferUnit, c *domain.Candidate) (bool, error)
	Escalations(ctx context.Context, escs []domain.Escalation) error
	SyncFailure(ctx context.Context, u *domain.OfferUnit, op string, cause error) error
}

// Provider is the external dispatch system holding container assignments.
type Provider interface {
	AssignWorker(ctx context.Context, containerID, workerID string) error
	UnassignWorker(ctx context.Context, containerID string) error
	MoveToPool(ctx context.Context, containerID, poolID string) error
}

// Metrics receives dispatch events.
type Metrics interface {
	OfferSent(ut domain.UnitType)
	Response(a domain.Action, o domain.Outcome)
	Expired()
	Escalated(n int)
	Reconfirmation()
	Cancelled()
	NotificationFailed(kind string)
	SyncFailed(op string)
}

type nopMetrics struct{}

func (nopMetrics) OfferSent(domain.UnitType)              {}
func (nopMetrics) Response(domain.Action, domain.Outcome) {}
func (nopMetrics) Expired()                               {}
func (nopMetrics) Escalated(int)                          {}
func (nopMetrics) Reconfirmation()                        {}
func (nopMetrics) Cancelled()                             {}
func (nopMetrics) NotificationFailed(string)              {}
func (nopMetrics) SyncFailed(string)                      {}
