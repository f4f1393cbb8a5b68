package intake

import (
	"fmt"
	"strings"
	"time"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
)

// List of event kinds
const (
	KindCreated     = "job.created"
	KindRescheduled = "job.rescheduled"
	KindCancelled   = "job.cancelled"
)

// Event is a single job lifecycle event from the booking system.
type Event struct {
	Kind         string
	ExternalRef  string
	UnitType     domain.UnitType
	ContainerID  string
	Requirements domain.Requirements
	Payload      domain.Payload
	Change       *domain.ScheduleChange
	Reason       string
	OccurredAt   time.Time
}

// Unit builds the offer unit described by a job.created event.
func (e Event) Unit(now time.Time) (*domain.OfferUnit, error) {
	ref := strings.TrimSpace(e.ExternalRef)
	if ref == "" {
		return nil, fmt.Errorf("%w: external_ref is required", apperr.ErrValidation)
	}
	container := strings.TrimSpace(e.ContainerID)
	if container == "" {
		return nil, fmt.Errorf("%w: container_id is required", apperr.ErrValidation)
	}
	if !e.UnitType.Valid() {
		return nil, fmt.Errorf("%w: unknown unit type %q", apperr.ErrValidation, e.UnitType)
	}
	if !e.Requirements.Service.Valid() {
		return nil, fmt.Errorf("%w: unknown service %q", apperr.ErrValidation, e.Requirements.Service)
	}
	req := e.Requirements
	if req.HasWindow() && !req.WindowEnd.After(req.WindowStart) {
		return nil, fmt.Errorf("%w: window end must be after start", apperr.ErrValidation)
	}
	if req.TeamOnly && strings.TrimSpace(req.Team) == "" {
		return nil, fmt.Errorf("%w: team_only without a team", apperr.ErrValidation)
	}
	if err := e.Payload.Validate(e.UnitType); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return domain.NewOfferUnit(ref, e.UnitType, req, e.Payload, container, now), nil
}
