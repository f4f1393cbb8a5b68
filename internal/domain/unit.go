package domain

import (
	"slices"
	"time"
)

// Requirements describe who may take a unit and when it runs.
type Requirements struct {
	Service     ServiceType `json:"service"`
	Team        string      `json:"team,omitempty"`
	TeamOnly    bool        `json:"team_only,omitempty"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
}

// HasWindow reports whether the unit is bound to a time window.
func (r Requirements) HasWindow() bool {
	return !r.WindowStart.IsZero() && !r.WindowEnd.IsZero()
}

// OfferUnit is a task or a route tracked through the offer state machine.
type OfferUnit struct {
	ID                   int64
	ExternalRef          string
	Type                 UnitType
	Status               OfferStatus
	CandidateID          *int64
	AssignedCandidateID  *int64
	NotifiedAt           *time.Time
	ExpiresAt            *time.Time
	DeclinedCandidateIDs []int64
	ScheduleVersion      int64
	// RowVersion is bumped by every write and guards conditional updates.
	RowVersion    int64
	Requirements  Requirements
	Payload       Payload
	ContainerID   string
	PendingChange *ScheduleChange
	// StatusReason explains the last escalation or cancellation.
	StatusReason string
	// EscalationNotifiedAt is set once operators were told about the
	// current escalation.
	EscalationNotifiedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewOfferUnit builds a unit in the initial "none" state.
func NewOfferUnit(ref string, t UnitType, req Requirements, p Payload, containerID string, now time.Time) *OfferUnit {
	return &OfferUnit{
		ExternalRef:     ref,
		Type:            t,
		Status:          StatusNone,
		ScheduleVersion: 1,
		Requirements:    req,
		Payload:         p,
		ContainerID:     containerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasDeclined reports whether the candidate is excluded from this unit.
func (u *OfferUnit) HasDeclined(candidateID int64) bool {
	return slices.Contains(u.DeclinedCandidateIDs, candidateID)
}

// HeldBy reports whether candidateID holds the live offer.
func (u *OfferUnit) HeldBy(candidateID int64) bool {
	return u.Status.Outstanding() && u.CandidateID != nil && *u.CandidateID == candidateID
}

// ExpiredAt reports whether the live offer window has passed at now.
func (u *OfferUnit) ExpiredAt(now time.Time) bool {
	return u.ExpiresAt != nil && !now.Before(*u.ExpiresAt)
}

// Clone returns a deep copy.
func (u *OfferUnit) Clone() *OfferUnit {
	if u == nil {
		return nil
	}
	out := *u
	out.CandidateID = cloneInt(u.CandidateID)
	out.AssignedCandidateID = cloneInt(u.AssignedCandidateID)
	out.NotifiedAt = cloneTime(u.NotifiedAt)
	out.ExpiresAt = cloneTime(u.ExpiresAt)
	out.EscalationNotifiedAt = cloneTime(u.EscalationNotifiedAt)
	out.DeclinedCandidateIDs = append([]int64(nil), u.DeclinedCandidateIDs...)
	out.Payload = u.Payload.clone()
	out.PendingChange = u.PendingChange.clone()
	return &out
}

// PendingEscalation reports whether operators still have to be told that
// the unit was escalated.
func (u *OfferUnit) PendingEscalation() bool {
	return u.Status == StatusAdminEscalated && u.EscalationNotifiedAt == nil
}

// Escalation returns the operator-facing record of an escalated unit.
func (u *OfferUnit) Escalation() Escalation {
	return Escalation{
		UnitID:      u.ID,
		ExternalRef: u.ExternalRef,
		UnitType:    u.Type,
		Reason:      u.StatusReason,
		At:          u.UpdatedAt,
	}
}

// Escalation is an operator-facing record of a unit nobody could take.
type Escalation struct {
	UnitID      int64
	ExternalRef string
	UnitType    UnitType
	Reason      string
	At          time.Time
}

// Outcome is the user-facing result of a response.
type Outcome string

// List of response outcomes
const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeDeclined       Outcome = "declined"
	OutcomeAlreadyHandled Outcome = "already_handled"
)

// Resolution describes what happened to a unit after a candidate answered.
type Resolution struct {
	UnitID          int64
	CandidateID     int64
	Action          Action
	Outcome         Outcome
	NextCandidateID *int64
	Escalated       bool
}

func cloneInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// TimePtr returns a pointer to v.
func TimePtr(v time.Time) *time.Time { return &v }
