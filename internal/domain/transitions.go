package domain

import (
	"fmt"
	"time"

	"offer-dispatch/internal/apperr"
)

// Transitions mutate the unit in memory only. Persisting them is a
// conditional write on RowVersion done by the caller.

func illegal(u *OfferUnit, op string) error {
	return fmt.Errorf("%w: cannot %s unit %d in status %s", apperr.ErrAlreadyResolved, op, u.ID, u.Status)
}

// Offer sends the unit to a candidate: none|expired -> sent.
func (u *OfferUnit) Offer(candidateID int64, now time.Time, window time.Duration) error {
	if u.Status != StatusNone && u.Status != StatusExpired {
		return illegal(u, "offer")
	}
	if u.HasDeclined(candidateID) {
		return fmt.Errorf("%w: candidate %d already declined unit %d", apperr.ErrValidation, candidateID, u.ID)
	}
	u.Status = StatusSent
	u.CandidateID = Int64Ptr(candidateID)
	u.AssignedCandidateID = nil
	u.NotifiedAt = TimePtr(now)
	u.ExpiresAt = TimePtr(now.Add(window))
	u.StatusReason = ""
	u.UpdatedAt = now
	return nil
}

// Accept binds the live offer: sent|pending_reconfirmation -> accepted.
func (u *OfferUnit) Accept(candidateID int64, now time.Time) error {
	if !u.HeldBy(candidateID) {
		return illegal(u, "accept")
	}
	u.Status = StatusAccepted
	u.AssignedCandidateID = Int64Ptr(candidateID)
	if u.PendingChange != nil && u.PendingChange.Status == ChangePending {
		u.PendingChange.Status = ChangeConfirmed
	}
	u.UpdatedAt = now
	return nil
}

// RevertAcceptance restores the pre-acceptance state after the provider
// refused the binding. The unit stays assignable to the same candidate.
func (u *OfferUnit) RevertAcceptance(prev OfferStatus, now time.Time) error {
	if u.Status != StatusAccepted || !prev.Outstanding() {
		return illegal(u, "revert acceptance of")
	}
	u.Status = prev
	u.AssignedCandidateID = nil
	if prev == StatusPendingReconfirmation && u.PendingChange != nil {
		u.PendingChange.Status = ChangePending
	}
	u.UpdatedAt = now
	return nil
}

// Decline records the refusal and frees the unit: sent|pending_reconfirmation -> none.
func (u *OfferUnit) Decline(candidateID int64, now time.Time) error {
	if !u.HeldBy(candidateID) {
		return illegal(u, "decline")
	}
	u.release(candidateID, now)
	u.Status = StatusNone
	if u.PendingChange != nil && u.PendingChange.Status == ChangePending {
		u.PendingChange.Status = ChangeDeclined
	}
	return nil
}

// Expire times out the live offer: sent|pending_reconfirmation -> expired.
// A silent candidate is treated like one who declined.
func (u *OfferUnit) Expire(now time.Time) error {
	if !u.Status.Outstanding() || !u.ExpiredAt(now) {
		return illegal(u, "expire")
	}
	if u.CandidateID != nil {
		u.release(*u.CandidateID, now)
	}
	u.Status = StatusExpired
	if u.PendingChange != nil && u.PendingChange.Status == ChangePending {
		u.PendingChange.Status = ChangeExpired
	}
	return nil
}

func (u *OfferUnit) release(candidateID int64, now time.Time) {
	if !u.HasDeclined(candidateID) {
		u.DeclinedCandidateIDs = append(u.DeclinedCandidateIDs, candidateID)
	}
	u.CandidateID = nil
	u.AssignedCandidateID = nil
	u.NotifiedAt = nil
	u.ExpiresAt = nil
	u.UpdatedAt = now
}

// Escalate hands the unit to operators: none|expired -> admin_escalated.
func (u *OfferUnit) Escalate(reason string, now time.Time) (Escalation, error) {
	if u.Status != StatusNone && u.Status != StatusExpired {
		return Escalation{}, illegal(u, "escalate")
	}
	u.Status = StatusAdminEscalated
	u.CandidateID = nil
	u.StatusReason = reason
	u.EscalationNotifiedAt = nil
	u.UpdatedAt = now
	return u.Escalation(), nil
}

// ApplyChange copies the changed attributes into the unit and bumps the
// schedule version. Declines are kept unless the change resets them.
func (u *OfferUnit) ApplyChange(c ScheduleChange, now time.Time) {
	if c.WindowStart != nil {
		u.Requirements.WindowStart = *c.WindowStart
	}
	if c.WindowEnd != nil {
		u.Requirements.WindowEnd = *c.WindowEnd
	}
	if c.Payload != nil {
		u.Payload = c.Payload.clone()
	}
	if c.ResetDeclines {
		u.DeclinedCandidateIDs = nil
	}
	u.ScheduleVersion++
	c.Version = u.ScheduleVersion
	c.RequestedAt = now
	if c.Status == "" {
		c.Status = ChangePending
	}
	u.PendingChange = c.clone()
	u.UpdatedAt = now
}

// RequestReconfirmation demotes an acceptance after a change and asks the
// incumbent again: accepted|pending_reconfirmation -> pending_reconfirmation.
func (u *OfferUnit) RequestReconfirmation(c ScheduleChange, now time.Time, window time.Duration) error {
	var incumbent int64
	switch {
	case u.Status == StatusAccepted && u.AssignedCandidateID != nil:
		incumbent = *u.AssignedCandidateID
	case u.Status == StatusPendingReconfirmation && u.CandidateID != nil:
		incumbent = *u.CandidateID
	default:
		return illegal(u, "reconfirm")
	}
	c.Status = ChangePending
	u.ApplyChange(c, now)
	u.Status = StatusPendingReconfirmation
	u.CandidateID = Int64Ptr(incumbent)
	u.AssignedCandidateID = nil
	u.NotifiedAt = TimePtr(now)
	u.ExpiresAt = TimePtr(now.Add(window))
	return nil
}

// Reoffer renews a sent offer to the same candidate after its details changed.
func (u *OfferUnit) Reoffer(now time.Time, window time.Duration) error {
	if u.Status != StatusSent || u.CandidateID == nil {
		return illegal(u, "re-offer")
	}
	u.NotifiedAt = TimePtr(now)
	u.ExpiresAt = TimePtr(now.Add(window))
	u.UpdatedAt = now
	return nil
}

// Cancel is unconditional apart from "not already cancelled".
func (u *OfferUnit) Cancel(reason string, now time.Time) error {
	if u.Status == StatusCancelled {
		return illegal(u, "cancel")
	}
	u.Status = StatusCancelled
	u.AssignedCandidateID = nil
	u.StatusReason = reason
	u.EscalationNotifiedAt = nil
	u.UpdatedAt = now
	return nil
}
