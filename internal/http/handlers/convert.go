package handlers

import (
	"strings"

	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/service/intake"
)

func (r createUnitRequest) toEvent() intake.Event {
	return intake.Event{
		Kind:         intake.KindCreated,
		ExternalRef:  strings.TrimSpace(r.ExternalRef),
		UnitType:     domain.UnitType(strings.ToLower(strings.TrimSpace(r.UnitType))),
		ContainerID:  strings.TrimSpace(r.ContainerID),
		Requirements: r.Requirements,
		Payload:      r.Payload,
	}
}

func (r scheduleChangeRequest) toModel() domain.ScheduleChange {
	return domain.ScheduleChange{
		Kind:          domain.ChangeKind(strings.ToLower(strings.TrimSpace(r.Kind))),
		Summary:       strings.TrimSpace(r.Summary),
		WindowStart:   r.WindowStart,
		WindowEnd:     r.WindowEnd,
		Payload:       r.Payload,
		ResetDeclines: r.ResetDeclines,
	}
}

func unitToResponse(u *domain.OfferUnit) unitResponse {
	declined := u.DeclinedCandidateIDs
	if declined == nil {
		declined = []int64{}
	}
	return unitResponse{
		ID:                   u.ID,
		ExternalRef:          u.ExternalRef,
		Type:                 string(u.Type),
		Status:               string(u.Status),
		CandidateID:          u.CandidateID,
		AssignedCandidateID:  u.AssignedCandidateID,
		NotifiedAt:           u.NotifiedAt,
		ExpiresAt:            u.ExpiresAt,
		DeclinedCandidateIDs: declined,
		ScheduleVersion:      u.ScheduleVersion,
		Requirements:         u.Requirements,
		Payload:              u.Payload,
		ContainerID:          u.ContainerID,
		PendingChange:        u.PendingChange,
		StatusReason:         u.StatusReason,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

func resolutionToResponse(res domain.Resolution) resolutionResponse {
	return resolutionResponse{
		UnitID:          res.UnitID,
		Action:          string(res.Action),
		Outcome:         string(res.Outcome),
		Message:         outcomeMessage(res),
		NextCandidateID: res.NextCandidateID,
		Escalated:       res.Escalated,
	}
}

func outcomeMessage(res domain.Resolution) string {
	switch res.Outcome {
	case domain.OutcomeAccepted:
		return "Thanks, the job is yours."
	case domain.OutcomeDeclined:
		return "Thanks, we will offer it to someone else."
	default:
		return "already handled"
	}
}
