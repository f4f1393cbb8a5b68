package handlers

import (
	"time"

	"offer-dispatch/internal/domain"
)

type messageResponse struct {
	Message string `json:"message"`
}

type resolutionResponse struct {
	UnitID          int64  `json:"unit_id"`
	Action          string `json:"action"`
	Outcome         string `json:"outcome"`
	Message         string `json:"message"`
	NextCandidateID *int64 `json:"next_candidate_id,omitempty"`
	Escalated       bool   `json:"escalated,omitempty"`
}

type replyRequest struct {
	From string `json:"from"`
	Body string `json:"body"`
}

type createUnitRequest struct {
	ExternalRef  string              `json:"external_ref"`
	UnitType     string              `json:"unit_type"`
	ContainerID  string              `json:"container_id"`
	Requirements domain.Requirements `json:"requirements"`
	Payload      domain.Payload      `json:"payload"`
}

type scheduleChangeRequest struct {
	Kind          string          `json:"kind"`
	Summary       string          `json:"summary"`
	WindowStart   *time.Time      `json:"window_start,omitempty"`
	WindowEnd     *time.Time      `json:"window_end,omitempty"`
	Payload       *domain.Payload `json:"payload,omitempty"`
	ResetDeclines bool            `json:"reset_declines,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type unitResponse struct {
	ID                   int64                  `json:"id"`
	ExternalRef          string                 `json:"external_ref"`
	Type                 string                 `json:"unit_type"`
	Status               string                 `json:"status"`
	CandidateID          *int64                 `json:"candidate_id,omitempty"`
	AssignedCandidateID  *int64                 `json:"assigned_candidate_id,omitempty"`
	NotifiedAt           *time.Time             `json:"notified_at,omitempty"`
	ExpiresAt            *time.Time             `json:"expires_at,omitempty"`
	DeclinedCandidateIDs []int64                `json:"declined_candidate_ids"`
	ScheduleVersion      int64                  `json:"schedule_version"`
	Requirements         domain.Requirements    `json:"requirements"`
	Payload              domain.Payload         `json:"payload"`
	ContainerID          string                 `json:"container_id,omitempty"`
	PendingChange        *domain.ScheduleChange `json:"pending_change,omitempty"`
	StatusReason         string                 `json:"status_reason,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}
