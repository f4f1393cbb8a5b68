package kafka

import (
	"strings"
	"time"

	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/service/intake"
)

// EventDTO is the wire form of a job event on the jobs topic.
type EventDTO struct {
	Kind         string                 `json:"kind"`
	ExternalRef  string                 `json:"external_ref"`
	UnitType     string                 `json:"unit_type,omitempty"`
	ContainerID  string                 `json:"container_id,omitempty"`
	Requirements domain.Requirements    `json:"requirements"`
	Payload      domain.Payload         `json:"payload"`
	Change       *domain.ScheduleChange `json:"change,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// ToDomain converts EventDTO to intake.Event.
func ToDomain(dto EventDTO) intake.Event {
	return intake.Event{
		Kind:         strings.TrimSpace(dto.Kind),
		ExternalRef:  strings.TrimSpace(dto.ExternalRef),
		UnitType:     domain.UnitType(strings.ToLower(strings.TrimSpace(dto.UnitType))),
		ContainerID:  strings.TrimSpace(dto.ContainerID),
		Requirements: dto.Requirements,
		Payload:      dto.Payload,
		Change:       dto.Change,
		Reason:       strings.TrimSpace(dto.Reason),
		OccurredAt:   dto.OccurredAt,
	}
}
