package domain

import (
	"fmt"
	"strings"
	"time"
)

type (
	// ChangeKind says what part of a job changed.
	ChangeKind string
	// ChangeStatus tracks the incumbent's answer to a schedule change.
	ChangeStatus string
)

// List of change kinds
const (
	ChangeTime    ChangeKind = "time"
	ChangeAddress ChangeKind = "address"
	ChangeUnits   ChangeKind = "units"
)

// List of change statuses
const (
	ChangePending   ChangeStatus = "pending"
	ChangeConfirmed ChangeStatus = "confirmed"
	ChangeDeclined  ChangeStatus = "declined"
	ChangeExpired   ChangeStatus = "expired"
)

// ScheduleChange is a change request that can invalidate an acceptance.
// A nil field means the corresponding attribute is left as is.
type ScheduleChange struct {
	Kind          ChangeKind   `json:"kind"`
	Summary       string       `json:"summary"`
	WindowStart   *time.Time   `json:"window_start,omitempty"`
	WindowEnd     *time.Time   `json:"window_end,omitempty"`
	Payload       *Payload     `json:"payload,omitempty"`
	ResetDeclines bool         `json:"reset_declines,omitempty"`
	Version       int64        `json:"version"`
	Status        ChangeStatus `json:"status"`
	RequestedAt   time.Time    `json:"requested_at"`
}

// Validate checks the change request against the unit it applies to.
func (c ScheduleChange) Validate(u *OfferUnit) error {
	switch c.Kind {
	case ChangeTime, ChangeAddress, ChangeUnits:
	default:
		return fmt.Errorf("unknown change kind %q", c.Kind)
	}
	if strings.TrimSpace(c.Summary) == "" {
		return fmt.Errorf("change summary is empty")
	}
	if c.Kind == ChangeTime && c.WindowStart == nil && c.WindowEnd == nil {
		return fmt.Errorf("time change without a new window")
	}
	start, end := u.Requirements.WindowStart, u.Requirements.WindowEnd
	if c.WindowStart != nil {
		start = *c.WindowStart
	}
	if c.WindowEnd != nil {
		end = *c.WindowEnd
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return fmt.Errorf("window end must be after start")
	}
	if c.Payload != nil {
		if err := c.Payload.Validate(u.Type); err != nil {
			return err
		}
	}
	if (c.Kind == ChangeAddress || c.Kind == ChangeUnits) && c.Payload == nil {
		return fmt.Errorf("%s change without a payload", c.Kind)
	}
	return nil
}

func (c *ScheduleChange) clone() *ScheduleChange {
	if c == nil {
		return nil
	}
	out := *c
	if c.WindowStart != nil {
		t := *c.WindowStart
		out.WindowStart = &t
	}
	if c.WindowEnd != nil {
		t := *c.WindowEnd
		out.WindowEnd = &t
	}
	if c.Payload != nil {
		p := c.Payload.clone()
		out.Payload = &p
	}
	return &out
}
