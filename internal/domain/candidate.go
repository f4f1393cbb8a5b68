package domain

import (
	"slices"
	"time"
)

// WeeklyWindow is a recurring availability slot. From and To are minutes
// since midnight, To exclusive.
type WeeklyWindow struct {
	Weekday time.Weekday `json:"weekday"`
	From    int          `json:"from"`
	To      int          `json:"to"`
}

// Availability is a candidate's calendar.
type Availability struct {
	Weekly  []WeeklyWindow `json:"weekly"`
	Blocked []string       `json:"blocked,omitempty"` // YYYY-MM-DD
}

// Candidate is a driver or mover owned by the worker-management subsystem.
type Candidate struct {
	ID           int64
	ExternalID   string
	Name         string
	Phone        string
	Teams        []string
	Services     []ServiceType
	Active       bool
	Availability Availability
	RegisteredAt time.Time
}

// InTeam reports team membership.
func (c Candidate) InTeam(team string) bool {
	return team != "" && slices.Contains(c.Teams, team)
}

// Offers reports whether the candidate performs the service.
func (c Candidate) Offers(s ServiceType) bool {
	return s == "" || slices.Contains(c.Services, s)
}

// Covers reports whether the calendar covers [start, end) in loc. A window
// that crosses midnight is not covered by a single weekly slot.
func (a Availability) Covers(start, end time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	s, e := start.In(loc), end.In(loc)
	if !e.After(s) {
		return false
	}
	last := e.Add(-time.Minute)
	for d := dateOf(s); !d.After(dateOf(last)); d = d.AddDate(0, 0, 1) {
		if slices.Contains(a.Blocked, d.Format(time.DateOnly)) {
			return false
		}
	}
	if !dateOf(s).Equal(dateOf(last)) {
		return false
	}
	from := s.Hour()*60 + s.Minute()
	to := e.Hour()*60 + e.Minute()
	if !dateOf(e).Equal(dateOf(s)) {
		to = 24 * 60
	}
	for _, w := range a.Weekly {
		if w.Weekday == s.Weekday() && w.From <= from && to <= w.To {
			return true
		}
	}
	return false
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
