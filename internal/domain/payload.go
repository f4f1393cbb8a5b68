package domain

import (
	"fmt"
	"strings"
)

// Address is a single pickup or drop-off location.
type Address struct {
	Line string  `json:"line"`
	Lat  float64 `json:"lat,omitempty"`
	Lng  float64 `json:"lng,omitempty"`
}

// Stop is one leg of a route.
type Stop struct {
	Seq     int     `json:"seq"`
	Address Address `json:"address"`
	Note    string  `json:"note,omitempty"`
}

// TaskPayload is the type-specific part of a single job-task.
type TaskPayload struct {
	Address Address `json:"address"`
	Units   int     `json:"units,omitempty"`
}

// RoutePayload is the type-specific part of a multi-stop route.
type RoutePayload struct {
	Stops []Stop `json:"stops"`
}

// Payload carries exactly one of Task or Route, matching the unit type.
type Payload struct {
	Task  *TaskPayload  `json:"task,omitempty"`
	Route *RoutePayload `json:"route,omitempty"`
}

// Validate checks that the payload variant matches the unit type.
func (p Payload) Validate(t UnitType) error {
	switch t {
	case UnitTask:
		if p.Task == nil || p.Route != nil {
			return fmt.Errorf("task unit needs a task payload")
		}
		if strings.TrimSpace(p.Task.Address.Line) == "" {
			return fmt.Errorf("task address is empty")
		}
		if p.Task.Units < 0 {
			return fmt.Errorf("negative unit count")
		}
	case UnitRoute:
		if p.Route == nil || p.Task != nil {
			return fmt.Errorf("route unit needs a route payload")
		}
		if len(p.Route.Stops) == 0 {
			return fmt.Errorf("route has no stops")
		}
		for i, s := range p.Route.Stops {
			if strings.TrimSpace(s.Address.Line) == "" {
				return fmt.Errorf("route stop %d has no address", i+1)
			}
		}
	default:
		return fmt.Errorf("unknown unit type %q", t)
	}
	return nil
}

// Describe renders a one-line summary for notifications.
func (p Payload) Describe() string {
	switch {
	case p.Task != nil:
		if p.Task.Units > 0 {
			return fmt.Sprintf("%s (%d units)", p.Task.Address.Line, p.Task.Units)
		}
		return p.Task.Address.Line
	case p.Route != nil:
		n := len(p.Route.Stops)
		if n == 0 {
			return "empty route"
		}
		return fmt.Sprintf("%d stops from %s", n, p.Route.Stops[0].Address.Line)
	default:
		return ""
	}
}

func (p Payload) clone() Payload {
	out := Payload{}
	if p.Task != nil {
		t := *p.Task
		out.Task = &t
	}
	if p.Route != nil {
		r := RoutePayload{Stops: append([]Stop(nil), p.Route.Stops...)}
		out.Route = &r
	}
	return out
}
