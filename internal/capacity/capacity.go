// Package capacity computes how full an event is and whether it is ready to
// be published.
package capacity

import "eventdesk/internal/model"

// Fill describes an event's occupancy. Percent is nil when the event has no
// configured capacity; it is the raw ratio and may exceed 100 when staff have
// over-subscribed the event deliberately.
type Fill struct {
	Confirmed int      `json:"confirmed"`
	Capacity  *int     `json:"capacity,omitempty"`
	Percent   *float64 `json:"percent,omitempty"`
}

// Compute derives the fill state from the configured capacity and the count
// of registrations in statuses that occupy a place (pending and approved).
func Compute(cap *int, confirmed int) Fill {
	f := Fill{Confirmed: confirmed, Capacity: cap}
	if cap == nil || *cap <= 0 {
		return f
	}
	p := 100 * float64(confirmed) / float64(*cap)
	f.Percent = &p
	return f
}

// PublishProblems returns the validation messages that block publication.
// An event may only go public once its derived window and its registration
// form window are both set.
func PublishProblems(e *model.Event) []string {
	var problems []string
	if e.StartTime == nil || e.EndTime == nil {
		problems = append(problems, "event start and end are not set; add at least one session")
	}
	if e.RegistrationOpens == nil || e.RegistrationCloses == nil {
		problems = append(problems, "registration open and close times are not set")
	}
	return problems
}
