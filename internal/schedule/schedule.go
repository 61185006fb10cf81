// Package schedule derives an event's overall time window from its sessions
// and groups sessions into a day / time-slot programme for display.
package schedule

import (
	"sort"
	"time"

	"eventdesk/internal/model"
)

// Window computes the overall (start, end) of a session collection: the
// earliest session start and the latest session end. ok is false for an empty
// collection, in which case the event's stored window must be left untouched.
func Window(sessions []model.Session) (start, end time.Time, ok bool) {
	if len(sessions) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start = sessions[0].StartTime
	end = sessions[0].EndTime
	for _, s := range sessions[1:] {
		if s.StartTime.Before(start) {
			start = s.StartTime
		}
		if s.EndTime.After(end) {
			end = s.EndTime
		}
	}
	return start, end, true
}

// TimeSlot groups the sessions sharing one exact (start, end) pair. Parallel
// sessions at the identical time collapse into a single slot.
type TimeSlot struct {
	Start    time.Time
	End      time.Time
	Sessions []model.Session
}

// Day is one calendar day of the programme, in the configured local zone.
type Day struct {
	Date  time.Time
	Slots []TimeSlot
}

// Build groups sessions into days and time slots. Days come out ascending by
// date, slots ascending by (start, end) within a day, and sessions within a
// slot keep their input order. A session spanning midnight is bucketed by its
// start date only.
func Build(sessions []model.Session, loc *time.Location) []Day {
	if len(sessions) == 0 {
		return nil
	}
	sorted := make([]model.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		}
		return sorted[i].EndTime.Before(sorted[j].EndTime)
	})

	var days []Day
	for _, s := range sorted {
		date := localDate(s.StartTime, loc)
		if len(days) == 0 || !days[len(days)-1].Date.Equal(date) {
			days = append(days, Day{Date: date})
		}
		day := &days[len(days)-1]

		if n := len(day.Slots); n > 0 &&
			day.Slots[n-1].Start.Equal(s.StartTime) &&
			day.Slots[n-1].End.Equal(s.EndTime) {
			day.Slots[n-1].Sessions = append(day.Slots[n-1].Sessions, s)
			continue
		}
		day.Slots = append(day.Slots, TimeSlot{
			Start:    s.StartTime,
			End:      s.EndTime,
			Sessions: []model.Session{s},
		})
	}
	return days
}

// localDate truncates an instant to midnight of its calendar day in loc.
func localDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ReminderLead is how far before an event's start the reminder goes out.
const ReminderLead = 24 * time.Hour

// ReminderDelaySeconds returns how many whole seconds remain until the
// reminder for an event starting at start is due. Zero or negative means the
// reminder window has already passed.
func ReminderDelaySeconds(start, now time.Time) int {
	return int(start.Add(-ReminderLead).Sub(now).Seconds())
}
