package report

import (
	"strconv"
	"time"

	"eventdesk/internal/model"
)

// RegistrationEntry is one registration joined with the context a report row
// needs: its event, its ticket class and the event's location names.
type RegistrationEntry struct {
	Registration model.Registration
	Event        model.Event
	Type         model.ParticipantType
	Locations    []string
}

// Registrations is the export table for an event's registration list.
func Registrations() Table[RegistrationEntry] {
	return NewTable(
		Field[RegistrationEntry]{
			Name:  "event_name",
			Label: "event_name",
			Extract: func(e RegistrationEntry) string {
				return e.Event.Name
			},
		},
		Field[RegistrationEntry]{
			Name:  "full_name",
			Label: "full_name",
			Extract: func(e RegistrationEntry) string {
				return e.Registration.FullName
			},
		},
		Field[RegistrationEntry]{
			Name:  "email",
			Label: "email",
			Extract: func(e RegistrationEntry) string {
				return e.Registration.Email
			},
		},
		Field[RegistrationEntry]{
			Name:  "participant_type",
			Label: "participant_type",
			Extract: func(e RegistrationEntry) string {
				return e.Type.Name
			},
		},
		Field[RegistrationEntry]{
			Name:  "price",
			Label: "price",
			Extract: func(e RegistrationEntry) string {
				return e.Type.Price()
			},
		},
		Field[RegistrationEntry]{
			Name:  "status",
			Label: "status",
			Extract: func(e RegistrationEntry) string {
				return string(e.Registration.Status)
			},
		},
		Field[RegistrationEntry]{
			Name:  "representing",
			Label: "representing",
			Extract: func(e RegistrationEntry) string {
				return e.Registration.Representing
			},
		},
		Field[RegistrationEntry]{
			Name:  "paid",
			Label: "paid",
			Extract: func(e RegistrationEntry) string {
				return strconv.FormatBool(e.Registration.Paid)
			},
		},
		Field[RegistrationEntry]{
			Name:  "locations",
			Label: "locations",
			Extract: func(e RegistrationEntry) string {
				return Join(e.Locations)
			},
		},
		Field[RegistrationEntry]{
			Name:  "registered_at",
			Label: "registered_at",
			Extract: func(e RegistrationEntry) string {
				return e.Registration.CreatedAt.Format(time.RFC3339)
			},
		},
	)
}
