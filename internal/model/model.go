package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RegistrationMode controls how participants get into an event.
type RegistrationMode string

const (
	ModeRegister RegistrationMode = "register"
	ModeApply    RegistrationMode = "apply"
	ModeExternal RegistrationMode = "external"
	ModeInvite   RegistrationMode = "invite"
)

func (m RegistrationMode) Valid() bool {
	switch m {
	case ModeRegister, ModeApply, ModeExternal, ModeInvite:
		return true
	}
	return false
}

// SelfService reports whether participants submit registrations through this
// service at all. External and invite-only events take no direct submissions.
func (m RegistrationMode) SelfService() bool {
	return m == ModeRegister || m == ModeApply
}

// RegistrationStatus is the stored state of a live registration. Withdrawal is
// not a status: a withdrawn registration is deleted and replaced by a
// DeletedRegistration audit row.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusDeclined RegistrationStatus = "declined"
)

func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeclined:
		return true
	}
	return false
}

// CountsTowardCapacity reports whether a registration in this status occupies
// a place. Declined registrations free their place; withdrawn ones no longer
// exist.
func (s RegistrationStatus) CountsTowardCapacity() bool {
	return s == StatusPending || s == StatusApproved
}

// WithdrawalReason is the coded reason captured when a registration is
// withdrawn.
type WithdrawalReason string

const (
	ReasonPreferNotToSay       WithdrawalReason = "prefer-not-to-say"
	ReasonIllness              WithdrawalReason = "illness"
	ReasonNoLongerInterested   WithdrawalReason = "no-longer-interested"
	ReasonChangeOfPlans        WithdrawalReason = "change-of-plans"
	ReasonNoFunding            WithdrawalReason = "no-funding"
	ReasonInconvenientLocation WithdrawalReason = "inconvenient-location"
	ReasonClashOfPD            WithdrawalReason = "clash-of-pd"
	ReasonWrongEvent           WithdrawalReason = "wrong-event"
	ReasonOther                WithdrawalReason = "other"
)

func ParseWithdrawalReason(s string) (WithdrawalReason, bool) {
	r := WithdrawalReason(s)
	switch r {
	case ReasonPreferNotToSay, ReasonIllness, ReasonNoLongerInterested,
		ReasonChangeOfPlans, ReasonNoFunding, ReasonInconvenientLocation,
		ReasonClashOfPD, ReasonWrongEvent, ReasonOther:
		return r, true
	}
	return "", false
}

type Event struct {
	ID                 int64            `db:"id" json:"id"`
	Name               string           `db:"name" json:"name"`
	Description        string           `db:"description" json:"description,omitempty"`
	Mode               RegistrationMode `db:"mode" json:"mode"`
	ExternalURL        string           `db:"external_url" json:"external_url,omitempty"`
	Published          bool             `db:"published" json:"published"`
	Cancelled          bool             `db:"cancelled" json:"cancelled"`
	Online             bool             `db:"online" json:"online"`
	Capacity           *int             `db:"capacity" json:"capacity,omitempty"`
	StartTime          *time.Time       `db:"start_time" json:"start_time,omitempty"`
	EndTime            *time.Time       `db:"end_time" json:"end_time,omitempty"`
	RegistrationOpens  *time.Time       `db:"registration_opens" json:"registration_opens,omitempty"`
	RegistrationCloses *time.Time       `db:"registration_closes" json:"registration_closes,omitempty"`
	Series             string           `db:"series" json:"series,omitempty"`
	ContactEmail       string           `db:"contact_email" json:"contact_email"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Past reports whether the event has already finished. Events without a
// derived window are never past.
func (e *Event) Past(now time.Time) bool {
	return e.EndTime != nil && e.EndTime.Before(now)
}

// ReadOnly reports whether staff edits to the event's registrations are
// locked. Past or cancelled events render for review but reject mutation.
func (e *Event) ReadOnly(now time.Time) bool {
	return e.Cancelled || e.Past(now)
}

// RequiresEmergencyContact reports whether registrations must carry emergency
// contact details. Fully-online events have no venue to be reached at.
func (e *Event) RequiresEmergencyContact() bool {
	return !e.Online
}

type Session struct {
	ID          int64      `db:"id" json:"id"`
	EventID     int64      `db:"event_id" json:"event_id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description,omitempty"`
	StartTime   time.Time  `db:"start_time" json:"start_time"`
	EndTime     time.Time  `db:"end_time" json:"end_time"`
	Locations   []Location `db:"-" json:"locations,omitempty"`
}

type Location struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Address string `db:"address" json:"address,omitempty"`
}

// ParticipantType is a named, priced ticket class. A single row may be shared
// by any number of events offering the same (name, price) pair.
type ParticipantType struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Price renders the price as a decimal string, e.g. 1000 -> "10.00".
func (p ParticipantType) Price() string {
	return FormatPrice(p.PriceCents)
}

func FormatPrice(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// ParsePrice converts a decimal price string with at most two fractional
// digits into cents. Negative prices are rejected.
func ParsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("price is empty")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("price must not be negative")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	cents := units * 100
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("price %q must have at most two decimal places", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid price %q", s)
		}
		cents += f
	}
	return cents, nil
}

// FreeEvent reports whether every ticket class offered by the event is free.
// Billing details are only required when at least one class carries a price.
func FreeEvent(types []ParticipantType) bool {
	for _, t := range types {
		if t.PriceCents > 0 {
			return false
		}
	}
	return true
}

type Registration struct {
	ID                    int64              `db:"id" json:"id"`
	PublicRef             string             `db:"public_ref" json:"public_ref"`
	EventID               int64              `db:"event_id" json:"event_id"`
	Email                 string             `db:"email" json:"email"`
	FullName              string             `db:"full_name" json:"full_name"`
	ParticipantTypeID     int64              `db:"participant_type_id" json:"participant_type_id"`
	Status                RegistrationStatus `db:"status" json:"status"`
	Representing          string             `db:"representing" json:"representing,omitempty"`
	BillingName           string             `db:"billing_name" json:"billing_name,omitempty"`
	BillingAddress        string             `db:"billing_address" json:"billing_address,omitempty"`
	EmergencyContactName  string             `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string             `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	Paid                  bool               `db:"paid" json:"paid"`
	CreatedAt             time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at" json:"updated_at"`
}

// DeletedRegistration is the write-once audit record left behind by a
// withdrawal.
type DeletedRegistration struct {
	ID          int64            `db:"id" json:"id"`
	PublicRef   string           `db:"public_ref" json:"public_ref"`
	EventID     int64            `db:"event_id" json:"event_id"`
	Reason      WithdrawalReason `db:"reason" json:"reason"`
	OtherReason string           `db:"other_reason" json:"other_reason,omitempty"`
	DeletedAt   time.Time        `db:"deleted_at" json:"deleted_at"`
}
