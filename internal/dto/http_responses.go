package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound         = "EVENT_NOT_FOUND"
	SessionNotFound       = "SESSION_NOT_FOUND"
	RegistrationNotFound  = "REGISTRATION_NOT_FOUND"
	RegistrationDuplicate = "REGISTRATION_DUPLICATE"
	TypeNotFound          = "PARTICIPANT_TYPE_NOT_FOUND"
	TypeInUse             = "PARTICIPANT_TYPE_IN_USE"
	EventNotReady         = "EVENT_NOT_READY"
	EventReadOnly         = "EVENT_READ_ONLY"
	Forbidden             = "FORBIDDEN"
)

type CreateEventRequest struct {
	Name               string     `json:"name" validate:"required,max=255"`
	Description        string     `json:"description"`
	Mode               string     `json:"mode" validate:"required"`
	ExternalURL        string     `json:"external_url"`
	Online             bool       `json:"online"`
	Capacity           *int       `json:"capacity" validate:"omitempty,gt=0"`
	RegistrationOpens  *time.Time `json:"registration_opens"`
	RegistrationCloses *time.Time `json:"registration_closes"`
	Series             string     `json:"series"`
	ContactEmail       string     `json:"contact_email" validate:"required,email"`
}

type CreateSessionRequest struct {
	Name        string    `json:"name" validate:"required,max=255"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
	LocationIDs []int64   `json:"location_ids"`
}

type CreateLocationRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Address string `json:"address"`
}

type ParticipantTypeRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Price string `json:"price" validate:"required,price"`
}

type SubmitRegistrationRequest struct {
	FullName              string `json:"full_name" validate:"required,min=3,max=255"`
	Email                 string `json:"email" validate:"required,email"`
	ParticipantTypeID     int64  `json:"participant_type_id" validate:"required,positive"`
	Representing          string `json:"representing"`
	BillingName           string `json:"billing_name"`
	BillingAddress        string `json:"billing_address"`
	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
}

type WithdrawRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Reason      string `json:"reason" validate:"required"`
	OtherReason string `json:"other_reason"`
}

type SetRegistrationStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Paid   *bool  `json:"paid"`
}

type EventResponse struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Mode               string     `json:"mode"`
	ExternalURL        string     `json:"external_url,omitempty"`
	Published          bool       `json:"published"`
	Cancelled          bool       `json:"cancelled"`
	Online             bool       `json:"online"`
	Capacity           *int       `json:"capacity,omitempty"`
	StartTime          *time.Time `json:"start_time,omitempty"`
	EndTime            *time.Time `json:"end_time,omitempty"`
	RegistrationOpens  *time.Time `json:"registration_opens,omitempty"`
	RegistrationCloses *time.Time `json:"registration_closes,omitempty"`
	Series             string     `json:"series,omitempty"`
	ContactEmail       string     `json:"contact_email"`
	Confirmed          int        `json:"confirmed"`
	FillPercent        *float64   `json:"fill_percent,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type SessionResponse struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Locations   []string  `json:"locations,omitempty"`
}

type TimeSlotResponse struct {
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end"`
	Sessions []SessionResponse `json:"sessions"`
}

type DayResponse struct {
	Date  string             `json:"date"`
	Slots []TimeSlotResponse `json:"slots"`
}

type ParticipantTypeResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Price  string `json:"price"`
	Notice string `json:"notice,omitempty"`
}

type RegistrationResponse struct {
	Ref             string    `json:"ref"`
	EventID         int64     `json:"event_id"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	ParticipantType string    `json:"participant_type,omitempty"`
	Status          string    `json:"status"`
	Representing    string    `json:"representing,omitempty"`
	Paid            bool      `json:"paid"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NotificationMessage is the payload published to RabbitMQ for the consumer
// worker to turn into an email.
type NotificationMessage struct {
	Kind      string `json:"kind"`
	EventID   int64  `json:"event_id"`
	EventName string `json:"event_name"`
	Email     string `json:"email,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

const (
	NotifySubmitted = "submitted"
	NotifyApproved  = "approved"
	NotifyDeclined  = "declined"
	NotifyWithdrawn = "withdrawn"
	NotifyReminder  = "reminder"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func NotFoundError(c *ginext.Context, code, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error:  &Error{Code: code, Desc: desc},
	})
}

func ConflictError(c *ginext.Context, code, desc string) {
	c.JSON(409, Response{
		Status: "error",
		Error:  &Error{Code: code, Desc: desc},
	})
}

func ForbiddenError(c *ginext.Context) {
	c.JSON(403, Response{
		Status: "error",
		Error:  &Error{Code: Forbidden, Desc: "Staff access required"},
	})
}

func EventNotFoundError(c *ginext.Context) {
	NotFoundError(c, EventNotFound, "Event not found")
}

func SessionNotFoundError(c *ginext.Context) {
	NotFoundError(c, SessionNotFound, "Session not found")
}

func RegistrationNotFoundError(c *ginext.Context) {
	NotFoundError(c, RegistrationNotFound, "Registration not found")
}

func ParticipantTypeNotFoundError(c *ginext.Context) {
	NotFoundError(c, TypeNotFound, "Participant type not found for this event")
}

func RegistrationDuplicateError(c *ginext.Context) {
	ConflictError(c, RegistrationDuplicate, "A registration for this event already exists; resubmit to update it")
}

func EventReadOnlyError(c *ginext.Context) {
	BadResponseError(c, EventReadOnly, "Event is past or cancelled; registrations are read-only")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
