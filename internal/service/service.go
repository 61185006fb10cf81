package service

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventdesk/internal/capacity"
	"eventdesk/internal/dto"
	"eventdesk/internal/model"
	"eventdesk/internal/repo"
	"eventdesk/internal/report"
	"eventdesk/internal/schedule"
	"eventdesk/pkg/validator"
)

// Publisher is the slice of the rabbit client the service needs.
type Publisher interface {
	Publish(message []byte, delaySeconds int) error
}

type Service interface {
	CreateEvent(ctx *ginext.Context)
	UpdateEvent(ctx *ginext.Context)
	PublishEvent(ctx *ginext.Context)
	CancelEvent(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)

	CreateSession(ctx *ginext.Context)
	UpdateSession(ctx *ginext.Context)
	DeleteSession(ctx *ginext.Context)
	GetSchedule(ctx *ginext.Context)

	CreateLocation(ctx *ginext.Context)
	GetLocations(ctx *ginext.Context)

	CreateParticipantType(ctx *ginext.Context)
	UpdateParticipantType(ctx *ginext.Context)
	DeleteParticipantType(ctx *ginext.Context)
	GetParticipantTypes(ctx *ginext.Context)

	SubmitRegistration(ctx *ginext.Context)
	WithdrawRegistration(ctx *ginext.Context)
	GetRegistrations(ctx *ginext.Context)
	SetRegistrationStatus(ctx *ginext.Context)

	ExportRegistrations(ctx *ginext.Context)
}

type service struct {
	repo        repo.Repository
	log         *zerolog.Logger
	pub         Publisher
	loc         *time.Location
	autoApprove bool
	now         func() time.Time
}

func NewService(repo repo.Repository, logger *zerolog.Logger, pub Publisher, loc *time.Location, autoApprove bool) Service {
	return &service{
		repo:        repo,
		log:         logger,
		pub:         pub,
		loc:         loc,
		autoApprove: autoApprove,
		now:         time.Now,
	}
}

func paramID(ctx *ginext.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func (s *service) notify(msg dto.NotificationMessage, delaySeconds int) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal notification")
		return
	}
	if err := s.pub.Publish(payload, delaySeconds); err != nil {
		s.log.Error().Err(err).Str("kind", msg.Kind).Msg("failed to publish notification")
	}
}

func eventResponse(e *model.Event, fill capacity.Fill) dto.EventResponse {
	return dto.EventResponse{
		ID:                 e.ID,
		Name:               e.Name,
		Description:        e.Description,
		Mode:               string(e.Mode),
		ExternalURL:        e.ExternalURL,
		Published:          e.Published,
		Cancelled:          e.Cancelled,
		Online:             e.Online,
		Capacity:           e.Capacity,
		StartTime:          e.StartTime,
		EndTime:            e.EndTime,
		RegistrationOpens:  e.RegistrationOpens,
		RegistrationCloses: e.RegistrationCloses,
		Series:             e.Series,
		ContactEmail:       e.ContactEmail,
		Confirmed:          fill.Confirmed,
		FillPercent:        fill.Percent,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func sessionResponse(s model.Session) dto.SessionResponse {
	resp := dto.SessionResponse{
		ID:          s.ID,
		EventID:     s.EventID,
		Name:        s.Name,
		Description: s.Description,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
	}
	for _, l := range s.Locations {
		resp.Locations = append(resp.Locations, l.Name)
	}
	return resp
}

func registrationResponse(reg *model.Registration, typeName string) dto.RegistrationResponse {
	return dto.RegistrationResponse{
		Ref:             reg.PublicRef,
		EventID:         reg.EventID,
		FullName:        reg.FullName,
		Email:           reg.Email,
		ParticipantType: typeName,
		Status:          string(reg.Status),
		Representing:    reg.Representing,
		Paid:            reg.Paid,
		CreatedAt:       reg.CreatedAt,
		UpdatedAt:       reg.UpdatedAt,
	}
}

func (s *service) bindEventRequest(ctx *ginext.Context) (*dto.CreateEventRequest, bool) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return nil, false
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return nil, false
	}
	if !model.RegistrationMode(req.Mode).Valid() {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown registration mode")
		return nil, false
	}
	if req.Mode == string(model.ModeExternal) && req.ExternalURL == "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "External events need an external URL")
		return nil, false
	}
	if req.RegistrationOpens != nil && req.RegistrationCloses != nil &&
		req.RegistrationCloses.Before(*req.RegistrationOpens) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Registration close must not precede open")
		return nil, false
	}
	return &req, true
}

func eventFromRequest(req *dto.CreateEventRequest) *model.Event {
	return &model.Event{
		Name:               req.Name,
		Description:        req.Description,
		Mode:               model.RegistrationMode(req.Mode),
		ExternalURL:        req.ExternalURL,
		Online:             req.Online,
		Capacity:           req.Capacity,
		RegistrationOpens:  req.RegistrationOpens,
		RegistrationCloses: req.RegistrationCloses,
		Series:             req.Series,
		ContactEmail:       req.ContactEmail,
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	req, ok := s.bindEventRequest(ctx)
	if !ok {
		return
	}

	event := eventFromRequest(req)
	id, err := s.repo.CreateEvent(ctx.Request.Context(), event)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.InternalServerError(ctx)
		return
	}
	event.ID = id
	s.log.Info().Int64("event_id", id).Msg("event created")

	dto.SuccessCreatedResponse(ctx, eventResponse(event, capacity.Compute(event.Capacity, 0)))
}

func (s *service) UpdateEvent(ctx *ginext.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	req, ok := s.bindEventRequest(ctx)
	if !ok {
		return
	}

	event := eventFromRequest(req)
	event.ID = id
	err := s.repo.UpdateEvent(ctx.Request.Context(), event)
	switch err {
	case nil:
	case repo.ErrEventNotFound:
		dto.EventNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Int64("event_id", id).Msg("failed to update event")
		dto.InternalServerError(ctx)
		return
	}

	updated, err := s.repo.GetEventByID(ctx.Request.Context(), id)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	count, err := s.repo.CountActiveRegistrations(ctx.Request.Context(), id)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, eventResponse(updated, capacity.Compute(updated.Capacity, count)))
}

func (s *service) PublishEvent(ctx *ginext.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	event, err := s.repo.PublishEventTx(ctx.Request.Context(), id)
	switch err {
	case nil:
	case repo.ErrEventNotFound:
		dto.EventNotFoundError(ctx)
		return
	case repo.ErrEventNotReady:
		dto.BadResponseError(ctx, dto.EventNotReady, strings.Join(capacity.PublishProblems(event), "; "))
		return
	default:
		s.log.Error().Err(err).Int64("event_id", id).Msg("failed to publish event")
		dto.InternalServerError(ctx)
		return
	}
	s.log.Info().Int64("event_id", id).Msg("event published")

	// Remind registered participants the day before the event starts.
	if event.StartTime != nil {
		if delay := schedule.ReminderDelaySeconds(*event.StartTime, s.now()); delay > 0 {
			s.notify(dto.NotificationMessage{
				Kind:      dto.NotifyReminder,
				EventID:   event.ID,
				EventName: event.Name,
			}, delay)
		}
	}

	count, err := s.repo.CountActiveRegistrations(ctx.Request.Context(), id)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, eventResponse(event, capacity.Compute(event.Capacity, count)))
}

func (s *service) CancelEvent(ctx *ginext.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	err := s.repo.CancelEvent(ctx.Request.Context(), id)
	switch err {
	case nil:
	case repo.ErrEventNotFound:
		dto.EventNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Int64("event_id", id).Msg("failed to cancel event")
		dto.InternalServerError(ctx)
		return
	}
	s.log.Info().Int64("event_id", id).Msg("event cancelled")
	dto.SuccessResponse(ctx, map[string]any{"id": id, "cancelled": true})
}

func (s *service) GetEvent(ctx *ginext.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), id)
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}
	count, err := s.repo.CountActiveRegistrations(ctx.Request.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to count registrations")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, eventResponse(event, capacity.Compute(event.Capacity, count)))
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.repo.GetPublishedEvents(ctx.Request.Context())
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		e := &events[i]
		count, err := s.repo.CountActiveRegistrations(ctx.Request.Context(), e.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("event_id", e.ID).Msg("failed to count registrations")
			continue
		}
		resp = append(resp, eventResponse(e, capacity.Compute(e.Capacity, count)))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) bindSessionRequest(ctx *ginext.Context) (*dto.CreateSessionRequest, bool) {
	var req dto.CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return nil, false
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return nil, false
	}
	if req.EndTime.Before(req.StartTime) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Session end must not precede start")
		return nil, false
	}
	return &req, true
}

func (s *service) CreateSession(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	req, ok := s.bindSessionRequest(ctx)
	if !ok {
		return
	}

	session := &model.Session{
		EventID:     eventID,
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	id, err := s.repo.CreateSessionTx(ctx.Request.Context(), session, req.LocationIDs)
	switch err {
	case nil:
	case repo.ErrEventNotFound:
		dto.EventNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to create session")
		dto.InternalServerError(ctx)
		return
	}
	session.ID = id
	s.log.Info().Int64("session_id", id).Int64("event_id", eventID).Msg("session created")

	created, err := s.repo.GetSessionByID(ctx.Request.Context(), id)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessCreatedResponse(ctx, sessionResponse(*created))
}

func (s *service) UpdateSession(ctx *ginext.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	req, ok := s.bindSessionRequest(ctx)
	if !ok {
		return
	}

	session := &model.Session{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	err := s.repo.UpdateSessionTx(ctx.Request.Context(), session, req.LocationIDs)
	switch err {
	case nil:
	case repo.ErrSessionNotFound:
		dto.SessionNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Int64("session_id", id).Msg("failed to update session")
		dto.InternalServerError(ctx)
		return
	}

	updated, err := s.repo.GetSessionByID(ctx.Request.Context(), id)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, sessionResponse(*updated))
}

func (s *service) DeleteSession(ctx *ginext.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	err := s.repo.DeleteSessionTx(ctx.Request.Context(), id)
	switch err {
	case nil:
	case repo.ErrSessionNotFound:
		dto.SessionNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Int64("session_id", id).Msg("failed to delete session")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, map[string]any{"id": id, "deleted": true})
}

// GetSchedule renders the public programme: sessions that have not yet ended,
// grouped into days and time slots in the configured local zone.
func (s *service) GetSchedule(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if _, err := s.repo.GetEventByID(ctx.Request.Context(), eventID); err != nil {
		dto.EventNotFoundError(ctx)
		return
	}

	sessions, err := s.repo.GetSessionsByEventID(ctx.Request.Context(), eventID)
	if err != nil {
		s.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to get sessions")
		dto.InternalServerError(ctx)
		return
	}

	now := s.now()
	upcoming := sessions[:0:0]
	for _, sess := range sessions {
		if sess.EndTime.After(now) {
			upcoming = append(upcoming, sess)
		}
	}

	days := schedule.Build(upcoming, s.loc)
	resp := make([]dto.DayResponse, 0, len(days))
	for _, day := range days {
		d := dto.DayResponse{Date: day.Date.Format("2006-01-02")}
		for _, slot := range day.Slots {
			sl := dto.TimeSlotResponse{Start: slot.Start, End: slot.End}
			for _, sess := range slot.Sessions {
				sl.Sessions = append(sl.Sessions, sessionResponse(sess))
			}
			d.Slots = append(d.Slots, sl)
		}
		resp = append(resp, d)
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) CreateLocation(ctx *ginext.Context) {
	var req dto.CreateLocationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	loc := &model.Location{Name: req.Name, Address: req.Address}
	id, err := s.repo.CreateLocation(ctx.Request.Context(), loc)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create location")
		dto.InternalServerError(ctx)
		return
	}
	loc.ID = id
	dto.SuccessCreatedResponse(ctx, loc)
}

func (s *service) GetLocations(ctx *ginext.Context) {
	locs, err := s.repo.GetLocations(ctx.Request.Context())
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, locs)
}

func (s *service) bindTypeRequest(ctx *ginext.Context) (name string, priceCents int64, ok bool) {
	var req dto.ParticipantTypeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return "", 0, false
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return "", 0, false
	}
	cents, err := model.ParsePrice(req.Price)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		return "", 0, false
	}
	return strings.TrimSpace(req.Name), cents, true
}

func (s *service) CreateParticipantType(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	name, cents, ok := s.bindTypeRequest(ctx)
	if !ok {
		return
	}

	t, outcome, err := s.repo.EnsureParticipantTypeTx(ctx.Request.Context(), eventID, name, cents)
	switch err {
	case nil:
	case repo.ErrEventNotFound:
		dto.EventNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to ensure participant type")
		dto.InternalServerError(ctx)
		return
	}

	resp := dto.ParticipantTypeResponse{ID: t.ID, Name: t.Name, Price: t.Price()}
	if outcome == repo.AttachNoop {
		resp.Notice = "This participant type already exists for this event"
		dto.SuccessResponse(ctx, resp)
		return
	}
	s.log.Info().
		Int64("event_id", eventID).
		Int64("type_id", t.ID).
		Bool("shared", outcome == repo.AttachShared).
		Msg("participant type attached")
	dto.SuccessCreatedResponse(ctx, resp)
}

func (s *service) UpdateParticipantType(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	typeID, ok := paramID(ctx, "tid")
	if !ok {
		return
	}
	name, cents, ok := s.bindTypeRequest(ctx)
	if !ok {
		return
	}

	t, _, err := s.repo.UpdateParticipantTypeTx(ctx.Request.Context(), eventID, typeID, name, cents)
	switch err {
	case nil:
	case repo.ErrEventNotFound:
		dto.EventNotFoundError(ctx)
		return
	case repo.ErrParticipantTypeNotFound:
		dto.ParticipantTypeNotFoundError(ctx)
		return
	case repo.ErrTypeInUse:
		dto.ConflictError(ctx, dto.TypeInUse, "Participant type is still used by registrations")
		return
	default:
		s.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to update participant type")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, dto.ParticipantTypeResponse{ID: t.ID, Name: t.Name, Price: t.Price()})
}

func (s *service) DeleteParticipantType(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	typeID, ok := paramID(ctx, "tid")
	if !ok {
		return
	}

	deleted, err := s.repo.DetachParticipantTypeTx(ctx.Request.Context(), eventID, typeID)
	switch err {
	case nil:
	case repo.ErrParticipantTypeNotFound:
		dto.ParticipantTypeNotFoundError(ctx)
		return
	case repo.ErrTypeInUse:
		dto.ConflictError(ctx, dto.TypeInUse, "Participant type is still used by registrations")
		return
	default:
		s.log.Error().Err(err).Int64("type_id", typeID).Msg("failed to delete participant type")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, map[string]any{"id": typeID, "deleted": deleted})
}

func (s *service) GetParticipantTypes(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	types, err := s.repo.GetParticipantTypesByEventID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	resp := make([]dto.ParticipantTypeResponse, 0, len(types))
	for _, t := range types {
		resp = append(resp, dto.ParticipantTypeResponse{ID: t.ID, Name: t.Name, Price: t.Price()})
	}
	dto.SuccessResponse(ctx, resp)
}

// validateRegistrationGuards applies the conditional field rules: billing
// details when the event is not free, emergency contact when it is not fully
// online.
func validateRegistrationGuards(event *model.Event, types []model.ParticipantType, req *dto.SubmitRegistrationRequest) string {
	if !model.FreeEvent(types) {
		if req.BillingName == "" || req.BillingAddress == "" {
			return "Billing name and address are required for paid events"
		}
	}
	if event.RequiresEmergencyContact() {
		if req.EmergencyContactName == "" || req.EmergencyContactPhone == "" {
			return "Emergency contact name and phone are required for in-person events"
		}
	}
	return ""
}

func (s *service) SubmitRegistration(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}

	now := s.now()
	if !event.Published || event.Cancelled || event.Past(now) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Registration is not open for this event")
		return
	}
	if !event.Mode.SelfService() {
		desc := "This event does not take registrations here"
		if event.Mode == model.ModeExternal && event.ExternalURL != "" {
			desc = "Register externally at " + event.ExternalURL
		}
		dto.BadResponseError(ctx, dto.FieldIncorrect, desc)
		return
	}
	if event.RegistrationOpens != nil && now.Before(*event.RegistrationOpens) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Registration has not opened yet")
		return
	}
	if event.RegistrationCloses != nil && now.After(*event.RegistrationCloses) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Registration has closed")
		return
	}

	var req dto.SubmitRegistrationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	types, err := s.repo.GetParticipantTypesByEventID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	var selected *model.ParticipantType
	for i := range types {
		if types[i].ID == req.ParticipantTypeID {
			selected = &types[i]
			break
		}
	}
	if selected == nil {
		dto.ParticipantTypeNotFoundError(ctx)
		return
	}
	if desc := validateRegistrationGuards(event, types, &req); desc != "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, desc)
		return
	}

	// New submissions are refused once the event is full; existing ones may
	// still be updated.
	if event.Capacity != nil {
		_, lookupErr := s.repo.GetRegistrationByEmail(ctx.Request.Context(), eventID, req.Email)
		if lookupErr != nil && lookupErr != repo.ErrRegistrationNotFound {
			dto.InternalServerError(ctx)
			return
		}
		if lookupErr == repo.ErrRegistrationNotFound {
			count, err := s.repo.CountActiveRegistrations(ctx.Request.Context(), eventID)
			if err != nil {
				dto.InternalServerError(ctx)
				return
			}
			if count >= *event.Capacity {
				dto.BadResponseError(ctx, dto.FieldIncorrect, "Event is full")
				return
			}
		}
	}

	status := model.StatusPending
	if s.autoApprove && event.Mode == model.ModeRegister {
		status = model.StatusApproved
	}

	reg := &model.Registration{
		EventID:               eventID,
		Email:                 req.Email,
		FullName:              req.FullName,
		ParticipantTypeID:     req.ParticipantTypeID,
		Status:                status,
		Representing:          req.Representing,
		BillingName:           req.BillingName,
		BillingAddress:        req.BillingAddress,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
	}

	created, err := s.repo.SubmitRegistrationTx(ctx.Request.Context(), reg)
	switch err {
	case nil:
	case repo.ErrDuplicateRegistration:
		dto.RegistrationDuplicateError(ctx)
		return
	default:
		s.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to submit registration")
		dto.InternalServerError(ctx)
		return
	}

	resp := registrationResponse(reg, selected.Name)
	if !created {
		s.log.Info().Str("ref", reg.PublicRef).Msg("registration updated")
		dto.SuccessResponse(ctx, resp)
		return
	}

	s.log.Info().Str("ref", reg.PublicRef).Int64("event_id", eventID).Msg("registration created")
	s.notify(dto.NotificationMessage{
		Kind:      dto.NotifySubmitted,
		EventID:   event.ID,
		EventName: event.Name,
		Email:     reg.Email,
		Ref:       reg.PublicRef,
	}, 0)
	dto.SuccessCreatedResponse(ctx, resp)
}

func (s *service) WithdrawRegistration(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	var req dto.WithdrawRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	reason, valid := model.ParseWithdrawalReason(req.Reason)
	if !valid {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown withdrawal reason")
		return
	}
	if reason == model.ReasonOther && strings.TrimSpace(req.OtherReason) == "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "A free-text reason is required when withdrawing for an 'other' reason")
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}

	reg, err := s.repo.WithdrawRegistrationTx(ctx.Request.Context(), eventID, req.Email, reason, req.OtherReason)
	switch err {
	case nil:
	case repo.ErrRegistrationNotFound:
		dto.RegistrationNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to withdraw registration")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("ref", reg.PublicRef).
		Str("reason", string(reason)).
		Msg("registration withdrawn")
	s.notify(dto.NotificationMessage{
		Kind:      dto.NotifyWithdrawn,
		EventID:   event.ID,
		EventName: event.Name,
		Email:     reg.Email,
		Ref:       reg.PublicRef,
	}, 0)
	dto.SuccessResponse(ctx, map[string]any{"ref": reg.PublicRef, "reason": string(reason)})
}

func (s *service) GetRegistrations(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if _, err := s.repo.GetEventByID(ctx.Request.Context(), eventID); err != nil {
		dto.EventNotFoundError(ctx)
		return
	}

	regs, err := s.repo.GetRegistrationsByEventID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}

	typeNames, err := s.typeNames(ctx, regs)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.RegistrationResponse, 0, len(regs))
	for i := range regs {
		resp = append(resp, registrationResponse(&regs[i], typeNames[regs[i].ParticipantTypeID]))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) typeNames(ctx *ginext.Context, regs []model.Registration) (map[int64]string, error) {
	names := make(map[int64]string)
	for _, reg := range regs {
		if _, seen := names[reg.ParticipantTypeID]; seen {
			continue
		}
		t, err := s.repo.GetParticipantTypeByID(ctx.Request.Context(), reg.ParticipantTypeID)
		if err != nil {
			return nil, err
		}
		names[t.ID] = t.Name
	}
	return names, nil
}

func (s *service) SetRegistrationStatus(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	ref := ctx.Param("ref")

	var req dto.SetRegistrationStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	status := model.RegistrationStatus(req.Status)
	if !status.Valid() {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown registration status")
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}
	if event.ReadOnly(s.now()) {
		dto.EventReadOnlyError(ctx)
		return
	}

	reg, err := s.repo.GetRegistrationByRef(ctx.Request.Context(), ref)
	if err != nil || reg.EventID != eventID {
		dto.RegistrationNotFoundError(ctx)
		return
	}

	// The stored ticket class must still be one the event offers.
	types, err := s.repo.GetParticipantTypesByEventID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	validType := false
	typeName := ""
	for _, t := range types {
		if t.ID == reg.ParticipantTypeID {
			validType = true
			typeName = t.Name
			break
		}
	}
	if !validType {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Registration's participant type is no longer offered by this event")
		return
	}

	updated, err := s.repo.SetRegistrationStatusTx(ctx.Request.Context(), ref, status, req.Paid)
	switch err {
	case nil:
	case repo.ErrRegistrationNotFound:
		dto.RegistrationNotFoundError(ctx)
		return
	default:
		s.log.Error().Err(err).Str("ref", ref).Msg("failed to update registration status")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("ref", ref).
		Str("status", string(status)).
		Msg("registration status updated")

	switch status {
	case model.StatusApproved:
		s.notify(dto.NotificationMessage{
			Kind: dto.NotifyApproved, EventID: event.ID, EventName: event.Name,
			Email: updated.Email, Ref: updated.PublicRef,
		}, 0)
	case model.StatusDeclined:
		s.notify(dto.NotificationMessage{
			Kind: dto.NotifyDeclined, EventID: event.ID, EventName: event.Name,
			Email: updated.Email, Ref: updated.PublicRef,
		}, 0)
	}
	dto.SuccessResponse(ctx, registrationResponse(updated, typeName))
}

// ExportRegistrations streams the selected report fields as CSV. Field and
// report-name validation happen before any rows are read.
func (s *service) ExportRegistrations(ctx *ginext.Context) {
	eventID, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	table := report.Registrations()

	name := ctx.DefaultQuery("name", "registrations")
	if err := report.ValidateName(name); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		return
	}
	selected := table.FieldNames()
	if raw := ctx.Query("fields"); raw != "" {
		selected = strings.Split(raw, ",")
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}
	regs, err := s.repo.GetRegistrationsByEventID(ctx.Request.Context(), eventID)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}
	locations, err := s.repo.GetEventLocationNames(ctx.Request.Context(), eventID)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}

	entries := make([]report.RegistrationEntry, 0, len(regs))
	typeCache := make(map[int64]*model.ParticipantType)
	for _, reg := range regs {
		t, cached := typeCache[reg.ParticipantTypeID]
		if !cached {
			t, err = s.repo.GetParticipantTypeByID(ctx.Request.Context(), reg.ParticipantTypeID)
			if err != nil {
				dto.InternalServerError(ctx)
				return
			}
			typeCache[reg.ParticipantTypeID] = t
		}
		entries = append(entries, report.RegistrationEntry{
			Registration: reg,
			Event:        *event,
			Type:         *t,
			Locations:    locations,
		})
	}

	rows, err := table.Build(selected, entries)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		return
	}

	ctx.Header("Content-Type", "text/csv")
	ctx.Header("Content-Disposition", `attachment; filename="`+name+`.csv"`)
	ctx.Status(200)
	w := csv.NewWriter(ctx.Writer)
	if err := w.WriteAll(rows); err != nil {
		s.log.Error().Err(err).Msg("failed to stream CSV")
	}
}
