package service

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventdesk/internal/dto"
	"eventdesk/internal/model"
	"eventdesk/internal/repo"
)

// fakeRepo implements the handful of Repository methods the handlers under
// test reach for. Anything else panics via the embedded nil interface.
type fakeRepo struct {
	repo.Repository

	event *model.Event
	types []model.ParticipantType

	existing    *model.Registration
	activeCount int

	submitted      *model.Registration
	withdrawnReg   *model.Registration
	withdrawReason model.WithdrawalReason
	withdrawOther  string
	statusSet      *model.RegistrationStatus

	ensureOutcome repo.AttachOutcome
}

func (f *fakeRepo) GetEventByID(_ context.Context, id int64) (*model.Event, error) {
	if f.event == nil || f.event.ID != id {
		return nil, repo.ErrEventNotFound
	}
	return f.event, nil
}

func (f *fakeRepo) GetParticipantTypesByEventID(context.Context, int64) ([]model.ParticipantType, error) {
	return f.types, nil
}

func (f *fakeRepo) GetRegistrationByEmail(_ context.Context, _ int64, email string) (*model.Registration, error) {
	if f.existing != nil && f.existing.Email == email {
		return f.existing, nil
	}
	return nil, repo.ErrRegistrationNotFound
}

func (f *fakeRepo) GetRegistrationByRef(_ context.Context, ref string) (*model.Registration, error) {
	if f.existing != nil && f.existing.PublicRef == ref {
		return f.existing, nil
	}
	return nil, repo.ErrRegistrationNotFound
}

func (f *fakeRepo) CountActiveRegistrations(context.Context, int64) (int, error) {
	return f.activeCount, nil
}

func (f *fakeRepo) PublishEventTx(_ context.Context, id int64) (*model.Event, error) {
	if f.event == nil || f.event.ID != id {
		return nil, repo.ErrEventNotFound
	}
	f.event.Published = true
	return f.event, nil
}

func (f *fakeRepo) EnsureParticipantTypeTx(_ context.Context, _ int64, name string, priceCents int64) (*model.ParticipantType, repo.AttachOutcome, error) {
	return &model.ParticipantType{ID: 7, Name: name, PriceCents: priceCents}, f.ensureOutcome, nil
}

func (f *fakeRepo) SubmitRegistrationTx(_ context.Context, reg *model.Registration) (bool, error) {
	reg.ID = 1
	reg.PublicRef = "ref-1"
	f.submitted = reg
	return true, nil
}

func (f *fakeRepo) WithdrawRegistrationTx(_ context.Context, _ int64, email string, reason model.WithdrawalReason, other string) (*model.Registration, error) {
	if f.existing == nil || f.existing.Email != email {
		return nil, repo.ErrRegistrationNotFound
	}
	f.withdrawnReg = f.existing
	f.withdrawReason = reason
	f.withdrawOther = other
	return f.existing, nil
}

func (f *fakeRepo) SetRegistrationStatusTx(_ context.Context, _ string, status model.RegistrationStatus, _ *bool) (*model.Registration, error) {
	f.statusSet = &status
	out := *f.existing
	out.Status = status
	return &out, nil
}

var testNow = time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC)

func newTestService(f *fakeRepo, autoApprove bool) *service {
	log := zerolog.Nop()
	return &service{
		repo:        f,
		log:         &log,
		loc:         time.UTC,
		autoApprove: autoApprove,
		now:         func() time.Time { return testNow },
	}
}

func openEvent(mode model.RegistrationMode, online bool) *model.Event {
	start := testNow.Add(24 * time.Hour)
	end := testNow.Add(48 * time.Hour)
	opens := testNow.Add(-24 * time.Hour)
	closes := testNow.Add(12 * time.Hour)
	return &model.Event{
		ID: 1, Name: "GopherConf", Mode: mode, Published: true, Online: online,
		StartTime: &start, EndTime: &end,
		RegistrationOpens: &opens, RegistrationCloses: &closes,
	}
}

func perform(handler func(*ginext.Context), method, body string, params gin.Params) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = params
	c.Request = httptest.NewRequest(method, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func eventParam() gin.Params {
	return gin.Params{{Key: "id", Value: "1"}}
}

const validRegistrationBody = `{
	"full_name": "Ada Lovelace",
	"email": "ada@example.org",
	"participant_type_id": 7,
	"emergency_contact_name": "Charles",
	"emergency_contact_phone": "555-0100"
}`

func TestSubmitRegistrationCreatesPending(t *testing.T) {
	f := &fakeRepo{
		event: openEvent(model.ModeApply, false),
		types: []model.ParticipantType{{ID: 7, Name: "Student", PriceCents: 0}},
	}
	s := newTestService(f, false)

	w := perform(s.SubmitRegistration, "POST", validRegistrationBody, eventParam())
	if w.Code != 201 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if f.submitted == nil {
		t.Fatal("expected a submission to reach the repository")
	}
	if f.submitted.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", f.submitted.Status)
	}
}

func TestSubmitRegistrationAutoApprove(t *testing.T) {
	tests := []struct {
		name string
		mode model.RegistrationMode
		want model.RegistrationStatus
	}{
		{name: "register mode auto-approves", mode: model.ModeRegister, want: model.StatusApproved},
		{name: "apply mode always starts pending", mode: model.ModeApply, want: model.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRepo{
				event: openEvent(tt.mode, false),
				types: []model.ParticipantType{{ID: 7, Name: "Student"}},
			}
			s := newTestService(f, true)

			w := perform(s.SubmitRegistration, "POST", validRegistrationBody, eventParam())
			if w.Code != 201 {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			if f.submitted.Status != tt.want {
				t.Fatalf("stored status = %s, want %s", f.submitted.Status, tt.want)
			}
		})
	}
}

func TestSubmitRegistrationBillingRequired(t *testing.T) {
	f := &fakeRepo{
		event: openEvent(model.ModeRegister, true),
		types: []model.ParticipantType{{ID: 7, Name: "Member", PriceCents: 1000}},
	}
	s := newTestService(f, false)

	body := `{"full_name":"Ada Lovelace","email":"ada@example.org","participant_type_id":7}`
	w := perform(s.SubmitRegistration, "POST", body, eventParam())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.submitted != nil {
		t.Fatal("failed validation must not reach the repository")
	}
}

func TestSubmitRegistrationEmergencyContactRequired(t *testing.T) {
	f := &fakeRepo{
		event: openEvent(model.ModeRegister, false),
		types: []model.ParticipantType{{ID: 7, Name: "Student", PriceCents: 0}},
	}
	s := newTestService(f, false)

	body := `{"full_name":"Ada Lovelace","email":"ada@example.org","participant_type_id":7}`
	w := perform(s.SubmitRegistration, "POST", body, eventParam())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.submitted != nil {
		t.Fatal("failed validation must not reach the repository")
	}
}

func TestSubmitRegistrationOnlineEventSkipsEmergencyContact(t *testing.T) {
	f := &fakeRepo{
		event: openEvent(model.ModeRegister, true),
		types: []model.ParticipantType{{ID: 7, Name: "Student", PriceCents: 0}},
	}
	s := newTestService(f, false)

	body := `{"full_name":"Ada Lovelace","email":"ada@example.org","participant_type_id":7}`
	w := perform(s.SubmitRegistration, "POST", body, eventParam())
	if w.Code != 201 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSubmitRegistrationUnknownType(t *testing.T) {
	f := &fakeRepo{
		event: openEvent(model.ModeRegister, true),
		types: []model.ParticipantType{{ID: 9, Name: "Student"}},
	}
	s := newTestService(f, false)

	w := perform(s.SubmitRegistration, "POST", validRegistrationBody, eventParam())
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if f.submitted != nil {
		t.Fatal("invalid participant type must not reach the repository")
	}
}

func TestSubmitRegistrationEventFull(t *testing.T) {
	cap := 2
	event := openEvent(model.ModeRegister, true)
	event.Capacity = &cap
	f := &fakeRepo{
		event:       event,
		types:       []model.ParticipantType{{ID: 7, Name: "Student"}},
		activeCount: 2,
	}
	s := newTestService(f, false)

	w := perform(s.SubmitRegistration, "POST", validRegistrationBody, eventParam())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.submitted != nil {
		t.Fatal("full event must not accept a new registration")
	}
}

func TestSubmitRegistrationResubmitBypassesCapacity(t *testing.T) {
	cap := 2
	event := openEvent(model.ModeRegister, true)
	event.Capacity = &cap
	f := &fakeRepo{
		event:       event,
		types:       []model.ParticipantType{{ID: 7, Name: "Student"}},
		activeCount: 2,
		existing:    &model.Registration{EventID: 1, Email: "ada@example.org", PublicRef: "ref-1"},
	}
	s := newTestService(f, false)

	w := perform(s.SubmitRegistration, "POST", validRegistrationBody, eventParam())
	if w.Code != 201 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if f.submitted == nil {
		t.Fatal("update of an existing registration must reach the repository")
	}
}

func TestSubmitRegistrationExternalMode(t *testing.T) {
	event := openEvent(model.ModeExternal, true)
	event.ExternalURL = "https://tickets.example.org"
	f := &fakeRepo{event: event}
	s := newTestService(f, false)

	w := perform(s.SubmitRegistration, "POST", validRegistrationBody, eventParam())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSubmitRegistrationWindowClosed(t *testing.T) {
	event := openEvent(model.ModeRegister, true)
	closed := testNow.Add(-time.Hour)
	event.RegistrationCloses = &closed
	f := &fakeRepo{event: event, types: []model.ParticipantType{{ID: 7}}}
	s := newTestService(f, false)

	w := perform(s.SubmitRegistration, "POST", validRegistrationBody, eventParam())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWithdrawUnknownReason(t *testing.T) {
	f := &fakeRepo{event: openEvent(model.ModeRegister, true)}
	s := newTestService(f, false)

	body := `{"email":"ada@example.org","reason":"rained"}`
	w := perform(s.WithdrawRegistration, "POST", body, eventParam())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.withdrawnReg != nil {
		t.Fatal("invalid reason must not delete anything")
	}
}

func TestWithdrawOtherNeedsFreeText(t *testing.T) {
	f := &fakeRepo{event: openEvent(model.ModeRegister, true)}
	s := newTestService(f, false)

	body := `{"email":"ada@example.org","reason":"other"}`
	w := perform(s.WithdrawRegistration, "POST", body, eventParam())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWithdrawRecordsReason(t *testing.T) {
	f := &fakeRepo{
		event:    openEvent(model.ModeRegister, true),
		existing: &model.Registration{EventID: 1, Email: "ada@example.org", PublicRef: "ref-1"},
	}
	s := newTestService(f, false)

	body := `{"email":"ada@example.org","reason":"other","other_reason":"moved abroad"}`
	w := perform(s.WithdrawRegistration, "POST", body, eventParam())
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if f.withdrawReason != model.ReasonOther || f.withdrawOther != "moved abroad" {
		t.Fatalf("recorded reason = %s / %q", f.withdrawReason, f.withdrawOther)
	}
}

func statusParams() gin.Params {
	return gin.Params{{Key: "id", Value: "1"}, {Key: "ref", Value: "ref-1"}}
}

func TestSetStatusOnCancelledEventIsReadOnly(t *testing.T) {
	event := openEvent(model.ModeApply, true)
	event.Cancelled = true
	f := &fakeRepo{
		event:    event,
		existing: &model.Registration{EventID: 1, PublicRef: "ref-1", ParticipantTypeID: 7},
		types:    []model.ParticipantType{{ID: 7, Name: "Student"}},
	}
	s := newTestService(f, false)

	w := perform(s.SetRegistrationStatus, "PUT", `{"status":"approved"}`, statusParams())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.statusSet != nil {
		t.Fatal("read-only event must reject staff edits")
	}
}

func TestSetStatusOnPastEventIsReadOnly(t *testing.T) {
	event := openEvent(model.ModeApply, true)
	past := testNow.Add(-time.Hour)
	event.EndTime = &past
	f := &fakeRepo{
		event:    event,
		existing: &model.Registration{EventID: 1, PublicRef: "ref-1", ParticipantTypeID: 7},
		types:    []model.ParticipantType{{ID: 7, Name: "Student"}},
	}
	s := newTestService(f, false)

	w := perform(s.SetRegistrationStatus, "PUT", `{"status":"approved"}`, statusParams())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.statusSet != nil {
		t.Fatal("read-only event must reject staff edits")
	}
}

func TestSetStatusUnknownStatus(t *testing.T) {
	f := &fakeRepo{event: openEvent(model.ModeApply, true)}
	s := newTestService(f, false)

	w := perform(s.SetRegistrationStatus, "PUT", `{"status":"waitlisted"}`, statusParams())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSetStatusApproves(t *testing.T) {
	f := &fakeRepo{
		event:    openEvent(model.ModeApply, true),
		existing: &model.Registration{EventID: 1, PublicRef: "ref-1", ParticipantTypeID: 7, Status: model.StatusPending},
		types:    []model.ParticipantType{{ID: 7, Name: "Student"}},
	}
	s := newTestService(f, false)

	w := perform(s.SetRegistrationStatus, "PUT", `{"status":"approved"}`, statusParams())
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if f.statusSet == nil || *f.statusSet != model.StatusApproved {
		t.Fatalf("stored status = %v, want approved", f.statusSet)
	}
}

func TestSetStatusRejectsDetachedType(t *testing.T) {
	f := &fakeRepo{
		event:    openEvent(model.ModeApply, true),
		existing: &model.Registration{EventID: 1, PublicRef: "ref-1", ParticipantTypeID: 99},
		types:    []model.ParticipantType{{ID: 7, Name: "Student"}},
	}
	s := newTestService(f, false)

	w := perform(s.SetRegistrationStatus, "PUT", `{"status":"approved"}`, statusParams())
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.statusSet != nil {
		t.Fatal("a type the event no longer offers must block the transition")
	}
}

type fakePub struct {
	payloads [][]byte
	delays   []int
}

func (p *fakePub) Publish(message []byte, delaySeconds int) error {
	p.payloads = append(p.payloads, message)
	p.delays = append(p.delays, delaySeconds)
	return nil
}

func TestPublishEventSchedulesReminderDayBeforeStart(t *testing.T) {
	event := openEvent(model.ModeApply, true)
	start := testNow.Add(61 * 24 * time.Hour)
	event.StartTime = &start
	f := &fakeRepo{event: event}
	s := newTestService(f, false)
	pub := &fakePub{}
	s.pub = pub

	w := perform(s.PublishEvent, "POST", "", eventParam())
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(pub.delays) != 1 {
		t.Fatalf("published %d messages, want 1 reminder", len(pub.delays))
	}
	if want := 60 * 24 * 60 * 60; pub.delays[0] != want {
		t.Fatalf("reminder delay = %d s, want %d s", pub.delays[0], want)
	}

	var msg dto.NotificationMessage
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatalf("unmarshal reminder: %v", err)
	}
	if msg.Kind != dto.NotifyReminder || msg.EventID != event.ID {
		t.Fatalf("message = %+v, want a reminder for event %d", msg, event.ID)
	}
}

func TestPublishEventSkipsElapsedReminder(t *testing.T) {
	event := openEvent(model.ModeApply, true)
	start := testNow.Add(12 * time.Hour)
	event.StartTime = &start
	f := &fakeRepo{event: event}
	s := newTestService(f, false)
	pub := &fakePub{}
	s.pub = pub

	w := perform(s.PublishEvent, "POST", "", eventParam())
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(pub.delays) != 0 {
		t.Fatalf("published %d messages, an event inside the lead window gets no reminder", len(pub.delays))
	}
}

const typeBody = `{"name":"Student","price":"10.00"}`

func TestCreateParticipantTypeCreated(t *testing.T) {
	f := &fakeRepo{event: openEvent(model.ModeApply, true), ensureOutcome: repo.AttachCreated}
	s := newTestService(f, false)

	w := perform(s.CreateParticipantType, "POST", typeBody, eventParam())
	if w.Code != 201 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCreateParticipantTypeDuplicateNotice(t *testing.T) {
	f := &fakeRepo{event: openEvent(model.ModeApply, true), ensureOutcome: repo.AttachNoop}
	s := newTestService(f, false)

	w := perform(s.CreateParticipantType, "POST", typeBody, eventParam())
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "already exists") {
		t.Fatalf("body = %s, want the duplicate notice", w.Body.String())
	}
}
