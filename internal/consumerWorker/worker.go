package consumerWorker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wb-go/wbf/zlog"

	"eventdesk/internal/dto"
	"eventdesk/internal/mailer"
	"eventdesk/internal/rabbit"
	"eventdesk/internal/repo"
	"eventdesk/internal/schedule"
)

// Reader consumes notification messages off RabbitMQ and turns them into
// emails. State is re-read at delivery time, so a reminder scheduled days
// ahead never mails participants who have withdrawn since, or announces a
// cancelled event.
type Reader struct {
	RMQ    *rabbit.Client
	repo   repo.Repository
	mail   *mailer.Mailer
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository, mail *mailer.Mailer) *Reader {
	return &Reader{
		RMQ:  rmq,
		repo: repo,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.NotificationMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("failed to unmarshal notification: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("kind", msg.Kind).
				Int64("event_id", msg.EventID).
				Msg("received notification message")

			if msg.Kind == dto.NotifyReminder {
				return r.handleReminder(cctx, msg)
			}
			return r.handleDirect(cctx, msg)
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("notification reader stopped by context")
	}()
}

// handleDirect sends a lifecycle notice straight to the participant named in
// the message. Withdrawal notices go out even though the registration row no
// longer exists; for the other kinds a vanished registration means the
// participant withdrew before delivery, so the notice is dropped.
func (r *Reader) handleDirect(ctx context.Context, msg dto.NotificationMessage) error {
	if msg.Kind != dto.NotifyWithdrawn && msg.Ref != "" {
		if _, err := r.repo.GetRegistrationByRef(ctx, msg.Ref); err != nil {
			zlog.Logger.Info().
				Str("ref", msg.Ref).
				Msg("registration gone before delivery, skipping notice")
			return nil
		}
	}

	if err := r.mail.Send(msg.Kind, msg.EventName, msg.Email); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to send notification email")
	}
	return nil
}

// handleReminder fans a scheduled event reminder out to everyone still
// holding a place.
func (r *Reader) handleReminder(ctx context.Context, msg dto.NotificationMessage) error {
	event, err := r.repo.GetEventByID(ctx, msg.EventID)
	if err != nil {
		zlog.Logger.Error().
			Err(err).
			Int64("event_id", msg.EventID).
			Msg("failed to get event for reminder")
		return nil
	}
	if event.Cancelled {
		zlog.Logger.Info().
			Int64("event_id", event.ID).
			Msg("event cancelled, skipping reminder")
		return nil
	}

	// The exchange caps delays at ~24.8 days, so a reminder for a distant
	// event arrives early. Put it back on the queue with the remaining delay
	// instead of mailing weeks ahead of time.
	if event.StartTime != nil {
		if remaining := schedule.ReminderDelaySeconds(*event.StartTime, time.Now()); remaining > 60 {
			body, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			zlog.Logger.Info().
				Int64("event_id", event.ID).
				Int("remaining_seconds", remaining).
				Msg("reminder arrived early, rescheduling")
			return r.RMQ.Publish(body, remaining)
		}
	}

	regs, err := r.repo.GetRegistrationsByEventID(ctx, event.ID)
	if err != nil {
		zlog.Logger.Error().
			Err(err).
			Int64("event_id", event.ID).
			Msg("failed to get registrations for reminder")
		return err
	}

	for _, reg := range regs {
		if !reg.Status.CountsTowardCapacity() {
			continue
		}
		if err := r.mail.Send(dto.NotifyReminder, event.Name, reg.Email); err != nil {
			zlog.Logger.Warn().
				Err(err).
				Str("email", reg.Email).
				Msg("failed to send reminder email")
		}
	}
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
