package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

type Config struct {
	Host     string
	Port     string
	From     string
	Password string
}

type Mailer struct {
	cfg Config
	log *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// Send delivers a registration lifecycle notice. kind matches the
// notification message kinds published by the service.
func (m *Mailer) Send(kind, eventName, recipient string) error {
	var subject, body string
	switch kind {
	case "submitted":
		subject = "Registration received"
		body = fmt.Sprintf("Hello,\n\nWe received your registration for %q. You will hear from the organisers once it has been reviewed.", eventName)
	case "approved":
		subject = "Registration approved"
		body = fmt.Sprintf("Hello,\n\nYour registration for %q has been approved. See you there!", eventName)
	case "declined":
		subject = "Registration declined"
		body = fmt.Sprintf("Hello,\n\nUnfortunately your registration for %q was declined. Contact the organisers if you believe this is a mistake.", eventName)
	case "withdrawn":
		subject = "Registration withdrawn"
		body = fmt.Sprintf("Hello,\n\nYour registration for %q has been withdrawn. We hope to see you at a future event.", eventName)
	case "reminder":
		subject = "Event starts soon"
		body = fmt.Sprintf("Hello,\n\nA reminder that %q starts tomorrow.", eventName)
	default:
		return fmt.Errorf("unknown notification kind %q", kind)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, recipient, subject, body,
	)

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{recipient}, []byte(msg)); err != nil {
		m.log.Warn().Err(err).Str("recipient", recipient).Msg("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("recipient", recipient).Str("kind", kind).Msg("email sent")
	return nil
}
