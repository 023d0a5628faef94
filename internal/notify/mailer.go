// Package notify covers the outbound side channels: email alerts, the
// heartbeat ping, and the status page push.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tmacey/switchd/internal/config"
)

// Mailer sends plain-text alert mails over SMTP. With EnableEmail off every
// Send is a logged no-op, so callers never need to guard.
type Mailer struct {
	cfg  config.EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

// Send delivers one message. Failures are logged and returned but never
// escalate: a broken mail setup must not take the scheduler down.
func (m *Mailer) Send(subject, body string) error {
	if !m.cfg.EnableEmail {
		log.Debug().Str("subject", subject).Msg("Email disabled, notification dropped")
		return nil
	}

	if m.cfg.SubjectPrefix != "" {
		subject = m.cfg.SubjectPrefix + " " + subject
	}

	recipients := splitRecipients(m.cfg.SendEmailsTo)
	if len(recipients) == 0 {
		log.Warn().Msg("Email enabled but no recipients configured")
		return nil
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.SMTPUsername,
		"To: " + strings.Join(recipients, ", "),
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPServer, m.cfg.SMTPPort)
	auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPServer)

	if err := m.send(addr, auth, m.cfg.SMTPUsername, recipients, []byte(msg)); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Sending email failed")
		return err
	}

	log.Info().Str("subject", subject).Int("recipients", len(recipients)).Msg("Email sent")
	return nil
}

func splitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
