package mail

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pitlane-app/pitlane/internal/pkg/config"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends emails via SMTP
type SMTPMailer struct {
	addr   string
	auth   smtp.Auth
	sender string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds a mailer from config. Callers check cfg.Enabled() first.
func NewSMTPMailer(cfg config.SMTPConfig, publicDomain string) *SMTPMailer {
	sender := cfg.Sender
	if sender == "" {
		if publicDomain == "" {
			publicDomain = "localhost"
		}
		sender = fmt.Sprintf("no-reply@%s", publicDomain)
		log.Infof("[Mail] SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTPMailer{
		addr:   fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		auth:   auth,
		sender: sender,
		send:   smtp.SendMail,
	}
}

// Send delivers an HTML message. net/smtp has no context support, so the
// call is abandoned (not aborted) when ctx expires.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	done := make(chan error, 1)
	go func() {
		done <- m.send(m.addr, m.auth, m.sender, []string{to}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Errorf("[Mail] SMTP send error: %v", err)
			return err
		}
		log.Infof("[Mail] Email sent to %s via %s", to, m.addr)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", to, ctx.Err())
	}
}
