// Package mailer delivers transactional email (verification codes, password
// resets). Delivery is out of band: callers log failures and move on.
package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a Message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them. It is used
// when SMTP is not configured.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{log: logging.With("mailer")}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email not sent, SMTP disabled")
	return nil
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends mail with PLAIN auth over STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg SMTPConfig
	log zerolog.Logger
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg, log: logging.With("mailer")}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, m.render(msg))
	}()

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail to %s: %w", msg.To, err)
		}
		m.log.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
		return nil
	case <-timer.C:
		return fmt.Errorf("send mail to %s: timed out after %s", msg.To, m.cfg.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SMTPMailer) render(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.cfg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

// VerificationCodeMessage renders the 6-digit code email.
func VerificationCodeMessage(to, code, purpose string, validFor time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your ReviewInn " + purpose + " code",
		Body: fmt.Sprintf("Your ReviewInn %s code is %s.\n\nIt expires in %d minutes. If you did not request it, ignore this email.\n",
			purpose, code, int(validFor.Minutes())),
	}
}

// PasswordResetMessage renders the reset-link email.
func PasswordResetMessage(to, link string, validFor time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Reset your ReviewInn password",
		Body: fmt.Sprintf("Use the link below to choose a new password. It is valid for %d minutes.\n\n%s\n",
			int(validFor.Minutes()), link),
	}
}
