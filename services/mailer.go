package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"bloodbank/backend/config"
)

// Notifier sends the account e-mails. Errors are returned to the caller, never swallowed.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, username, link string) error
}

// SMTPMailer delivers e-mail through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds a mailer from the SMTP settings in cfg.
func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		auth: auth,
		from: cfg.EmailFrom,
		send: smtp.SendMail,
	}
}

// SendVerificationEmail sends the account activation link.
func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, to, username, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := verificationMessage(m.from, to, username, link)
	if err := m.send(m.addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send verification email to %s: %w", to, err)
	}
	return nil
}

func verificationMessage(from, to, username, link string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Verify your email\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("Hi " + username + ",\r\n\r\n")
	b.WriteString("Please verify your email address by opening the link below:\r\n\r\n")
	b.WriteString(link + "\r\n")
	return b.String()
}

// LogMailer writes the e-mail to the log instead of sending it. Used when no SMTP host is
// configured.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

// SendVerificationEmail logs the activation link.
func (m *LogMailer) SendVerificationEmail(_ context.Context, to, username, link string) error {
	m.log.Info("Verification email", zap.String("to", to), zap.String("username", username), zap.String("link", link))
	return nil
}
