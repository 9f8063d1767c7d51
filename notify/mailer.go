package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
)

// SMTPConfig addresses an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Subject  string
}

// SMTPMailer sends plain-text reset emails.
type SMTPMailer struct {
	config   SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.Subject == "" {
		cfg.Subject = "Reset your password"
	}
	return &SMTPMailer{config: cfg, sendMail: smtp.SendMail}
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, msg goGuard.Message) error {
	if m == nil {
		return errors.New("mailer not configured")
	}
	if m.config.Host == "" || m.config.Port == "" || m.config.From == "" {
		return errors.New("mailer missing configuration")
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return errors.New("invalid recipient")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var body strings.Builder
	body.WriteString("Someone asked to reset the password for this account.\r\n\r\n")
	body.WriteString("Open this link to choose a new password:\r\n")
	body.WriteString(msg.ResetURL)
	body.WriteString("\r\n\r\n")
	if !msg.ExpiresAt.IsZero() {
		fmt.Fprintf(&body, "The link expires at %s.\r\n", msg.ExpiresAt.UTC().Format(time.RFC1123))
	}
	body.WriteString("If you did not request this, ignore this email.\r\n")

	var message strings.Builder
	fmt.Fprintf(&message, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&message, "To: %s\r\n", msg.To)
	fmt.Fprintf(&message, "Subject: %s\r\n", m.config.Subject)
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("Content-Transfer-Encoding: 7bit\r\n\r\n")
	message.WriteString(body.String())

	addr := net.JoinHostPort(m.config.Host, m.config.Port)
	var auth smtp.Auth
	if m.config.Username != "" || m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	return m.sendMail(addr, auth, m.config.From, []string{msg.To}, []byte(message.String()))
}

// LogMailer logs deliveries instead of sending them. The reset URL is only
// logged when IncludeLink is set, which is meant for local development.
type LogMailer struct {
	Log         zerolog.Logger
	IncludeLink bool
}

func (m LogMailer) SendPasswordReset(_ context.Context, msg goGuard.Message) error {
	ev := m.Log.Info().
		Str("account_id", msg.AccountID).
		Time("expires_at", msg.ExpiresAt)
	if m.IncludeLink {
		ev = ev.Str("reset_url", msg.ResetURL)
	}
	ev.Msg("password reset email (log only)")
	return nil
}
