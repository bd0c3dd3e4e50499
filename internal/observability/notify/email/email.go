// Package email delivers alerts over SMTP as plain-text messages.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/capturelab/scoopd/internal/observability/notify"
)

// Config captures the SMTP settings for the alert channel.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	AppName     string
	AdminEmails []string
}

// sendFunc matches smtp.SendMail and is swappable in tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sink sends alert emails for permanent webhook failures and engine errors.
type Sink struct {
	cfg  Config
	send sendFunc
}

var _ notify.Sink = (*Sink)(nil)

// NewSink builds an email alert sink. Callers should pass a validated config.
func NewSink(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 25
	}
	if cfg.AppName == "" {
		cfg.AppName = "scoopd"
	}
	return &Sink{cfg: cfg, send: smtp.SendMail}, nil
}

// SendWebhookFailure emails the subscription owner that their callback is
// permanently failing, including the capture job id so they can use the API
// to retrieve the archive.
func (s *Sink) SendWebhookFailure(ctx context.Context, payload notify.WebhookFailure) error {
	to := payload.OwnerEmail
	if to == "" {
		return errors.New("webhook failure alert has no recipient")
	}

	subject := fmt.Sprintf("[ALERT] Your %s webhook notification failed.", s.cfg.AppName)
	body := formatWebhookFailureBody(s.cfg.AppName, payload)
	return s.deliver(ctx, []string{to}, subject, body)
}

// SendEngineFailure emails the configured admins about an unexpected engine
// error.
func (s *Sink) SendEngineFailure(ctx context.Context, payload notify.EngineFailure) error {
	if len(s.cfg.AdminEmails) == 0 {
		return errors.New("no admin recipients configured")
	}

	subject := fmt.Sprintf("[%s] Error: capture job %s: %s",
		s.cfg.AppName, payload.CaptureJobID, payload.Stage)
	body := fmt.Sprintf(
		"Capture job %s raised an unexpected error during %s:\n\n%s\n\nOccurred at: %s\n",
		payload.CaptureJobID, payload.Stage, payload.Error,
		payload.OccurredAt.UTC().Format(time.RFC3339))
	return s.deliver(ctx, s.cfg.AdminEmails, subject, body)
}

func (s *Sink) deliver(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(s.cfg.From, to, subject, body)
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.send(addr, auth, s.cfg.From, to, msg); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

func formatWebhookFailureBody(appName string, payload notify.WebhookFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Delivery of your %s webhook notification has permanently failed.\n\n", appName)
	fmt.Fprintf(&b, "Subscription: %s\n", payload.SubscriptionID)
	fmt.Fprintf(&b, "Callback URL: %s\n", payload.CallbackURL)
	fmt.Fprintf(&b, "Event for capture job %s could not be delivered after %d attempts.\n",
		payload.CaptureJobID, payload.Attempts)
	if payload.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", payload.LastError)
	}
	b.WriteString("\nYou can retrieve the archive for this capture job via the API.\n")
	return b.String()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
