// Package mailer delivers wallet notifications over SMTP. Failures are
// reported to the caller; the wallet layer decides whether they matter.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
	"go.uber.org/zap"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Enabled reports whether the config points at a real SMTP endpoint.
func (cfg Config) Enabled() bool {
	return strings.TrimSpace(cfg.Host) != "" && strings.TrimSpace(cfg.From) != ""
}

// sendFn matches smtp.SendMail and is swapped in tests.
type sendFn func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier implements wallet.Notifier over a plain SMTP relay.
type SMTPNotifier struct {
	cfg  Config
	send sendFn
}

// New returns an SMTPNotifier for the given config.
func New(cfg Config) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

// Notify implements wallet.Notifier.
func (notifier *SMTPNotifier) Notify(_ context.Context, notification wallet.Notification) error {
	var auth smtp.Auth
	if notifier.cfg.Username != "" {
		auth = smtp.PlainAuth("", notifier.cfg.Username, notifier.cfg.Password, notifier.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", notifier.cfg.Host, notifier.cfg.Port)
	to := notification.Email.String()
	message := buildMessage(notifier.cfg, to, notification)
	if err := notifier.send(addr, auth, notifier.cfg.From, []string{to}, message); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func buildMessage(cfg Config, to string, notification wallet.Notification) []byte {
	var builder strings.Builder
	fromName := cfg.FromName
	if fromName == "" {
		fromName = "Wallet"
	}
	fmt.Fprintf(&builder, "From: %s <%s>\r\n", fromName, cfg.From)
	fmt.Fprintf(&builder, "To: %s\r\n", to)
	fmt.Fprintf(&builder, "Subject: %s\r\n", notification.Subject)
	builder.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&builder, "[%s] %s\r\n", notification.Status, notification.Message)
	return []byte(builder.String())
}

// LogNotifier is the fallback used when SMTP is not configured: it
// writes the would-be message to the application log instead.
type LogNotifier struct {
	base *zap.Logger
}

// NewLogNotifier wires a LogNotifier over the given zap logger.
func NewLogNotifier(base *zap.Logger) *LogNotifier {
	return &LogNotifier{base: base}
}

// Notify implements wallet.Notifier.
func (notifier *LogNotifier) Notify(_ context.Context, notification wallet.Notification) error {
	notifier.base.Info("notification (smtp disabled)",
		zap.String("email", notification.Email.String()),
		zap.String("subject", notification.Subject),
		zap.String("status", string(notification.Status)),
		zap.String("message", notification.Message),
	)
	return nil
}
