// Package notify delivers structured reports about ticket activity to the
// affected users. Delivery is strictly best-effort: a failing sink is logged
// and never propagates into the flow that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"breakglass.org/internal/obs"
)

// Message is one notification: a recipient plus a structured report.
type Message struct {
	RecipientEmail string
	Subject        string
	Report         map[string]string
}

// Notifier accepts notification messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Deliver sends through the notifier, swallowing and logging any failure.
func Deliver(ctx context.Context, n Notifier, msg Message) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, msg); err != nil {
		obs.LogEntry(map[string]any{
			"ts":        time.Now().UTC().Format(time.RFC3339Nano),
			"level":     "warn",
			"msg":       "notification_failed",
			"recipient": msg.RecipientEmail,
			"subject":   msg.Subject,
			"error":     err.Error(),
		})
	}
}

// LogNotifier writes notifications to the structured log instead of sending
// them anywhere. Default in dev mode.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	entry := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     "info",
		"msg":       "notification",
		"recipient": msg.RecipientEmail,
		"subject":   msg.Subject,
	}
	for k, v := range msg.Report {
		entry["report_"+k] = v
	}
	obs.LogEntry(entry)
	return nil
}

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
	Host     string // for PLAIN auth; derived from Addr when empty
}

// SMTPNotifier sends notifications as plain-text mail.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier validates the relay configuration.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if strings.TrimSpace(cfg.Addr) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("notify: smtp addr and from are required")
	}
	if cfg.Host == "" {
		if host, _, ok := strings.Cut(cfg.Addr, ":"); ok {
			cfg.Host = host
		} else {
			cfg.Host = cfg.Addr
		}
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	recipient := strings.TrimSpace(msg.RecipientEmail)
	if recipient == "" {
		return errors.New("notify: recipient email is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	body := renderMail(n.cfg.From, recipient, msg)
	if err := smtp.SendMail(n.cfg.Addr, auth, n.cfg.From, []string{recipient}, body); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}

func renderMail(from, to string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	keys := make([]string, 0, len(msg.Report))
	for k := range msg.Report {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, msg.Report[k])
	}
	return []byte(b.String())
}
