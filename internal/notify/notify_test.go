package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingNotifier struct {
	sent []Message
	err  error
}

func (r *recordingNotifier) Send(ctx context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestDeliverSwallowsFailures(t *testing.T) {
	n := &recordingNotifier{err: errors.New("relay down")}
	// Must not panic or propagate.
	Deliver(context.Background(), n, Message{RecipientEmail: "u@example.com", Subject: "x"})
}

func TestDeliverNilNotifierIsNoop(t *testing.T) {
	Deliver(context.Background(), nil, Message{RecipientEmail: "u@example.com"})
}

func TestDeliverSends(t *testing.T) {
	n := &recordingNotifier{}
	Deliver(context.Background(), n, Message{RecipientEmail: "u@example.com", Subject: "hello"})
	if len(n.sent) != 1 || n.sent[0].Subject != "hello" {
		t.Fatalf("sent = %+v", n.sent)
	}
}

func TestNewSMTPNotifierValidatesConfig(t *testing.T) {
	if _, err := NewSMTPNotifier(SMTPConfig{}); err == nil {
		t.Fatal("expected error for empty config")
	}
	if _, err := NewSMTPNotifier(SMTPConfig{Addr: "mail.example.com:587"}); err == nil {
		t.Fatal("expected error for missing from address")
	}
	n, err := NewSMTPNotifier(SMTPConfig{Addr: "mail.example.com:587", From: "noreply@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if n.cfg.Host != "mail.example.com" {
		t.Fatalf("derived host = %q", n.cfg.Host)
	}
}

func TestSMTPSendRequiresRecipient(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{Addr: "mail.example.com:587", From: "noreply@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Send(context.Background(), Message{}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestRenderMail(t *testing.T) {
	body := string(renderMail("noreply@example.com", "u@example.com", Message{
		Subject: "Ticket closed",
		Report: map[string]string{
			"ticket_id": "FF-AAAA1111",
			"status":    "CLOSED",
		},
	}))

	for _, want := range []string{
		"From: noreply@example.com\r\n",
		"To: u@example.com\r\n",
		"Subject: Ticket closed\r\n",
		"ticket_id: FF-AAAA1111\r\n",
		"status: CLOSED\r\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("mail body missing %q:\n%s", want, body)
		}
	}
	// Report keys render in sorted order.
	if strings.Index(body, "status:") > strings.Index(body, "ticket_id:") {
		t.Fatal("report keys not sorted")
	}
}
