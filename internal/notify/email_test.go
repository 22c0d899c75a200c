package notify

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMailer_NoSMTPLogsInstead(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewMailer(SMTPConfig{From: "alerts@example.com"}, zap.New(core))

	if m.Enabled() {
		t.Fatalf("mailer without host should be disabled")
	}
	if err := m.Send(context.Background(), "ops@example.com", "DOWN", "<p>x</p>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	entries := logs.FilterMessage("email_alert_unsent").All()
	if len(entries) != 1 {
		t.Fatalf("want one log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["to"] != "ops@example.com" {
		t.Fatalf("unexpected fields: %v", entries[0].ContextMap())
	}
}

func TestMailer_EmptyRecipient(t *testing.T) {
	m := NewMailer(SMTPConfig{}, zap.NewNop())
	if err := m.Send(context.Background(), "", "s", "b"); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}
