package alert

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/hamed0406/pingbase/internal/domain"
)

func Subject(ev domain.AlertEvent) string {
	if ev.Type == domain.StatusDown {
		return fmt.Sprintf("🔴 DOWN: %s is not responding", ev.MonitorName)
	}
	return fmt.Sprintf("✅ UP: %s is back online", ev.MonitorName)
}

// HTMLBody renders the alert email.
func HTMLBody(ev domain.AlertEvent) string {
	isDown := ev.Type == domain.StatusDown
	bg, fg := "#D1FAE5", "#065F46"
	if isDown {
		bg, fg = "#FEE2E2", "#991B1B"
	}

	var b strings.Builder
	b.WriteString(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">`)
	fmt.Fprintf(&b, `<div style="background: %s; border-radius: 8px; padding: 20px; margin-bottom: 20px;"><h2 style="margin: 0; color: %s;">%s</h2></div>`,
		bg, fg, html.EscapeString(Subject(ev)))
	fmt.Fprintf(&b, `<p><strong>Monitor:</strong> %s</p>`, html.EscapeString(ev.MonitorName))
	fmt.Fprintf(&b, `<p><strong>URL:</strong> %s</p>`, html.EscapeString(ev.MonitorURL))
	if ev.Error != "" {
		fmt.Fprintf(&b, `<p><strong>Error:</strong> %s</p>`, html.EscapeString(ev.Error))
	}
	fmt.Fprintf(&b, `<p><strong>Time:</strong> %s</p>`, ev.At.UTC().Format(time.RFC3339))
	b.WriteString(`<hr style="border: none; border-top: 1px solid #E5E7EB; margin: 20px 0;">`)
	b.WriteString(`<p style="color: #6B7280; font-size: 12px;">Sent by PingBase · Uptime Monitoring &amp; Status Pages</p>`)
	b.WriteString(`</div>`)
	return b.String()
}

type WebhookMonitor struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// WebhookPayload is the JSON body posted to generic webhook channels.
type WebhookPayload struct {
	Event     string         `json:"event"` // monitor.down | monitor.up
	Monitor   WebhookMonitor `json:"monitor"`
	Error     string         `json:"error,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func NewWebhookPayload(ev domain.AlertEvent) WebhookPayload {
	event := "monitor.up"
	if ev.Type == domain.StatusDown {
		event = "monitor.down"
	}
	return WebhookPayload{
		Event:     event,
		Monitor:   WebhookMonitor{Name: ev.MonitorName, URL: ev.MonitorURL},
		Error:     ev.Error,
		Timestamp: ev.At.UTC().Format(time.RFC3339Nano),
	}
}

// SlackText is the message body under the bold Slack title.
func SlackText(ev domain.AlertEvent) string {
	errTxt := "n/a"
	if ev.Error != "" {
		errTxt = ev.Error
	}
	return fmt.Sprintf("URL: %s\nError: %s\nTime: %s", ev.MonitorURL, errTxt, ev.At.UTC().Format(time.RFC3339))
}
