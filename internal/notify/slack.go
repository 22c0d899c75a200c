package notify

import (
	"context"
	"net/http"
	"time"
)

// Slack posts to Slack-compatible incoming webhooks. The webhook URL is
// per call because each alert channel carries its own.
type Slack struct {
	hook *Webhook
}

func NewSlack(client *http.Client) *Slack {
	return &Slack{hook: NewWebhook(client)}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, webhookURL, title, text string) error {
	return s.hook.Post(ctx, webhookURL, slackPayload{Text: "*" + title + "*\n" + text})
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 10 * time.Second}
}
