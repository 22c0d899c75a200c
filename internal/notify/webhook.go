package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type Webhook struct {
	Client *http.Client
}

func NewWebhook(client *http.Client) *Webhook {
	return &Webhook{Client: defaultClient(client)}
}

// Post sends payload as JSON. Any non-2xx answer is an error.
func (w *Webhook) Post(ctx context.Context, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("webhook url is empty")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook %s: non-2xx status %d", url, resp.StatusCode)
	}
	return nil
}
