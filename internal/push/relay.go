// Package push sends device notifications through an external relay. Delivery
// and ordering are the relay's concern; callers treat Notify as fire-and-forget.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

type Relay interface {
	Notify(ctx context.Context, deviceToken string, n Notification) error
}

// HTTPRelay posts notifications to an FCM-fronting relay endpoint.
type HTTPRelay struct {
	url    string
	client *http.Client
}

func NewHTTPRelay(url string) *HTTPRelay {
	return &HTTPRelay{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPRelay) Notify(ctx context.Context, deviceToken string, n Notification) error {
	payload := map[string]any{
		"token": deviceToken,
		"notification": map[string]string{
			"title": n.Title,
			"body":  n.Body,
		},
		"android": map[string]any{
			"priority": "high",
			"data":     n.Data,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("push relay request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push relay returned status %d", resp.StatusCode)
	}
	return nil
}
