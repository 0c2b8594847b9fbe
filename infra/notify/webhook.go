package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/consolidation/auth"
	"github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/core/factory"
)

// WebhookConfig points at an HTTP endpoint receiving event envelopes.
// Auth enables OAuth2 client credentials.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Timeout time.Duration     `json:"timeout"`
	Headers map[string]string `json:"headers,omitempty"`
	Auth    auth.Conf         `json:"auth"`
}

// WebhookNotifier POSTs every event as JSON.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookNotifier validates cfg and builds the HTTP client.
func NewWebhookNotifier(cfg WebhookConfig) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client, err := auth.Client(context.Background(), cfg.Auth, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return &WebhookNotifier{url: cfg.URL, headers: cfg.Headers, client: client}, nil
}

func (n *WebhookNotifier) Notify(ctx context.Context, ev any) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Topic", events.Topic(ev))
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", events.Topic(ev), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook %s: unexpected status %d", events.Topic(ev), resp.StatusCode)
	}
	return nil
}

func init() {
	_ = Register("webhook", func(conf map[string]any) (events.Notifier, error) {
		var c WebhookConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewWebhookNotifier(c)
	})
}
