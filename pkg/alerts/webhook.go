package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/models"
)

const webhookTimeout = 10 * time.Second

// WebhookChannel delivers notifications as JSON to a configured HTTP
// endpoint via POST or PUT.
type WebhookChannel struct {
	cfg    *config.WebhookChannelConfig
	client *http.Client
}

func NewWebhookChannel(cfg *config.WebhookChannelConfig) *WebhookChannel {
	return &WebhookChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

func (c *WebhookChannel) Type() models.ChannelType { return models.ChannelWebhook }

func (c *WebhookChannel) ValidateConfig() error {
	if c.cfg == nil || c.cfg.URL == "" {
		return fmt.Errorf("webhook url not configured")
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webhook url %q is not an http(s) url", c.cfg.URL)
	}
	switch c.method() {
	case http.MethodPost, http.MethodPut:
		return nil
	}
	return fmt.Errorf("webhook method %q not supported", c.cfg.Method)
}

// webhookPayload is the JSON body delivered to the endpoint.
type webhookPayload struct {
	NotificationID string               `json:"notification_id"`
	AlertID        string               `json:"alert_id"`
	Priority       models.AlertPriority `json:"priority"`
	Subject        string               `json:"subject"`
	Content        string               `json:"content"`
	Recipient      string               `json:"recipient,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

func (c *WebhookChannel) Send(ctx context.Context, n *models.Notification) (bool, error) {
	body, err := json.Marshal(webhookPayload{
		NotificationID: n.ID,
		AlertID:        n.AlertID,
		Priority:       n.Priority,
		Subject:        n.Subject,
		Content:        n.Content,
		Recipient:      n.Recipient,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return false, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, c.method(), c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return true, nil
}

func (c *WebhookChannel) method() string {
	if c.cfg == nil || c.cfg.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(c.cfg.Method)
}
