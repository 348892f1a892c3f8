package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	alerts "watertap/internal/alerts/domain"
)

// EventHeader names the alert event on webhook requests.
const EventHeader = "X-Watertap-Event"

// Message is one rendered alert notification.
type Message struct {
	Event   string
	Content string
	Alert   alerts.Alert
}

// Channel delivers rendered alert notifications.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// webhookPayload keeps the chat-bot text envelope and adds the alert itself
// so receivers can route without parsing the text.
type webhookPayload struct {
	MsgType string       `json:"msgtype"`
	Text    webhookText  `json:"text"`
	Event   string       `json:"event"`
	Alert   webhookAlert `json:"alert"`
}

type webhookText struct {
	Content string `json:"content"`
}

type webhookAlert struct {
	ID          int64     `json:"id"`
	SensorID    int       `json:"sensorId"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Solution    string    `json:"solution,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WebhookChannel posts alert notifications to an HTTP endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the message. Non-2xx responses are errors carrying the start of
// the response body.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	alert := msg.Alert
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: msg.Content},
		Event:   msg.Event,
		Alert: webhookAlert{
			ID:          alert.ID,
			SensorID:    alert.SensorID,
			Severity:    string(alert.Severity),
			Description: alert.Description,
			Solution:    alert.Solution,
			Active:      alert.Active,
			CreatedAt:   alert.CreatedAt.UTC(),
			UpdatedAt:   alert.UpdatedAt.UTC(),
		},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, msg.Event)
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook channel: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
