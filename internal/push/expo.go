// Package push sends mobile push notifications and records them
// idempotently.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://exp.host/--/api/v2/push"

	httpTimeout = 10 * time.Second
)

// Message is one push notification payload.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Client talks to an Expo-compatible push endpoint. The pipeline does not
// assume delivery confirmation beyond provider acceptance.
type Client struct {
	logger     *zap.Logger
	token      string
	HTTPClient *http.Client
	BaseURL    string
}

// NewClient constructs a Client. token may be empty for endpoints that do
// not require authentication.
func NewClient(logger *zap.Logger, token string) *Client {
	return &Client{
		logger:     logger,
		token:      token,
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: httpTimeout},
	}
}

// ticketResponse mirrors the provider's per-message receipt.
type ticketResponse struct {
	Data []struct {
		Status  string `json:"status"`
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"data"`
}

// Send posts one message and returns an error unless the provider accepted
// it.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal([]*Message{msg})
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("push request", zap.String("to", msg.To), zap.String("title", msg.Title))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("push provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read push response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push provider returned %s: %s", resp.Status, string(body))
	}

	var tickets ticketResponse
	if err := json.Unmarshal(body, &tickets); err != nil {
		return fmt.Errorf("parse push response: %w", err)
	}

	for _, t := range tickets.Data {
		if t.Status != "ok" {
			return fmt.Errorf("push provider rejected message: %s", t.Message)
		}
	}

	return nil
}
