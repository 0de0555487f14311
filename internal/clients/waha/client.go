package waha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dispatch-server/internal/gateway"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"
)

// Client sends messages through a WAHA (WhatsApp HTTP API) server. The
// instance name doubles as the WAHA session name.
type Client struct {
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a WAHA client with a request timeout
func NewClient(timeout time.Duration, logger *observability.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type sendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
}

type startTypingRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
}

// chatID converts a raw phone number into WAHA's chat id format.
func chatID(recipient string) string {
	if strings.Contains(recipient, "@") {
		return recipient
	}
	return recipient + "@c.us"
}

// Send posts a text message through the session's sendText endpoint.
func (c *Client) Send(ctx context.Context, instance store.GatewayInstance, recipient, text string) error {
	url := instance.BaseURL + "/api/sendText"
	return c.post(ctx, instance, url, sendTextRequest{
		Session: instance.Name,
		ChatID:  chatID(recipient),
		Text:    text,
	})
}

// SendPresence starts a typing indicator in the recipient chat.
func (c *Client) SendPresence(ctx context.Context, instance store.GatewayInstance, recipient string) error {
	url := instance.BaseURL + "/api/startTyping"
	return c.post(ctx, instance, url, startTypingRequest{
		Session: instance.Name,
		ChatID:  chatID(recipient),
	})
}

func (c *Client) post(ctx context.Context, instance store.GatewayInstance, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode waha request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build waha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", instance.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("waha request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &gateway.RateLimitError{
			Provider: store.ProviderWAHA,
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("waha returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
