package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dispatch-server/internal/gateway"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"
)

// Client sends messages through an Evolution API server. The instance row
// carries the server base URL, the instance name and its API key.
type Client struct {
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates an Evolution API client with a request timeout
func NewClient(timeout time.Duration, logger *observability.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendPresenceRequest struct {
	Number   string `json:"number"`
	Presence string `json:"presence"`
	Delay    int    `json:"delay"`
}

// Send posts a text message to the instance's sendText endpoint.
func (c *Client) Send(ctx context.Context, instance store.GatewayInstance, recipient, text string) error {
	url := fmt.Sprintf("%s/message/sendText/%s", instance.BaseURL, instance.Name)
	return c.post(ctx, instance, url, sendTextRequest{Number: recipient, Text: text})
}

// SendPresence emits a composing indicator for the recipient chat.
func (c *Client) SendPresence(ctx context.Context, instance store.GatewayInstance, recipient string) error {
	url := fmt.Sprintf("%s/chat/sendPresence/%s", instance.BaseURL, instance.Name)
	return c.post(ctx, instance, url, sendPresenceRequest{Number: recipient, Presence: "composing", Delay: 1000})
}

func (c *Client) post(ctx context.Context, instance store.GatewayInstance, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode evolution request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build evolution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", instance.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("evolution request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &gateway.RateLimitError{
			Provider: store.ProviderEvolution,
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("evolution returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
