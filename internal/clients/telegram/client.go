package telegram

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

const defaultAPIBase = "https://api.telegram.org"

// Client sends messages through the Telegram Bot API. The instance API key is
// the bot token; BaseURL may override the API host for self-hosted bot API
// servers and is otherwise empty.
type Client struct {
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a Telegram Bot API client with a request timeout
func NewClient(timeout time.Duration, logger *observability.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendChatActionRequest struct {
	ChatID string `json:"chat_id"`
	Action string `json:"action"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

func (c *Client) apiURL(instance store.GatewayInstance, method string) string {
	base := instance.BaseURL
	if base == "" {
		base = defaultAPIBase
	}
	return fmt.Sprintf("%s/bot%s/%s", base, instance.APIKey, method)
}

// Send delivers a text message to the recipient chat id.
func (c *Client) Send(ctx context.Context, instance store.GatewayInstance, recipient, text string) error {
	return c.post(ctx, c.apiURL(instance, "sendMessage"), sendMessageRequest{ChatID: recipient, Text: text})
}

// SendPresence emits a typing chat action.
func (c *Client) SendPresence(ctx context.Context, instance store.GatewayInstance, recipient string) error {
	return c.post(ctx, c.apiURL(instance, "sendChatAction"), sendChatActionRequest{ChatID: recipient, Action: "typing"})
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode telegram request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("failed to decode telegram response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &gateway.RateLimitError{
			Provider: store.ProviderTelegram,
			Err:      fmt.Errorf("%s", apiResp.Description),
		}
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, apiResp.Description)
	}

	return nil
}
