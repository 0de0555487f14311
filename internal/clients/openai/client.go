package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dispatch-server/internal/observability"

	"github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
)

// Client generates message variations with the OpenAI chat API.
type Client struct {
	apiKey string
	logger *observability.Logger
}

// NewClient creates an OpenAI-backed variation generator
func NewClient(apiKey string, logger *observability.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		logger: logger,
	}
}

// Generate asks the chat model for count rephrasings of the template.
func (c *Client) Generate(ctx context.Context, template string, count int) ([]string, error) {
	prompt := fmt.Sprintf(`
Rewrite the following message %d times with small natural wording changes.
Keep the meaning, tone and language identical. Reply with a JSON array of %d strings and nothing else.

Message: %s`, count, count, template)

	client := openai.NewClient(openaiOption.WithAPIKey(c.apiKey))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate variations: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no variations returned from OpenAI")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var variants []string
	if err := json.Unmarshal([]byte(raw), &variants); err != nil {
		return nil, fmt.Errorf("failed to parse variations: %w", err)
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("empty variation list")
	}
	if len(variants) > count {
		variants = variants[:count]
	}
	return variants, nil
}
