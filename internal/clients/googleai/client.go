package googleai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dispatch-server/internal/observability"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const variationModel = "gemini-1.5-flash"

// Client generates message variations with Gemini.
type Client struct {
	apiKey string
	logger *observability.Logger
}

// NewClient creates a Gemini-backed variation generator
func NewClient(apiKey string, logger *observability.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		logger: logger,
	}
}

// Generate asks Gemini for count rephrasings of the template. The model is
// instructed to answer with a JSON string array so the response parses without
// heuristics.
func (c *Client) Generate(ctx context.Context, template string, count int) ([]string, error) {
	prompt := fmt.Sprintf(`
Rewrite the following message %d times with small natural wording changes.
Keep the meaning, tone and language identical. Reply with a JSON array of %d strings and nothing else.

Message: %s`, count, count, template)

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(variationModel)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate variations: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no variations returned from Gemini")
	}

	part, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response format")
	}

	return parseVariants(string(part), count)
}

// parseVariants extracts the JSON string array from a model response, which
// may be wrapped in a markdown fence.
func parseVariants(raw string, count int) ([]string, error) {
	raw = strings.TrimSpace(raw)
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
