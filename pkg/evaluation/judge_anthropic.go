package evaluation

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicJudge scores responses with a Claude model.
type AnthropicJudge struct {
	client anthropic.Client
	model  string
}

// NewAnthropicJudge creates a remote judge backed by the Anthropic API.
func NewAnthropicJudge(apiKey, model string) (*AnthropicJudge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	client := anthropic.NewClient()
	return &AnthropicJudge{client: client, model: model}, nil
}

// Evaluate asks Claude to grade the response.
func (j *AnthropicJudge) Evaluate(ctx context.Context, query, response string) (*Score, error) {
	resp, err := j.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(j.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildJudgePrompt(query, response))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return parseJudgeVerdict(content)
}
