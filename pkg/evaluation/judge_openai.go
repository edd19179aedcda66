package evaluation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// OpenAIJudge scores responses with an OpenAI model.
type OpenAIJudge struct {
	client openai.Client
	model  string
}

// NewOpenAIJudge creates a remote judge backed by the OpenAI API.
func NewOpenAIJudge(apiKey, model string) (*OpenAIJudge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = "gpt-5.2-thinking"
	}

	client := openai.NewClient()
	return &OpenAIJudge{client: client, model: model}, nil
}

// Evaluate asks the model to grade the response.
func (j *OpenAIJudge) Evaluate(ctx context.Context, query, response string) (*Score, error) {
	resp, err := j.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(j.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(buildJudgePrompt(query, response)),
		},
		MaxCompletionTokens: openai.Int(1024),
	})
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return parseJudgeVerdict(resp.Choices[0].Message.Content)
}
