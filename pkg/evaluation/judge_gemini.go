package evaluation

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiJudge scores responses with a Gemini model.
type GeminiJudge struct {
	client *genai.Client
	model  string
}

// NewGeminiJudge creates a remote judge backed by the Gemini API.
func NewGeminiJudge(apiKey, model string) (*GeminiJudge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if model == "" {
		model = "gemini-2.0-pro"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GeminiJudge{client: client, model: model}, nil
}

// Evaluate asks Gemini to grade the response.
func (j *GeminiJudge) Evaluate(ctx context.Context, query, response string) (*Score, error) {
	resp, err := j.client.Models.GenerateContent(ctx, j.model, genai.Text(buildJudgePrompt(query, response)), nil)
	if err != nil {
		return nil, fmt.Errorf("google API error: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("google returned no candidates")
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	return parseJudgeVerdict(content)
}
