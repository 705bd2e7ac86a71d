package clients

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// AIClient is the port proposal_summary.go uses for AI-backed
// summarization. Prompt semantics are out of scope (spec.md
// Non-goals: no AI-prompt semantics); only the plumbing to reach a model is
// specified here.
type AIClient interface {
	// Summarize produces a short summary of text. The text is sent to the
	// model as given; it is not truncated to fit the model's context window.
	Summarize(ctx context.Context, text string) (string, error)
}

type genaiClient struct {
	client *genai.Client
	model  string
}

// NewAIClient builds an AIClient backed by google.golang.org/genai.
func NewAIClient(ctx context.Context, apiKey, model string) (AIClient, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("clients: new genai client: %w", err)
	}
	return &genaiClient{client: c, model: model}, nil
}

func (g *genaiClient) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), nil)
	if err != nil {
		return "", fmt.Errorf("clients: generate content: %w", err)
	}
	return resp.Text(), nil
}
