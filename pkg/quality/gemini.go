package quality

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/cruciblehq/crucible/pkg/config"
)

// geminiBackend calls the Gemini API through the official SDK. Verdicts are
// requested as application/json so the model cannot wander into prose.
type geminiBackend struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
}

func newGeminiBackend(jc config.JudgeConfig) (*geminiBackend, error) {
	apiKey, err := requireAPIKey(jc)
	if err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if jc.Endpoint != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: jc.Endpoint}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &geminiBackend{
		client:      client,
		model:       jc.Model,
		maxTokens:   maxTokensOrDefault(jc.MaxTokens),
		temperature: temperatureOrDefault(jc.Temperature),
	}, nil
}

func (b *geminiBackend) Name() string { return "gemini" }

func (b *geminiBackend) Complete(ctx context.Context, prompt string) (string, error) {
	generateConfig := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(b.temperature)),
		MaxOutputTokens:  int32(b.maxTokens),
		ResponseMIMEType: "application/json",
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), generateConfig)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text content")
	}
	return text, nil
}
