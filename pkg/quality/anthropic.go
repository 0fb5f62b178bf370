package quality

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cruciblehq/crucible/pkg/config"
)

// anthropicBackend calls the Anthropic Messages API through the official
// SDK.
type anthropicBackend struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

func newAnthropicBackend(jc config.JudgeConfig) (*anthropicBackend, error) {
	apiKey, err := requireAPIKey(jc)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if jc.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(jc.Endpoint))
	}

	return &anthropicBackend{
		client:      anthropic.NewClient(opts...),
		model:       jc.Model,
		maxTokens:   maxTokensOrDefault(jc.MaxTokens),
		temperature: temperatureOrDefault(jc.Temperature),
	}, nil
}

func (b *anthropicBackend) Name() string { return "anthropic" }

func (b *anthropicBackend) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(b.model),
		MaxTokens:   int64(b.maxTokens),
		Temperature: anthropic.Float(b.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return text, nil
}
