package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cruciblehq/crucible/pkg/config"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// openaiBackend calls an OpenAI-compatible chat completions endpoint. The
// endpoint override makes it double as the adapter for local gateways and
// any provider speaking the same protocol.
type openaiBackend struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

func newOpenAIBackend(jc config.JudgeConfig, timeout time.Duration) (*openaiBackend, error) {
	apiKey, err := requireAPIKey(jc)
	if err != nil {
		return nil, err
	}

	baseURL := jc.Endpoint
	if baseURL == "" {
		baseURL = openaiDefaultBaseURL
	}

	return &openaiBackend{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       jc.Model,
		maxTokens:   maxTokensOrDefault(jc.MaxTokens),
		temperature: temperatureOrDefault(jc.Temperature),
	}, nil
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (b *openaiBackend) Name() string { return "openai" }

func (b *openaiBackend) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := openaiRequest{
		Model: b.model,
		Messages: []openaiMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    b.temperature,
		MaxTokens:      b.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var parsed openaiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("api error: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response carried no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
