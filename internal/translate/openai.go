package translate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// OpenAIGenerator generates text with an OpenAI-compatible chat completion API
type OpenAIGenerator struct {
	client *openai.Client
	apiKey string
	model  string
	logger zerolog.Logger
}

// NewOpenAIGenerator creates a chat completion backed generator
func NewOpenAIGenerator(logger zerolog.Logger, apiKey, baseURL, model string, timeout time.Duration) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		apiKey: apiKey,
		model:  model,
		logger: logger.With().Str("provider", "openai-translate").Logger(),
	}
}

func (g *OpenAIGenerator) Name() string { return "openai" }

func (g *OpenAIGenerator) Available() bool { return g.apiKey != "" }

// Generate sends prompt as a single user message
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			return "", &StatusError{Provider: g.Name(), Status: apiErr.HTTPStatusCode, Err: err}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			return "", &StatusError{Provider: g.Name(), Status: reqErr.HTTPStatusCode, Err: err}
		}
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
