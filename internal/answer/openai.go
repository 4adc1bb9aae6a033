package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/normanking/voiceavatar/internal/conversation"
	"github.com/normanking/voiceavatar/internal/language"
)

// OpenAIConfig holds chat completion configuration
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	HistoryTurns int // most recent turns sent as context, 0 sends all
	Timeout      time.Duration
}

// DefaultOpenAIConfig returns sensible defaults
func DefaultOpenAIConfig() *OpenAIConfig {
	return &OpenAIConfig{
		Model:        openai.GPT4oMini,
		SystemPrompt: "You are a helpful farming assistant. Answer briefly in plain sentences.",
		MaxTokens:    512,
		Temperature:  0.4,
		HistoryTurns: 20,
		Timeout:      30 * time.Second,
	}
}

// OpenAIProvider answers turns with an OpenAI-compatible chat completion API
type OpenAIProvider struct {
	client *openai.Client
	config *OpenAIConfig
	logger zerolog.Logger
}

// NewOpenAIProvider creates a new chat completion provider
func NewOpenAIProvider(logger zerolog.Logger, config *OpenAIConfig) *OpenAIProvider {
	if config == nil {
		config = DefaultOpenAIConfig()
	}

	clientCfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		config: config,
		logger: logger.With().Str("provider", "openai-chat").Logger(),
	}
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// GetAnswer sends the history plus the new user text and returns the reply
func (p *OpenAIProvider) GetAnswer(ctx context.Context, text, lang string, history []conversation.Turn) (*Answer, error) {
	if p.config.APIKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNotConfigured}
	}

	req := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    p.buildMessages(text, lang, history),
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		perr := &ProviderError{Provider: p.Name(), Err: err}
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			perr.Status = apiErr.HTTPStatusCode
		case errors.As(err, &reqErr):
			perr.Status = reqErr.HTTPStatusCode
		}
		p.logger.Error().Err(err).Int("status", perr.Status).Msg("Chat completion failed")
		return nil, perr
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrEmptyAnswer}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrEmptyAnswer}
	}

	p.logger.Debug().
		Str("model", resp.Model).
		Int("tokens", resp.Usage.TotalTokens).
		Dur("latency", time.Since(start)).
		Msg("Chat completion complete")

	return &Answer{
		Response: content,
		Model:    resp.Model,
		Tokens:   resp.Usage.TotalTokens,
	}, nil
}

func (p *OpenAIProvider) buildMessages(text, code string, history []conversation.Turn) []openai.ChatCompletionMessage {
	history = conversation.Window(history, p.config.HistoryTurns)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)

	system := p.config.SystemPrompt
	if code != "" {
		system = strings.TrimSpace(fmt.Sprintf("%s Always reply in %s.", system, language.Name(code)))
	}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Speaker == conversation.SpeakerAgent {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
}
