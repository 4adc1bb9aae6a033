package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

// DefaultHTTPEndpoint is a generateContent-style endpoint; %s is the model.
const DefaultHTTPEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// HTTPGenerator calls a generateContent-style JSON endpoint directly
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPGenerator creates a generator for endpoint. A %s in endpoint is
// replaced by model.
func NewHTTPGenerator(logger zerolog.Logger, apiKey, endpoint, model string, timeout time.Duration) *HTTPGenerator {
	if endpoint == "" {
		endpoint = DefaultHTTPEndpoint
	}
	if strings.Contains(endpoint, "%s") {
		if model == "" {
			model = "gemini-1.5-flash"
		}
		endpoint = fmt.Sprintf(endpoint, model)
	}
	return &HTTPGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("provider", "http-translate").Logger(),
	}
}

func (g *HTTPGenerator) Name() string { return "http" }

func (g *HTTPGenerator) Available() bool { return g.apiKey != "" }

// Generate posts the prompt and concatenates the first candidate's text parts
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := sonic.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Debug().Int("status", resp.StatusCode).Str("body", string(respBody)).Msg("Generate request failed")
		return "", &StatusError{Provider: g.Name(), Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	var parsed generateResponse
	if err := sonic.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
