// Package tts provides the speech synthesis client used to voice agent replies.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrMissingCredentials  = errors.New("synthesis API key not configured")
	ErrUnsupportedLanguage = errors.New("no voice for language")
	ErrEmptyText           = errors.New("nothing to synthesize after sanitizing")
	ErrNoAudio             = errors.New("response has no audio content")
)

// ErrorKind classifies a SynthesisError.
type ErrorKind string

const (
	KindMissingCredentials  ErrorKind = "missing_credentials"
	KindUnsupportedLanguage ErrorKind = "unsupported_language"
	KindEmptyText           ErrorKind = "empty_text"
	KindTransport           ErrorKind = "transport"
	KindStatus              ErrorKind = "status"
	KindNoAudio             ErrorKind = "no_audio"
)

// SynthesisError reports a failed synthesis request.
type SynthesisError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *SynthesisError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("speech synthesis failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("speech synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Config holds synthesis endpoint configuration
type Config struct {
	APIKey       string
	Endpoint     string
	Encoding     string // LINEAR16 or MULAW
	SampleRate   int
	SpeakingRate float64
	Pitch        float64
	VolumeGainDb float64
	Timeout      time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Endpoint:     "https://texttospeech.googleapis.com/v1/text:synthesize",
		Encoding:     "LINEAR16",
		SampleRate:   24000,
		SpeakingRate: 1.0,
		Timeout:      20 * time.Second,
	}
}

// Speech is a synthesized utterance.
type Speech struct {
	Audio          []byte
	Encoding       string
	SampleRate     int
	Voice          VoiceProfile
	ProcessingTime time.Duration
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       VoiceProfile   `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type audioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	Pitch           float64 `json:"pitch"`
	VolumeGainDb    float64 `json:"volumeGainDb"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Client talks to a text:synthesize style HTTP endpoint
type Client struct {
	config *Config
	client *http.Client
	logger zerolog.Logger
}

// NewClient creates a new synthesis client
func NewClient(logger zerolog.Logger, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("provider", "tts").Logger(),
	}
}

// IsAvailable reports whether an API key is configured
func (c *Client) IsAvailable() bool {
	return c.config.APIKey != ""
}

// Synthesize sanitizes text and returns audio spoken with the language's voice
func (c *Client) Synthesize(ctx context.Context, text, language string) (*Speech, error) {
	if c.config.APIKey == "" {
		return nil, &SynthesisError{Kind: KindMissingCredentials, Err: ErrMissingCredentials}
	}

	voice, ok := Voice(language)
	if !ok {
		return nil, &SynthesisError{Kind: KindUnsupportedLanguage, Err: fmt.Errorf("%w %q", ErrUnsupportedLanguage, language)}
	}

	clean := Sanitize(text)
	if clean == "" {
		return nil, &SynthesisError{Kind: KindEmptyText, Err: ErrEmptyText}
	}

	startTime := time.Now()

	body, err := sonic.Marshal(synthesizeRequest{
		Input: synthesisInput{Text: clean},
		Voice: voice,
		AudioConfig: audioConfig{
			AudioEncoding:   c.config.Encoding,
			SampleRateHertz: c.config.SampleRate,
			SpeakingRate:    c.config.SpeakingRate,
			Pitch:           c.config.Pitch,
			VolumeGainDb:    c.config.VolumeGainDb,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.config.APIKey)

	c.logger.Debug().
		Str("voice", voice.Name).
		Int("textLen", len(clean)).
		Msg("Sending synthesis request")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &SynthesisError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Kind: KindTransport, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("Synthesis request failed")
		return nil, &SynthesisError{Kind: KindStatus, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	var parsed synthesizeResponse
	if err := sonic.Unmarshal(respBody, &parsed); err != nil {
		return nil, &SynthesisError{Kind: KindNoAudio, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.AudioContent == "" {
		return nil, &SynthesisError{Kind: KindNoAudio, Err: ErrNoAudio}
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return nil, &SynthesisError{Kind: KindNoAudio, Err: fmt.Errorf("decode audio content: %w", err)}
	}

	processingTime := time.Since(startTime)
	c.logger.Info().
		Str("voice", voice.Name).
		Int("audioBytes", len(audio)).
		Dur("processingTime", processingTime).
		Msg("Synthesis complete")

	return &Speech{
		Audio:          audio,
		Encoding:       c.config.Encoding,
		SampleRate:     c.config.SampleRate,
		Voice:          voice,
		ProcessingTime: processingTime,
	}, nil
}
