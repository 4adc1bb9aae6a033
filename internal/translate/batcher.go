package translate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/normanking/voiceavatar/internal/bus"
	"github.com/normanking/voiceavatar/internal/language"
)

// Config holds batcher configuration
type Config struct {
	SourceLanguage string
	MaxRetries     int           // retries after the first attempt on rate limit or overload
	BaseDelay      time.Duration // delay before the first retry, doubled each retry
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SourceLanguage: "en",
		MaxRetries:     3,
		BaseDelay:      time.Second,
	}
}

// Batcher translates lists of strings. It never returns an error: any
// failure yields the original strings.
type Batcher struct {
	gen      Generator
	config   *Config
	eventBus *bus.EventBus
	logger   zerolog.Logger
	backoff  func() retry.Backoff
}

// NewBatcher creates a batcher. gen may be nil, which makes every call an
// identity pass-through.
func NewBatcher(gen Generator, config *Config, eventBus *bus.EventBus, logger zerolog.Logger) *Batcher {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	b := &Batcher{
		gen:      gen,
		config:   &cfg,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "translate").Logger(),
	}
	b.backoff = b.defaultBackoff
	return b
}

// SetBackoff replaces the retry schedule, for tests and simulations. fn is
// called once per batch.
func (b *Batcher) SetBackoff(fn func() retry.Backoff) {
	b.backoff = fn
}

// defaultBackoff waits BaseDelay before the first retry and doubles it for
// each one after, up to MaxRetries.
func (b *Batcher) defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(uint64(b.config.MaxRetries), retry.NewExponential(b.config.BaseDelay))
}

// TranslateBatch returns one entry per input, each translated into target
// or left as the original.
func (b *Batcher) TranslateBatch(ctx context.Context, texts []string, target string) []string {
	originals := make([]string, len(texts))
	copy(originals, texts)

	if len(texts) == 0 || target == "" || target == b.config.SourceLanguage {
		return originals
	}
	if b.gen == nil || !b.gen.Available() {
		return b.degrade(originals, target, "not_configured", ErrNotConfigured)
	}
	if !language.Known(target) {
		return b.degrade(originals, target, "unsupported_language", nil)
	}

	resp, err := b.generate(ctx, BuildPrompt(texts, language.Name(target)))
	if err != nil {
		return b.degrade(originals, target, "provider_error", err)
	}

	lines := ParseNumbered(resp, len(texts))
	result := make([]string, 0, len(texts))
	missing := 0
	for i, line := range lines {
		if line.Found {
			result = append(result, line.Text)
		} else {
			result = append(result, originals[i])
			missing++
		}
	}

	if len(result) != len(texts) {
		return b.degrade(originals, target, "length_mismatch", nil)
	}
	if missing > 0 {
		b.logger.Debug().Int("missing", missing).Int("total", len(texts)).Str("target", target).Msg("Some items kept their original text")
	}
	return result
}

// generate calls the provider, retrying rate limit and overload statuses
// on the backoff schedule.
func (b *Batcher) generate(ctx context.Context, prompt string) (string, error) {
	var resp string
	attempt := 0
	err := retry.Do(ctx, b.backoff(), func(ctx context.Context) error {
		attempt++
		out, err := b.gen.Generate(ctx, prompt)
		if err == nil {
			resp = out
			return nil
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.Retryable() {
			return err
		}
		b.logger.Debug().
			Int("status", statusErr.Status).
			Int("attempt", attempt).
			Msg("Translation rate limited, backing off")
		return retry.RetryableError(err)
	})
	if err != nil {
		return "", err
	}
	return resp, nil
}

func (b *Batcher) degrade(originals []string, target, reason string, err error) []string {
	ev := b.logger.Warn().Str("target", target).Str("reason", reason).Int("count", len(originals))
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("Translation degraded, returning originals")

	if b.eventBus != nil {
		b.eventBus.Publish(bus.Event{
			Type: bus.EventTypeTranslationDegraded,
			Data: map[string]any{
				"target": target,
				"reason": reason,
				"count":  len(originals),
			},
		})
	}
	return originals
}
