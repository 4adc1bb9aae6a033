package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/voiceavatar/internal/bus"
)

// mockGenerator returns scripted results in order, repeating the last one
type mockGenerator struct {
	mu        sync.Mutex
	available bool
	results   []mockResult
	prompts   []string
}

type mockResult struct {
	text string
	err  error
}

func (g *mockGenerator) Name() string { return "mock" }
func (g *mockGenerator) Available() bool { return g.available }

func (g *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	i := len(g.prompts) - 1
	if i >= len(g.results) {
		i = len(g.results) - 1
	}
	return g.results[i].text, g.results[i].err
}

func (g *mockGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func statusErr(code int) error {
	return &StatusError{Provider: "mock", Status: code, Err: errors.New(http.StatusText(code))}
}

// recordBackoff records the schedule's delays and retries immediately
type recordBackoff struct {
	delays []time.Duration
}

func (r *recordBackoff) wrap(next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if !stop {
			r.delays = append(r.delays, d)
		}
		return 0, stop
	})
}

func newTestBatcher(gen Generator, eventBus *bus.EventBus) (*Batcher, *recordBackoff) {
	b := NewBatcher(gen, nil, eventBus, zerolog.Nop())
	rec := &recordBackoff{}
	b.SetBackoff(func() retry.Backoff { return rec.wrap(b.defaultBackoff()) })
	return b, rec
}

func TestTranslateBatch_Success(t *testing.T) {
	gen := &mockGenerator{available: true, results: []mockResult{{text: "1. ए\n2. बी\n3. सी"}}}
	b, _ := newTestBatcher(gen, nil)

	got := b.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "hi")

	assert.Equal(t, []string{"ए", "बी", "सी"}, got)
	require.Equal(t, 1, gen.calls(), "one round trip per batch")
	assert.Contains(t, gen.prompts[0], "into Hindi")
	assert.Contains(t, gen.prompts[0], "3. c")
}

func TestTranslateBatch_PartialResponseKeepsOriginals(t *testing.T) {
	gen := &mockGenerator{available: true, results: []mockResult{{text: "1. ए\n3. सी"}}}
	b, _ := newTestBatcher(gen, nil)

	got := b.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "hi")
	assert.Equal(t, []string{"ए", "b", "सी"}, got)
}

func TestTranslateBatch_ProviderFailureReturnsOriginals(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"server error", statusErr(http.StatusInternalServerError)},
		{"bad request", statusErr(http.StatusBadRequest)},
		{"transport", errors.New("connection refused")},
		{"empty", ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{available: true, results: []mockResult{{err: tt.err}}}
			b, rec := newTestBatcher(gen, nil)

			got := b.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "hi")

			assert.Equal(t, []string{"a", "b", "c"}, got)
			assert.Equal(t, 1, gen.calls(), "no retry on non rate limit failures")
			assert.Empty(t, rec.delays)
		})
	}
}

func TestTranslateBatch_RateLimitBackoff(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable, StatusOverloaded} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			gen := &mockGenerator{available: true, results: []mockResult{{err: statusErr(code)}}}
			b, rec := newTestBatcher(gen, nil)

			got := b.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "hi")

			assert.Equal(t, []string{"a", "b", "c"}, got)
			assert.Equal(t, DefaultConfig().MaxRetries+1, gen.calls())
			assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
		})
	}
}

func TestTranslateBatch_RecoversAfterRateLimit(t *testing.T) {
	gen := &mockGenerator{available: true, results: []mockResult{
		{err: statusErr(http.StatusTooManyRequests)},
		{err: statusErr(http.StatusTooManyRequests)},
		{text: "1. ಎ\n2. ಬಿ"},
	}}
	b, rec := newTestBatcher(gen, nil)

	got := b.TranslateBatch(context.Background(), []string{"a", "b"}, "kn")

	assert.Equal(t, []string{"ಎ", "ಬಿ"}, got)
	assert.Equal(t, 3, gen.calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

// cancelGenerator cancels the batch's context from inside its first call
type cancelGenerator struct {
	mockGenerator
	cancel context.CancelFunc
}

func (g *cancelGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.cancel()
	return g.mockGenerator.Generate(ctx, prompt)
}

func TestTranslateBatch_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &cancelGenerator{
		mockGenerator: mockGenerator{available: true, results: []mockResult{{err: statusErr(http.StatusTooManyRequests)}}},
		cancel:        cancel,
	}
	b := NewBatcher(gen, &Config{SourceLanguage: "en", MaxRetries: 3, BaseDelay: time.Hour}, nil, zerolog.Nop())

	start := time.Now()
	got := b.TranslateBatch(ctx, []string{"a"}, "hi")
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, gen.calls())
	assert.Less(t, time.Since(start), time.Minute)
}

func TestTranslateBatch_CancelledBeforeStart(t *testing.T) {
	gen := &mockGenerator{available: true, results: []mockResult{{text: "1. ए"}}}
	b, _ := newTestBatcher(gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, []string{"a"}, b.TranslateBatch(ctx, []string{"a"}, "hi"))
	assert.Zero(t, gen.calls())
}

func TestNewBatcher_NormalizesConfig(t *testing.T) {
	cfg := &Config{SourceLanguage: "en", MaxRetries: -1}
	b := NewBatcher(nil, cfg, nil, zerolog.Nop())

	assert.Equal(t, time.Second, b.config.BaseDelay)
	assert.Zero(t, b.config.MaxRetries)
	assert.Equal(t, -1, cfg.MaxRetries, "caller config is not modified")
}

func TestTranslateBatch_IdentityCases(t *testing.T) {
	configured := &mockGenerator{available: true, results: []mockResult{{text: "1. x"}}}

	tests := []struct {
		name   string
		gen    Generator
		target string
	}{
		{"same as source", configured, "en"},
		{"empty target", configured, ""},
		{"no generator", nil, "hi"},
		{"missing credentials", &mockGenerator{available: false}, "hi"},
		{"unsupported target", configured, "xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBatcher(tt.gen, nil)
			got := b.TranslateBatch(context.Background(), []string{"a", "b", "c"}, tt.target)
			assert.Equal(t, []string{"a", "b", "c"}, got)
		})
	}
	assert.Zero(t, configured.calls())
}

func TestTranslateBatch_EmptyInput(t *testing.T) {
	gen := &mockGenerator{available: true, results: []mockResult{{text: "1. x"}}}
	b, _ := newTestBatcher(gen, nil)

	got := b.TranslateBatch(context.Background(), nil, "hi")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, gen.calls())
}

func TestTranslateBatch_DoesNotAliasInput(t *testing.T) {
	gen := &mockGenerator{available: true, results: []mockResult{{err: statusErr(http.StatusBadRequest)}}}
	b, _ := newTestBatcher(gen, nil)

	in := []string{"a", "b"}
	got := b.TranslateBatch(context.Background(), in, "hi")
	got[0] = "changed"
	assert.Equal(t, "a", in[0])
}

func TestTranslateBatch_PublishesDegraded(t *testing.T) {
	eventBus := bus.NewEventBus()
	events := make(chan bus.Event, 1)
	eventBus.Subscribe(bus.EventTypeTranslationDegraded, func(e bus.Event) { events <- e })

	gen := &mockGenerator{available: true, results: []mockResult{{err: statusErr(http.StatusInternalServerError)}}}
	b, _ := newTestBatcher(gen, eventBus)

	b.TranslateBatch(context.Background(), []string{"a", "b"}, "ta")

	select {
	case e := <-events:
		assert.Equal(t, "ta", e.Data["target"])
		assert.Equal(t, "provider_error", e.Data["reason"])
		assert.Equal(t, 2, e.Data["count"])
	case <-time.After(2 * time.Second):
		t.Fatal("no degraded event")
	}
}

func TestTranslateBatch_LengthAlwaysMatches(t *testing.T) {
	responses := []string{
		"",
		"1. a",
		"1. a\n2. b\n3. c\n4. d\n5. e",
		"garbage\n\n\n",
		strings.Repeat("2. dup\n", 10),
	}
	for _, resp := range responses {
		gen := &mockGenerator{available: true, results: []mockResult{{text: resp}}}
		b, _ := newTestBatcher(gen, nil)
		got := b.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "hi")
		assert.Len(t, got, 3, "response %q", resp)
	}
}
