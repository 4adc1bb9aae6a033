package audio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink records chunks without pacing
type recordingSink struct {
	mu     sync.Mutex
	chunks []Chunk
	err    error
	failAt int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Play(ctx context.Context, chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && chunk.Index == s.failAt {
		return s.err
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *recordingSink) played() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chunk(nil), s.chunks...)
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 16000
	cfg.ChunkDuration = 100 * time.Millisecond
	return cfg
}

func TestController_PlayUntilComplete(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(testConfig(), sink, zerolog.Nop())

	pcm := sinePCM(16000, 250*time.Millisecond)
	require.NoError(t, c.PlayUntilComplete(context.Background(), EncodeWAV(pcm, 16000, 1)))

	chunks := sink.played()
	require.Len(t, chunks, 3)
	assert.Equal(t, 100*time.Millisecond, chunks[0].Duration)
	assert.Equal(t, 50*time.Millisecond, chunks[2].Duration)
	assert.False(t, chunks[1].Final)
	assert.True(t, chunks[2].Final)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}

	assert.Zero(t, c.ActiveHandles())
}

func TestController_DecodeFailureReleasesHandle(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(testConfig(), sink, zerolog.Nop())

	err := c.PlayUntilComplete(context.Background(), []byte{1, 2, 3})

	var perr *PlaybackError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "decode", perr.Op)
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.Empty(t, sink.played())
	assert.Zero(t, c.ActiveHandles())
}

func TestController_LowSampleRateSettles(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(testConfig(), sink, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- c.PlayUntilComplete(context.Background(), EncodeWAV(make([]byte, 40), 5, 1))
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInvalidFormat)
	case <-time.After(2 * time.Second):
		t.Fatal("PlayUntilComplete did not return")
	}
	assert.Empty(t, sink.played())
	assert.Zero(t, c.ActiveHandles())
}

func TestController_SplitAlwaysAdvances(t *testing.T) {
	c := NewController(testConfig(), &recordingSink{}, zerolog.Nop())

	chunks := c.split(&Clip{PCM: make([]byte, 40), SampleRate: 5, Channels: 1})
	require.Len(t, chunks, 20)
	assert.Equal(t, 200*time.Millisecond, chunks[0].Duration)
	assert.True(t, chunks[19].Final)
}

func TestController_SinkFailureReleasesHandle(t *testing.T) {
	boom := errors.New("device lost")
	sink := &recordingSink{err: boom, failAt: 1}
	c := NewController(testConfig(), sink, zerolog.Nop())

	err := c.PlayUntilComplete(context.Background(), sinePCM(16000, 300*time.Millisecond))

	var perr *PlaybackError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "play", perr.Op)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, sink.played(), 1)
	assert.Zero(t, c.ActiveHandles())
}

func TestController_RepeatedCallsReturnToBaseline(t *testing.T) {
	c := NewController(testConfig(), &recordingSink{}, zerolog.Nop())
	good := sinePCM(16000, 50*time.Millisecond)

	for i := 0; i < 10; i++ {
		data := good
		if i%2 == 1 {
			data = nil
		}
		_ = c.PlayUntilComplete(context.Background(), data)
		assert.Zero(t, c.ActiveHandles(), "iteration %d", i)
	}
}

// blockingSink holds the first chunk until released
type blockingSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Play(ctx context.Context, chunk Chunk) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestController_OneHandleWhilePlaying(t *testing.T) {
	sink := &blockingSink{started: make(chan struct{}), release: make(chan struct{})}
	c := NewController(testConfig(), sink, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- c.PlayUntilComplete(context.Background(), sinePCM(16000, 100*time.Millisecond)) }()

	<-sink.started
	assert.Equal(t, 1, c.ActiveHandles())

	close(sink.release)
	require.NoError(t, <-done)
	assert.Zero(t, c.ActiveHandles())
}

func TestController_Cancel(t *testing.T) {
	c := NewController(testConfig(), NewClockSink(), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.PlayUntilComplete(ctx, sinePCM(16000, 2*time.Second))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, c.ActiveHandles())
}

func TestController_ClockSinkPaces(t *testing.T) {
	c := NewController(testConfig(), NewClockSink(), zerolog.Nop())

	start := time.Now()
	require.NoError(t, c.PlayUntilComplete(context.Background(), sinePCM(16000, 150*time.Millisecond)))
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestController_OutputVolume(t *testing.T) {
	cfg := testConfig()
	cfg.OutputVolume = 0
	sink := &recordingSink{}
	c := NewController(cfg, sink, zerolog.Nop())

	pcm := sinePCM(16000, 100*time.Millisecond)
	original := append([]byte(nil), pcm...)
	require.NoError(t, c.PlayUntilComplete(context.Background(), pcm))

	assert.Equal(t, original, pcm, "caller buffer must not be modified")
	for _, b := range sink.played()[0].Data {
		require.Zero(t, b)
	}
}

func TestController_SetSink(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{}
	c := NewController(testConfig(), first, zerolog.Nop())
	c.SetSink(second)

	require.NoError(t, c.PlayUntilComplete(context.Background(), sinePCM(16000, 50*time.Millisecond)))
	assert.Empty(t, first.played())
	assert.Len(t, second.played(), 1)
}

func TestDiscardSink(t *testing.T) {
	c := NewController(testConfig(), DiscardSink{}, zerolog.Nop())

	start := time.Now()
	require.NoError(t, c.PlayUntilComplete(context.Background(), sinePCM(16000, time.Second)))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWebSocketSink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	playErr := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			playErr <- err
			return
		}
		defer conn.Close()

		cfg := testConfig()
		cfg.ChunkDuration = 20 * time.Millisecond
		c := NewController(cfg, NewWebSocketSink(conn), zerolog.Nop())
		playErr <- c.PlayUntilComplete(context.Background(), sinePCM(16000, 60*time.Millisecond))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var msgs []ChunkMessage
	for {
		var msg ChunkMessage
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)
		if msg.Final {
			break
		}
	}

	require.NoError(t, <-playErr)
	require.Len(t, msgs, 3)
	assert.Equal(t, "audio", msgs[0].Type)
	assert.Equal(t, 16000, msgs[0].SampleRate)
	assert.EqualValues(t, 20, msgs[0].DurationMs)
	assert.NotEmpty(t, msgs[0].Data)
}
