package audio

import (
	"context"
	"encoding/base64"
	"time"
)

// Sink receives PCM chunks in order. Play returns once the chunk has been
// played, so the last Play returning marks the natural end of a clip.
type Sink interface {
	Name() string
	Play(ctx context.Context, chunk Chunk) error
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ClockSink paces chunks in real time without an output device. It is the
// headless sink used when the browser or renderer owns the speakers.
type ClockSink struct{}

// NewClockSink creates a real-time pacing sink
func NewClockSink() *ClockSink {
	return &ClockSink{}
}

func (s *ClockSink) Name() string { return "clock" }

func (s *ClockSink) Play(ctx context.Context, chunk Chunk) error {
	return wait(ctx, chunk.Duration)
}

// DiscardSink drops audio immediately.
type DiscardSink struct{}

func (DiscardSink) Name() string { return "discard" }

func (DiscardSink) Play(ctx context.Context, _ Chunk) error {
	return ctx.Err()
}

// JSONWriter is satisfied by *websocket.Conn and by serialized wrappers around it.
type JSONWriter interface {
	WriteJSON(v interface{}) error
}

// ChunkMessage is the wire form of an audio chunk sent to a browser.
type ChunkMessage struct {
	Type       string `json:"type"`
	Index      int    `json:"index"`
	Data       string `json:"data"` // base64 PCM16LE
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	DurationMs int64  `json:"duration_ms"`
	Final      bool   `json:"final"`
}

// WebSocketSink streams chunks to a browser and paces them in real time so
// playback completion tracks what the listener hears.
type WebSocketSink struct {
	conn JSONWriter
}

// NewWebSocketSink creates a sink writing to conn
func NewWebSocketSink(conn JSONWriter) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

func (s *WebSocketSink) Name() string { return "websocket" }

func (s *WebSocketSink) Play(ctx context.Context, chunk Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := ChunkMessage{
		Type:       "audio",
		Index:      chunk.Index,
		Data:       base64.StdEncoding.EncodeToString(chunk.Data),
		SampleRate: chunk.SampleRate,
		Channels:   chunk.Channels,
		DurationMs: chunk.Duration.Milliseconds(),
		Final:      chunk.Final,
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return err
	}
	return wait(ctx, chunk.Duration)
}
