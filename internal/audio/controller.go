package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// handle is the transient playable resource owned by one PlayUntilComplete call.
type handle struct {
	id   uint64
	clip *Clip
}

// Controller plays one audio buffer per call. Callers serialize calls; the
// controller does not queue.
type Controller struct {
	config *Config
	sinkMu sync.RWMutex
	sink   Sink
	logger zerolog.Logger

	nextID atomic.Uint64
	active atomic.Int64
}

// NewController creates a playback controller writing to sink
func NewController(config *Config, sink Sink, logger zerolog.Logger) *Controller {
	if config == nil {
		config = DefaultConfig()
	}
	if sink == nil {
		sink = NewClockSink()
	}
	return &Controller{
		config: config,
		sink:   sink,
		logger: logger.With().Str("component", "audio").Logger(),
	}
}

// SetSink swaps the output sink for later calls
func (c *Controller) SetSink(sink Sink) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.sink = sink
}

// ActiveHandles returns the number of playback handles not yet released.
func (c *Controller) ActiveHandles() int {
	return int(c.active.Load())
}

func (c *Controller) acquire() *handle {
	c.active.Add(1)
	return &handle{id: c.nextID.Add(1)}
}

func (c *Controller) release(h *handle) {
	h.clip = nil
	c.active.Add(-1)
}

// PlayUntilComplete decodes data and plays it to the end. It returns nil on
// natural completion and a *PlaybackError on decode or sink failure,
// including cancellation of ctx.
func (c *Controller) PlayUntilComplete(ctx context.Context, data []byte) error {
	h := c.acquire()
	defer c.release(h)

	clip, err := Decode(data, c.config.Format, c.config.SampleRate, c.config.Channels)
	if err != nil {
		c.logger.Error().Err(err).Uint64("handle", h.id).Int("bytes", len(data)).Msg("Audio decode failed")
		return &PlaybackError{Op: "decode", Err: err}
	}
	if c.config.OutputVolume < 1.0 {
		// decoded PCM may alias the caller's buffer
		pcm := make([]byte, len(clip.PCM))
		copy(pcm, clip.PCM)
		applyVolume(pcm, c.config.OutputVolume)
		clip.PCM = pcm
	}
	h.clip = clip

	c.sinkMu.RLock()
	sink := c.sink
	c.sinkMu.RUnlock()

	c.logger.Debug().
		Uint64("handle", h.id).
		Str("sink", sink.Name()).
		Dur("duration", clip.Duration).
		Msg("Playback started")

	start := time.Now()
	for _, chunk := range c.split(clip) {
		if err := sink.Play(ctx, chunk); err != nil {
			c.logger.Warn().Err(err).Uint64("handle", h.id).Int("chunk", chunk.Index).Msg("Playback interrupted")
			return &PlaybackError{Op: "play", Err: err}
		}
	}

	c.logger.Debug().
		Uint64("handle", h.id).
		Dur("elapsed", time.Since(start)).
		Msg("Playback complete")
	return nil
}

// split cuts a clip into chunks of roughly ChunkDuration on frame boundaries.
func (c *Controller) split(clip *Clip) []Chunk {
	frameBytes := 2 * clip.Channels
	chunkFrames := int(int64(clip.SampleRate) * int64(c.config.ChunkDuration) / int64(time.Second))
	if chunkFrames <= 0 {
		chunkFrames = clip.SampleRate / 10
	}
	if chunkFrames < 1 {
		chunkFrames = 1
	}
	chunkBytes := chunkFrames * frameBytes

	var chunks []Chunk
	for off, idx := 0, 0; off < len(clip.PCM); off, idx = off+chunkBytes, idx+1 {
		end := off + chunkBytes
		if end > len(clip.PCM) {
			end = len(clip.PCM)
		}
		frames := (end - off) / frameBytes
		chunks = append(chunks, Chunk{
			Data:       clip.PCM[off:end],
			Index:      idx,
			SampleRate: clip.SampleRate,
			Channels:   clip.Channels,
			Duration:   time.Duration(frames) * time.Second / time.Duration(clip.SampleRate),
			Final:      end == len(clip.PCM),
		})
	}
	return chunks
}
