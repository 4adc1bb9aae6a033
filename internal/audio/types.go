// Package audio plays synthesized speech to completion through a pluggable sink.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrEmptyAudio          = errors.New("audio buffer is empty")
	ErrInvalidFormat       = errors.New("invalid audio format")
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
)

// Format is the encoding of a headerless audio buffer. WAV input is detected
// from its RIFF header regardless of Format.
type Format string

const (
	FormatWAV      Format = "wav"
	FormatLinear16 Format = "LINEAR16"
	FormatMulaw    Format = "MULAW"
	FormatAlaw     Format = "ALAW"
)

// Config holds playback configuration
type Config struct {
	Format        Format        // encoding assumed for headerless buffers
	SampleRate    int           // sample rate assumed for headerless buffers
	Channels      int           // channel count assumed for headerless buffers
	ChunkDuration time.Duration // audio handed to the sink per write
	OutputVolume  float64       // 0.0 to 1.0
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Format:        FormatLinear16,
		SampleRate:    24000,
		Channels:      1,
		ChunkDuration: 100 * time.Millisecond,
		OutputVolume:  1.0,
	}
}

// Clip is decoded 16-bit little-endian PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Chunk is a slice of a clip handed to a sink.
type Chunk struct {
	Data       []byte        `json:"data"`
	Index      int           `json:"index"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	Final      bool          `json:"final"`
}

// PlaybackError reports a failed decode or playback.
type PlaybackError struct {
	Op  string // decode or play
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("audio %s failed: %v", e.Op, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
