package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zaf/g711"
)

// WAV format tags
const (
	wavFormatPCM   = 1
	wavFormatAlaw  = 6
	wavFormatMulaw = 7
)

// MinSampleRate is the lowest rate a synthesized clip may declare.
const MinSampleRate = 8000

// Decode turns a synthesized audio buffer into PCM. RIFF/WAVE input is
// parsed from its header; anything else is read as format at sampleRate.
func Decode(data []byte, format Format, sampleRate, channels int) (*Clip, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	if isWAV(data) {
		clip, err := decodeWAV(data)
		if err != nil {
			return nil, err
		}
		if len(clip.PCM) == 0 {
			return nil, ErrEmptyAudio
		}
		return clip, nil
	}

	if sampleRate < MinSampleRate {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, sampleRate)
	}
	if channels <= 0 {
		channels = 1
	}

	var pcm []byte
	switch format {
	case FormatLinear16, "":
		if len(data)%(2*channels) != 0 {
			return nil, fmt.Errorf("%w: %d bytes is not whole 16-bit frames", ErrInvalidFormat, len(data))
		}
		pcm = data
	case FormatMulaw:
		pcm = g711.DecodeUlaw(data)
	case FormatAlaw:
		pcm = g711.DecodeAlaw(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, format)
	}

	return newClip(pcm, sampleRate, channels), nil
}

func newClip(pcm []byte, sampleRate, channels int) *Clip {
	frames := len(pcm) / (2 * channels)
	return &Clip{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   time.Duration(frames) * time.Second / time.Duration(sampleRate),
	}
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

type wavFormat struct {
	tag           uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

func decodeWAV(data []byte) (*Clip, error) {
	var (
		format  *wavFormat
		payload []byte
	)

	i := 12
	for i+8 <= len(data) && payload == nil {
		id := string(data[i : i+4])
		size := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		start := i + 8
		next := start + size
		if next > len(data) {
			if id != "data" {
				return nil, fmt.Errorf("%w: %q chunk exceeds buffer", ErrInvalidFormat, id)
			}
			// streamed WAVs often carry a placeholder data size
			next = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidFormat)
			}
			body := data[start:next]
			format = &wavFormat{
				tag:           binary.LittleEndian.Uint16(body[0:2]),
				channels:      int(binary.LittleEndian.Uint16(body[2:4])),
				sampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
				bitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
			}
		case "data":
			payload = data[start:next]
		}

		if size%2 != 0 {
			next++
		}
		i = next
	}

	if format == nil {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidFormat)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrInvalidFormat)
	}
	if format.channels <= 0 || format.sampleRate < MinSampleRate {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidFormat, format.channels, format.sampleRate)
	}

	var pcm []byte
	switch {
	case format.tag == wavFormatPCM && format.bitsPerSample == 16:
		pcm = payload[:len(payload)-len(payload)%(2*format.channels)]
	case format.tag == wavFormatMulaw && format.bitsPerSample == 8:
		pcm = g711.DecodeUlaw(payload)
	case format.tag == wavFormatAlaw && format.bitsPerSample == 8:
		pcm = g711.DecodeAlaw(payload)
	default:
		return nil, fmt.Errorf("%w: wav format %d with %d bits", ErrUnsupportedEncoding, format.tag, format.bitsPerSample)
	}

	return newClip(pcm, format.sampleRate, format.channels), nil
}

// EncodeWAV wraps 16-bit PCM in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// applyVolume scales PCM samples in place.
func applyVolume(pcm []byte, volume float64) {
	if volume >= 1.0 {
		return
	}
	if volume < 0 {
		volume = 0
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(float64(s)*volume)))
	}
}
