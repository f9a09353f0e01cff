package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSampleRate is the rate of the raw PCM payloads returned by the
	// narration service and the rate every output session is opened at.
	DefaultSampleRate = 24000

	// DefaultChannels is the channel count assumed when a payload does not
	// report one.
	DefaultChannels = 1
)

var (
	// ErrEmptyPayload is returned by [Decode] when the input does not hold a
	// single complete sample frame. Callers treat it as "nothing to play".
	ErrEmptyPayload = errors.New("audio: payload shorter than one sample frame")

	// ErrInvalidFormat is returned by [Decode] for a non-positive sample rate
	// or channel count.
	ErrInvalidFormat = errors.New("audio: invalid sample rate or channel count")

	// ErrInvalidPayload is returned by [DecodeBase64] when the payload is not
	// valid base64.
	ErrInvalidPayload = errors.New("audio: payload is not valid base64")
)

// Buffer is a decoded, channel-separated float sample buffer. Samples are
// normalised to [-1, 1).
type Buffer struct {
	// SampleRate in Hz.
	SampleRate int

	// Frames is the number of samples in each channel.
	Frames int

	// Channels holds one slice of Frames samples per channel.
	Channels [][]float32
}

// NumChannels returns the number of channels in b.
func (b *Buffer) NumChannels() int { return len(b.Channels) }

// Duration returns the playback length of b.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames) * time.Second / time.Duration(b.SampleRate)
}

// Float32LE interleaves the channels of b into little-endian float32 bytes,
// the layout expected by float output devices.
func (b *Buffer) Float32LE() []byte {
	ch := len(b.Channels)
	out := make([]byte, b.Frames*ch*4)
	for i := range b.Frames {
		for c := range ch {
			off := (i*ch + c) * 4
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(b.Channels[c][i]))
		}
	}
	return out
}

// Decode converts raw signed 16-bit little-endian interleaved PCM into a
// [Buffer]. The frame count is floor(floor(len(data)/2)/channels); a trailing
// odd byte or partial frame is ignored. Inputs shorter than one frame return
// [ErrEmptyPayload].
func Decode(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dHz %dch", ErrInvalidFormat, sampleRate, channels)
	}
	if len(data) < 2*channels {
		return nil, ErrEmptyPayload
	}

	frames := (len(data) / 2) / channels
	buf := &Buffer{
		SampleRate: sampleRate,
		Frames:     frames,
		Channels:   make([][]float32, channels),
	}
	for c := range channels {
		samples := make([]float32, frames)
		for i := range frames {
			off := (i*channels + c) * 2
			if off+1 >= len(data) {
				continue
			}
			s := int16(binary.LittleEndian.Uint16(data[off:]))
			samples[i] = float32(s) / 32768.0
		}
		buf.Channels[c] = samples
	}
	return buf, nil
}

// DecodeBase64 decodes a base64 wire payload and passes the bytes to [Decode].
// Both padded and unpadded encodings are accepted.
func DecodeBase64(payload string, sampleRate, channels int) (*Buffer, error) {
	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(payload)
		if rawErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	return Decode(data, sampleRate, channels)
}

// ParseRateFromMIME extracts the rate parameter from an audio MIME type such
// as "audio/L16;codec=pcm;rate=24000". The boolean is false when no usable
// rate is present.
func ParseRateFromMIME(mime string) (int, bool) {
	for part := range strings.SplitSeq(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "rate") {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || rate <= 0 {
			return 0, false
		}
		return rate, true
	}
	return 0, false
}
