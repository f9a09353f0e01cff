// Package audio holds the narration audio path: decoding raw PCM payloads
// into float sample buffers and playing them through a per-screen output
// [Session].
//
// The two device abstractions are:
//
//   - [Platform] opens the host's audio output and returns a [Device].
//   - [Device] creates independent one-shot [Voice] players that read
//     float32 little-endian interleaved samples.
//
// Implementations live in backend packages (audio/oto for real speakers,
// audio/mock for tests). The interfaces are narrow so that a screen can run
// with no audio at all: a [Session] whose platform cannot open reports
// [ErrPlatformUnavailable] and turns every playback into a silent no-op.
package audio

import (
	"errors"
	"io"
)

// ErrPlatformUnavailable reports that no audio output could be created on this
// host. Gameplay continues without sound.
var ErrPlatformUnavailable = errors.New("audio: platform unavailable")

// Platform is the entry point for an audio output backend.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Open creates (or attaches to) an output device running at sampleRate
	// with the given channel count. Devices consume float32 little-endian
	// interleaved samples.
	//
	// Returns an error wrapping [ErrPlatformUnavailable] when the host has no
	// usable output.
	Open(sampleRate, channels int) (Device, error)
}

// Device is an open audio output.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// NewVoice returns a one-shot player that reads samples from r until EOF.
	// The voice does not start until [Voice.Play] is called.
	NewVoice(r io.Reader) Voice

	// Suspended reports whether the device is currently suspended (for example
	// before the first user interaction on some hosts).
	Suspended() bool

	// Resume asks a suspended device to resume output.
	Resume() error

	// Close releases the device. Voices created from it stop producing sound.
	Close() error
}

// Voice is a single playback node.
type Voice interface {
	// Play starts playback. It does not block.
	Play()

	// IsPlaying reports whether the voice still has samples to play.
	IsPlaying() bool

	// Close releases the voice.
	Close() error
}
