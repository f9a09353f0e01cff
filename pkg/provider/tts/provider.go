// Package tts defines the Provider interface for speech synthesis backends.
//
// A TTS provider wraps a speech generation service (Google Gemini, ElevenLabs,
// or a local Piper binary) and presents a uniform one-shot interface: one
// request in, one block of raw 16-bit PCM out. Narration prompts are a single
// short sentence, so there is no streaming API; the caller decodes the whole
// payload and plays it in one go.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrMissingPayload is returned when the service answered but the response
// carried no audio.
var ErrMissingPayload = errors.New("tts: response contained no audio payload")

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Synthesize sends exactly one request for req and returns the audio of
	// the single response. Implementations must not retry; retry and fallback
	// policy belongs to the caller.
	//
	// The returned Result holds signed 16-bit little-endian PCM. A response
	// without audio yields an error wrapping [ErrMissingPayload].
	//
	// Synthesize respects ctx cancellation and deadlines.
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
