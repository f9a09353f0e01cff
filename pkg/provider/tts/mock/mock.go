// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio to consumers and to verify that the
// correct text and VoiceProfile reach the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &tts.Result{Audio: pcm, SampleRate: 24000, Channels: 1},
//	}
//	res, _ := p.Synthesize(ctx, tts.Request{Text: "Hello"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Request is the request passed to Synthesize.
	Request tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Synthesize when Err is nil.
	Result *tts.Result

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Block, if non-nil, makes Synthesize wait until Block is closed or ctx
	// is done. A done ctx returns ctx.Err().
	Block chan struct{}

	// --- Call records ---

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns Result, Err.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Request: req})
	block := p.Block
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res, err
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
