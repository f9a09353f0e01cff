package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

// GuardedTTS implements [tts.Provider] by forwarding to a single backend
// through a [CircuitBreaker]. It never retries and never fails over; when the
// breaker is open Synthesize returns [ErrCircuitOpen] immediately so the
// caller can go straight to its fallback voice.
type GuardedTTS struct {
	provider tts.Provider
	breaker  *CircuitBreaker
}

// Compile-time interface assertion.
var _ tts.Provider = (*GuardedTTS)(nil)

// NewGuardedTTS wraps provider with a breaker built from cfg.
func NewGuardedTTS(provider tts.Provider, cfg CircuitBreakerConfig) *GuardedTTS {
	return &GuardedTTS{provider: provider, breaker: NewCircuitBreaker(cfg)}
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedTTS) Breaker() *CircuitBreaker { return g.breaker }

// Synthesize forwards req to the wrapped provider if the breaker allows it.
// Cancellation by the caller's own context does not count as a provider
// failure, but a deadline does: a service that keeps timing out is unhealthy.
func (g *GuardedTTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	var res *tts.Result
	var callErr error
	err := g.breaker.Execute(func() error {
		res, callErr = g.provider.Synthesize(ctx, req)
		if errors.Is(callErr, context.Canceled) {
			return nil
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return res, callErr
}
