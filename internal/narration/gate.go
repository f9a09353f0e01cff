// Package narration speaks prompts to the child.
//
// A [Narrator] asks a remote speech provider for PCM audio, decodes it and
// plays it on the screen's audio session. If anything on that path fails it
// falls back to an on-device voice. A per-screen [Gate] makes narration
// single-flight: a prompt requested while another is still being spoken is
// dropped, never queued.
package narration

import "sync"

// Gate is a non-reentrant, non-queueing single-flight lock with an observable
// speaking flag. The zero value is not usable; call [NewGate].
type Gate struct {
	mu       sync.Mutex
	speaking bool
	idle     chan struct{}
	subs     map[int]func(bool)
	nextSub  int
}

// NewGate returns an idle gate.
func NewGate() *Gate {
	idle := make(chan struct{})
	close(idle)
	return &Gate{idle: idle, subs: make(map[int]func(bool))}
}

// TryAcquire marks the gate speaking and reports true, or reports false
// without blocking if it already is.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	if g.speaking {
		g.mu.Unlock()
		return false
	}
	g.speaking = true
	g.idle = make(chan struct{})
	subs := g.snapshotLocked()
	g.mu.Unlock()

	notify(subs, true)
	return true
}

// Release marks the gate idle. Releasing an idle gate is a no-op.
func (g *Gate) Release() {
	g.mu.Lock()
	if !g.speaking {
		g.mu.Unlock()
		return
	}
	g.speaking = false
	close(g.idle)
	subs := g.snapshotLocked()
	g.mu.Unlock()

	notify(subs, false)
}

// Speaking reports whether a narration currently holds the gate.
func (g *Gate) Speaking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speaking
}

// Idle returns a channel that is closed once the gate is not speaking. The
// channel is already closed when the gate is idle.
func (g *Gate) Idle() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idle
}

// Subscribe registers fn to be told about every speaking transition. fn runs
// on the goroutine that acquired or released the gate and must not call back
// into the gate. The returned func unregisters fn.
func (g *Gate) Subscribe(fn func(speaking bool)) (cancel func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

func (g *Gate) snapshotLocked() []func(bool) {
	if len(g.subs) == 0 {
		return nil
	}
	out := make([]func(bool), 0, len(g.subs))
	for _, fn := range g.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(bool), speaking bool) {
	for _, fn := range subs {
		fn(speaking)
	}
}
