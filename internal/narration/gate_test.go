package narration

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGate_SingleFlight(t *testing.T) {
	g := NewGate()
	if g.Speaking() {
		t.Fatal("new gate is speaking")
	}
	if !g.TryAcquire() {
		t.Fatal("first acquire failed")
	}
	if g.TryAcquire() {
		t.Fatal("second acquire succeeded while speaking")
	}
	g.Release()
	if g.Speaking() {
		t.Fatal("still speaking after release")
	}
	if !g.TryAcquire() {
		t.Fatal("acquire after release failed")
	}
}

func TestGate_ReleaseWhileIdleIsNoop(t *testing.T) {
	g := NewGate()
	var events []bool
	g.Subscribe(func(s bool) { events = append(events, s) })

	g.Release()
	g.Release()
	if len(events) != 0 {
		t.Errorf("events = %v, want none", events)
	}
	if !g.TryAcquire() {
		t.Fatal("acquire failed after idle releases")
	}
}

func TestGate_ConcurrentAcquireHasOneWinner(t *testing.T) {
	g := NewGate()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Errorf("winners = %d, want 1", got)
	}
}

func TestGate_Idle(t *testing.T) {
	g := NewGate()
	select {
	case <-g.Idle():
	default:
		t.Fatal("idle channel of a fresh gate is open")
	}

	g.TryAcquire()
	idle := g.Idle()
	select {
	case <-idle:
		t.Fatal("idle channel closed while speaking")
	default:
	}
	g.Release()
	select {
	case <-idle:
	default:
		t.Fatal("idle channel not closed after release")
	}
}

func TestGate_Subscribe(t *testing.T) {
	g := NewGate()
	var mu sync.Mutex
	var events []bool
	cancel := g.Subscribe(func(s bool) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	})

	g.TryAcquire()
	g.TryAcquire()
	g.Release()
	cancel()
	g.TryAcquire()

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != true || events[1] != false {
		t.Errorf("events = %v, want [true false]", events)
	}
}
