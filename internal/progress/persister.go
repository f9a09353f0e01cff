package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/dinoenglish/internal/observe"
)

// writeTimeout bounds one storage call made by the persister.
const writeTimeout = 5 * time.Second

// errPersisterClosed is returned by flush after close.
var errPersisterClosed = errors.New("progress: store closed")

// writeOp is the latest pending write. A nil data slice means delete.
type writeOp struct {
	data []byte
}

// persister writes the latest progress snapshot on one background goroutine.
// Writes are coalesced: if several mutations happen while a write is in
// flight, only the newest snapshot is written next.
type persister struct {
	storage Storage
	key     string
	backend string
	metrics *observe.Metrics

	mu       sync.Mutex
	pending  *writeOp
	queued   uint64 // sequence number of the newest enqueued op
	written  uint64 // sequence number of the newest completed op
	progress chan struct{}
	closed   bool

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
}

func newPersister(storage Storage, key string, m *observe.Metrics) *persister {
	p := &persister{
		storage:  storage,
		key:      key,
		backend:  backendName(storage),
		metrics:  m,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go p.loop()
	return p
}

// enqueue replaces any pending write with op.
func (p *persister) enqueue(op writeOp) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		slog.Debug("progress write after close dropped", "key", p.key)
		return
	}
	p.pending = &op
	p.queued++
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) loop() {
	defer close(p.stopped)
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-p.quit:
			p.drain()
			return
		}
	}
}

// drain writes pending ops until none is left.
func (p *persister) drain() {
	for {
		p.mu.Lock()
		op, seq := p.pending, p.queued
		p.pending = nil
		p.mu.Unlock()
		if op == nil {
			return
		}

		p.write(*op)

		p.mu.Lock()
		p.written = seq
		close(p.progress)
		p.progress = make(chan struct{})
		p.mu.Unlock()
	}
}

func (p *persister) write(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if op.data == nil {
		err = p.storage.Delete(ctx, p.key)
	} else {
		err = p.storage.Save(ctx, p.key, op.data)
	}
	if err != nil {
		slog.Warn("progress write failed, keeping in-memory state", "key", p.key, "backend", p.backend, "err", err)
		p.metrics.RecordPersistence(ctx, p.backend, "error")
		return
	}
	p.metrics.RecordPersistence(ctx, p.backend, "ok")
}

// flush waits until every op enqueued before the call has been written.
func (p *persister) flush(ctx context.Context) error {
	p.mu.Lock()
	target := p.queued
	p.mu.Unlock()

	for {
		p.mu.Lock()
		if p.written >= target {
			p.mu.Unlock()
			return nil
		}
		ch := p.progress
		p.mu.Unlock()

		select {
		case <-ch:
		case <-p.stopped:
			p.mu.Lock()
			done := p.written >= target
			p.mu.Unlock()
			if done {
				return nil
			}
			return errPersisterClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close writes what is pending and stops the goroutine.
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.quit)
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
