package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/dinoenglish/internal/observe"
)

// Option configures a [Store].
type Option func(*Store)

// WithConfirmer sets who is asked before [Store.Reset] wipes progress. Without
// one Reset never wipes anything.
func WithConfirmer(c Confirmer) Option {
	return func(s *Store) { s.confirmer = c }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store is the process-wide progress state. All methods are safe for
// concurrent use.
type Store struct {
	confirmer Confirmer
	metrics   *observe.Metrics
	p         *persister

	mu    sync.Mutex
	state State
}

// Load reads the progress record from storage and repairs it. A missing,
// unreadable or malformed record yields [DefaultState]; the failure is logged.
func Load(ctx context.Context, storage Storage) State {
	data, err := storage.Load(ctx, StorageKey)
	if errors.Is(err, ErrNotFound) {
		return DefaultState()
	}
	if err != nil {
		slog.Warn("progress load failed, starting fresh", "backend", backendName(storage), "err", err)
		return DefaultState()
	}
	st, err := decodeState(data)
	if err != nil {
		slog.Warn("progress record malformed, starting fresh", "backend", backendName(storage), "err", err)
		return DefaultState()
	}
	return st
}

// NewStore loads the saved progress from storage and starts the background
// writer. Call [Store.Close] on shutdown.
func NewStore(ctx context.Context, storage Storage, opts ...Option) *Store {
	s := &Store{state: Load(ctx, storage)}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.p = newPersister(storage, StorageKey, s.metrics)
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// mutate applies fn under the lock and schedules a write when fn reports a
// change.
func (s *Store) mutate(fn func(st *State) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn(&s.state) {
		return
	}
	data, err := json.Marshal(s.state)
	if err != nil {
		slog.Warn("progress marshal failed", "err", err)
		return
	}
	// Enqueue under s.mu so the persister sees snapshots in mutation order.
	s.p.enqueue(writeOp{data: data})
}

// AddScore adds points to the score. Negative points are ignored.
func (s *Store) AddScore(points int) {
	if points < 0 {
		slog.Warn("negative score ignored", "points", points)
		return
	}
	s.mutate(func(st *State) bool {
		st.Score += points
		return points != 0
	})
}

// UnlockLevel adds id to the unlocked levels and reports whether it was newly
// unlocked. Ids below 1 are ignored.
func (s *Store) UnlockLevel(id int) bool {
	if id < 1 {
		return false
	}
	var added bool
	s.mutate(func(st *State) bool {
		i, found := slices.BinarySearch(st.UnlockedLevels, id)
		if found {
			return false
		}
		st.UnlockedLevels = slices.Insert(st.UnlockedLevels, i, id)
		added = true
		return true
	})
	if added {
		s.metrics.LevelUnlocks.Add(context.Background(), 1)
	}
	return added
}

// UnlockAll sets the unlocked levels to 1..total. It exists for testing and
// demos and is not reachable through play.
func (s *Store) UnlockAll(total int) {
	if total < 1 {
		return
	}
	s.mutate(func(st *State) bool {
		all := make([]int, total)
		for i := range all {
			all[i] = i + 1
		}
		st.UnlockedLevels = all
		return true
	})
}

// UnlockCosmetic adds an avatar to the unlocked set.
func (s *Store) UnlockCosmetic(id string) {
	if id == "" {
		return
	}
	s.mutate(func(st *State) bool {
		if slices.Contains(st.UnlockedAvatars, id) {
			return false
		}
		st.UnlockedAvatars = append(st.UnlockedAvatars, id)
		return true
	})
}

// SelectCosmetic makes an unlocked avatar current. It reports false and
// changes nothing if the avatar is locked.
func (s *Store) SelectCosmetic(id string) bool {
	ok := false
	s.mutate(func(st *State) bool {
		if !slices.Contains(st.UnlockedAvatars, id) {
			return false
		}
		ok = true
		if st.CurrentAvatar == id {
			return false
		}
		st.CurrentAvatar = id
		return true
	})
	return ok
}

// SetLevel records the level the child last played.
func (s *Store) SetLevel(id int) {
	if id < 1 {
		return
	}
	s.mutate(func(st *State) bool {
		if st.Level == id {
			return false
		}
		st.Level = id
		return true
	})
}

// IsUnlocked reports whether level id is unlocked.
func (s *Store) IsUnlocked(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := slices.BinarySearch(s.state.UnlockedLevels, id)
	return found
}

// CurrentLevel is the highest unlocked level; the map highlights it.
func (s *Store) CurrentLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.UnlockedLevels) == 0 {
		return 1
	}
	return s.state.UnlockedLevels[len(s.state.UnlockedLevels)-1]
}

// NextLevel returns the level unlocked by finishing id, or 0 after the last
// level.
func (s *Store) NextLevel(id int) int {
	if id < 1 || id >= TotalLevels {
		return 0
	}
	return id + 1
}

// Reset asks the confirmer and, on yes, restores defaults and erases the
// stored record. It reports whether the caller should navigate to the home
// screen. Resetting twice is the same as resetting once.
func (s *Store) Reset(ctx context.Context) bool {
	if s.confirmer == nil || !s.confirmer.Confirm(ctx, ResetPrompt) {
		return false
	}
	s.mu.Lock()
	s.state = DefaultState()
	s.p.enqueue(writeOp{})
	s.mu.Unlock()

	slog.Info("progress reset")
	return true
}

// Flush waits until all writes scheduled so far have completed.
func (s *Store) Flush(ctx context.Context) error {
	return s.p.flush(ctx)
}

// Close flushes pending writes and stops the background writer. Mutations
// after Close still change the in-memory state but are not persisted.
func (s *Store) Close(ctx context.Context) error {
	return s.p.close(ctx)
}
