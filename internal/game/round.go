package game

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/dinoenglish/internal/narration"
	"github.com/MrWong99/dinoenglish/internal/observe"
	"github.com/MrWong99/dinoenglish/internal/progress"
)

// Round defaults.
const (
	DefaultGoal        = 5
	DefaultPoints      = 10
	DefaultPromptDelay = 700 * time.Millisecond
)

// Praise and retry lines spoken after an answer.
const (
	praiseLine  = "Great job!"
	victoryLine = "You did it! Well done!"
	retryPrefix = "Try again! "
)

var (
	// ErrRoundComplete is returned by [Round.Next] once the goal was reached.
	ErrRoundComplete = errors.New("game: round complete")

	// ErrNoWords is returned by [Round.Next] for a level with an empty word bank.
	ErrNoWords = errors.New("game: level has no words")
)

// RoundOption configures a [Round].
type RoundOption func(*Round)

// WithGoal sets how many correct answers finish the round.
func WithGoal(n int) RoundOption {
	return func(r *Round) {
		if n > 0 {
			r.goal = n
		}
	}
}

// WithPoints sets the score for one correct answer.
func WithPoints(n int) RoundOption {
	return func(r *Round) {
		if n >= 0 {
			r.points = n
		}
	}
}

// WithPromptDelay sets the pause before a new prompt is narrated.
func WithPromptDelay(d time.Duration) RoundOption {
	return func(r *Round) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithRand sets the random source used to pick targets.
func WithRand(rng *rand.Rand) RoundOption {
	return func(r *Round) { r.rng = rng }
}

// WithRoundMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithRoundMetrics(m *observe.Metrics) RoundOption {
	return func(r *Round) { r.metrics = m }
}

// Round is one play-through of a level: targets are narrated, the child
// answers, and after the goal the next level unlocks. Safe for concurrent
// use.
type Round struct {
	screen  *Screen
	store   *progress.Store
	goal    int
	points  int
	delay   time.Duration
	rng     *rand.Rand
	metrics *observe.Metrics

	mu      sync.Mutex
	target  string
	correct int
	done    bool
}

// NewRound starts a round of screen's level.
func NewRound(screen *Screen, store *progress.Store, opts ...RoundOption) *Round {
	r := &Round{
		screen: screen,
		store:  store,
		goal:   DefaultGoal,
		points: DefaultPoints,
		delay:  DefaultPromptDelay,
	}
	for _, o := range opts {
		o(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	store.SetLevel(screen.Level.ID)
	return r
}

// Level returns the level being played.
func (r *Round) Level() Level { return r.screen.Level }

// Target returns the current target word, or "" before the first Next.
func (r *Round) Target() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

// Progress returns the number of correct answers so far and the goal.
func (r *Round) Progress() (correct, goal int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.correct, r.goal
}

// Completed reports whether the goal has been reached.
func (r *Round) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Next picks a new target, waits the prompt delay and narrates the prompt.
// It returns the target even when ctx ends during the delay; the prompt is
// then not spoken and ctx.Err() is returned.
func (r *Round) Next(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return "", ErrRoundComplete
	}
	words := r.screen.Level.Words
	if len(words) == 0 {
		r.mu.Unlock()
		return "", ErrNoWords
	}
	target := words[r.rng.IntN(len(words))]
	r.target = target
	r.mu.Unlock()

	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return target, ctx.Err()
		}
	}
	r.screen.Speak(ctx, r.screen.Level.PromptFor(target))
	return target, nil
}

// Choices returns up to n distinct words from the level's bank, the current
// target among them, in random order. Before the first Next it returns nil.
func (r *Round) Choices(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target == "" || n <= 0 {
		return nil
	}
	out := []string{r.target}
	for _, i := range r.rng.Perm(len(r.screen.Level.Words)) {
		if len(out) == n {
			break
		}
		if w := r.screen.Level.Words[i]; w != r.target {
			out = append(out, w)
		}
	}
	r.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Repeat narrates the current prompt again, like tapping the speaker button.
func (r *Round) Repeat(ctx context.Context) narration.Outcome {
	target := r.Target()
	if target == "" {
		return narration.Suppressed
	}
	return r.screen.Speak(ctx, r.screen.Level.PromptFor(target))
}

// Answer checks choice against the current target, case-insensitively.
// A correct answer adds points and, on reaching the goal, unlocks the next
// level. A wrong answer narrates a retry prompt. A correct answer consumes the
// target, so call [Round.Next] before answering again. Answers after completion
// are ignored.
func (r *Round) Answer(ctx context.Context, choice string) (correct, completed bool) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return false, true
	}
	target := r.target
	if target == "" || !strings.EqualFold(strings.TrimSpace(choice), target) {
		r.mu.Unlock()
		if target != "" {
			r.screen.Speak(ctx, retryPrefix+r.screen.Level.PromptFor(target))
		}
		return false, false
	}
	r.correct++
	r.target = ""
	r.done = r.correct >= r.goal
	completed = r.done
	r.mu.Unlock()

	level := r.screen.Level.ID
	r.store.AddScore(r.points)
	r.metrics.RecordScore(ctx, level, r.points)

	if !completed {
		r.screen.Speak(ctx, praiseLine)
		return true, false
	}

	if next := r.store.NextLevel(level); next != 0 {
		if r.store.UnlockLevel(next) {
			slog.Info("level unlocked", "level", next, "after", level)
		}
	}
	r.screen.Speak(ctx, victoryLine)
	return true, true
}
