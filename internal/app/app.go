// Package app wires the dinoenglish subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the progress store, the
// guarded narration voice and the side HTTP server, Run drives the front-end
// and the server together, and Shutdown tears everything down in order.
//
// For testing, inject doubles via [Deps] and the functional options
// (WithConfirmer, WithMetrics, etc.). When a dependency is nil, New falls back
// to a silent or in-memory implementation.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dinoenglish/internal/config"
	"github.com/MrWong99/dinoenglish/internal/game"
	"github.com/MrWong99/dinoenglish/internal/health"
	"github.com/MrWong99/dinoenglish/internal/narration"
	"github.com/MrWong99/dinoenglish/internal/observe"
	"github.com/MrWong99/dinoenglish/internal/progress"
	"github.com/MrWong99/dinoenglish/internal/resilience"
	"github.com/MrWong99/dinoenglish/pkg/audio"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

// serverShutdownTimeout bounds the graceful stop of the side HTTP server.
const serverShutdownTimeout = 5 * time.Second

// Deps holds one value per pluggable dependency. Nil means not configured.
// Populated by main.go via the config registry.
type Deps struct {
	// TTS is the remote narration voice. New wraps it in a circuit breaker.
	TTS tts.Provider

	// Fallback is the on-device voice used when the remote one cannot speak.
	Fallback tts.Provider

	// Audio opens the output device. Nil plays nothing.
	Audio audio.Platform

	// Bridge reports whether the remote voice has a credential.
	Bridge narration.CredentialBridge

	// Storage persists progress. Nil keeps progress in memory only.
	Storage progress.Storage
}

// UI is a front-end driven by [App.Run]. Run returns when the player quits or
// ctx is cancelled.
type UI interface {
	Run(ctx context.Context, a *App) error
}

// UIFunc adapts a function to [UI].
type UIFunc func(ctx context.Context, a *App) error

// Run implements [UI].
func (f UIFunc) Run(ctx context.Context, a *App) error { return f(ctx, a) }

// App owns all subsystem lifetimes.
type App struct {
	cfg  *config.Config
	deps Deps

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics        *observe.Metrics
	confirmer      progress.Confirmer
	store          *progress.Store
	guard          *resilience.GuardedTTS
	probe          *audio.Session
	health         *health.Handler
	handler        http.Handler
	server         *http.Server
	sessionOptions []audio.SessionOption

	gameMu sync.RWMutex
	game   config.GameConfig

	// closers are called in order during Shutdown.
	closers []func(ctx context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithConfirmer sets who is asked before progress is reset. Without one,
// reset requests are refused.
func WithConfirmer(c progress.Confirmer) Option {
	return func(a *App) { a.confirmer = c }
}

// WithMetrics injects the metrics sink instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSessionOptions appends options to every screen's audio session.
func WithSessionOptions(opts ...audio.SessionOption) Option {
	return func(a *App) { a.sessionOptions = append(a.sessionOptions, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The deps struct comes
// from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: loading progress, guarding
// the remote voice, probing the audio output and assembling the side HTTP
// handler. The server itself starts in [App.Run].
func New(ctx context.Context, cfg *config.Config, deps Deps, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	a := &App{
		cfg:  cfg,
		deps: deps,
		game: cfg.Game,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Progress store ────────────────────────────────────────────────
	if err := a.initProgress(ctx); err != nil {
		return nil, fmt.Errorf("app: init progress: %w", err)
	}

	// ── 2. Narration voice ───────────────────────────────────────────────
	a.initNarration()

	// ── 3. Audio probe ───────────────────────────────────────────────────
	a.initAudio()

	// ── 4. Side HTTP server ──────────────────────────────────────────────
	a.initServer()

	slog.Info("app initialised",
		"storage", storageName(a.deps.Storage),
		"tts", cfg.Providers.TTS.Name,
		"fallback", cfg.Providers.Fallback.Name,
		"audio", a.probe.Available(),
	)
	return a, nil
}

// initProgress loads the saved progress and registers the store and storage
// closers.
func (a *App) initProgress(ctx context.Context) error {
	if a.deps.Storage == nil {
		slog.Warn("no progress storage configured; progress is lost on exit")
		a.deps.Storage = progress.NewMemoryStorage()
	}

	var storeOpts []progress.Option
	storeOpts = append(storeOpts, progress.WithMetrics(a.metrics))
	if a.confirmer != nil {
		storeOpts = append(storeOpts, progress.WithConfirmer(a.confirmer))
	}
	a.store = progress.NewStore(ctx, a.deps.Storage, storeOpts...)

	if a.cfg.Game.UnlockAll {
		a.store.UnlockAll(progress.TotalLevels)
	}

	// The store must flush before its storage goes away.
	a.closers = append(a.closers, a.store.Close)
	if c, ok := a.deps.Storage.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}
	return nil
}

// initNarration wraps the remote voice in a circuit breaker whose transitions
// are recorded as metrics.
func (a *App) initNarration() {
	if a.deps.TTS == nil {
		return
	}
	name := a.providerName()
	b := a.cfg.Narration.Breaker
	a.guard = resilience.NewGuardedTTS(a.deps.TTS, resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  b.MaxFailures,
		ResetTimeout: b.ResetTimeout,
		HalfOpenMax:  b.HalfOpenMax,
		OnStateChange: func(breaker string, _, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), breaker, to.String())
		},
	})
}

// initAudio opens a probe session so readiness can report whether the host
// has a usable output device.
func (a *App) initAudio() {
	a.probe = audio.NewSession(a.deps.Audio, a.sessionOptions...)
	if a.deps.Audio != nil {
		_, _ = a.probe.EnsureOpen()
	}
	a.closers = append(a.closers, func(context.Context) error { return a.probe.Close() })
}

// initServer assembles the health and metrics routes. The server is only
// created when a listen address is configured.
func (a *App) initServer() {
	checkers := []health.Checker{
		health.StorageChecker(a.deps.Storage),
		health.AudioChecker(a.probe.Available),
	}
	if a.guard != nil {
		breaker := a.guard.Breaker()
		checkers = append(checkers, health.NarrationChecker(func() string {
			return breaker.State().String()
		}))
	}
	a.health = health.New(checkers...)

	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	a.handler = observe.Middleware(a.metrics)(mux)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		a.server = &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Store returns the progress store.
func (a *App) Store() *progress.Store { return a.store }

// Handler returns the side server's HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Health returns the readiness evaluator.
func (a *App) Health() *health.Handler { return a.health }

// Breaker returns the remote voice circuit breaker, or nil when no remote
// voice is configured.
func (a *App) Breaker() *resilience.CircuitBreaker {
	if a.guard == nil {
		return nil
	}
	return a.guard.Breaker()
}

// GameConfig returns the round settings currently in effect.
func (a *App) GameConfig() config.GameConfig {
	a.gameMu.RLock()
	defer a.gameMu.RUnlock()
	return a.game
}

// SetGameConfig replaces the round settings. Rounds already running keep the
// settings they started with.
func (a *App) SetGameConfig(g config.GameConfig) {
	a.gameMu.Lock()
	a.game = g
	a.gameMu.Unlock()
	if g.UnlockAll {
		a.store.UnlockAll(progress.TotalLevels)
	}
	slog.Info("game settings updated", "goal", g.Goal, "points", g.Points, "prompt_delay", g.PromptDelay)
}

// ─── Screens ─────────────────────────────────────────────────────────────────

// OpenScreen builds the audio session and narrator for level. The caller owns
// the screen and must Close it when navigating away.
func (a *App) OpenScreen(level game.Level) *game.Screen {
	sc := game.ScreenConfig{
		Platform:        a.deps.Audio,
		ProviderName:    a.providerName(),
		Bridge:          a.deps.Bridge,
		Fallback:        a.deps.Fallback,
		Timeout:         a.cfg.Narration.Timeout,
		FallbackTimeout: a.cfg.Narration.FallbackTimeout,
		Metrics:         a.metrics,
		SessionOptions:  a.sessionOptions,
	}
	if a.guard != nil {
		sc.Provider = a.guard
	}
	return game.NewScreen(level, sc)
}

// NewRound starts a round on screen with the current game settings.
func (a *App) NewRound(screen *game.Screen, opts ...game.RoundOption) *game.Round {
	g := a.GameConfig()
	base := []game.RoundOption{
		game.WithGoal(g.Goal),
		game.WithPoints(g.Points),
		game.WithPromptDelay(g.PromptDelay),
		game.WithRoundMetrics(a.metrics),
	}
	return game.NewRound(screen, a.store, append(base, opts...)...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the side HTTP server (if configured) and drives ui until it
// returns or ctx is cancelled. A nil ui blocks until ctx is done.
//
// Run returns the first error from the server or the UI. A UI that returns
// nil (the player quit) stops the server and makes Run return nil.
func (a *App) Run(ctx context.Context, ui UI) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	if a.server != nil {
		srv := a.server
		g.Go(func() error {
			slog.Info("side server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("side server shutdown error", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		if ui == nil {
			<-gctx.Done()
			return nil
		}
		if err := ui.Run(gctx, a); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: ui: %w", err)
		}
		return nil
	})

	slog.Info("app running")
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order: the progress store is
// flushed before its storage is closed. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// providerName labels the remote voice in metrics and logs.
func (a *App) providerName() string {
	if n := a.cfg.Providers.TTS.Name; n != "" {
		return n
	}
	return "tts"
}

// storageName returns the backend label of s.
func storageName(s progress.Storage) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
