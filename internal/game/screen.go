package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/dinoenglish/internal/narration"
	"github.com/MrWong99/dinoenglish/internal/observe"
	"github.com/MrWong99/dinoenglish/pkg/audio"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

// ScreenConfig holds the collaborators shared by every screen. The zero value
// yields a silent screen whose narrator can only suppress or drop.
type ScreenConfig struct {
	// Platform opens the output device. Nil means no audio device.
	Platform audio.Platform

	// Provider is the remote narration service, usually wrapped in a circuit
	// breaker. Nil disables remote narration.
	Provider tts.Provider

	// ProviderName labels metrics and logs.
	ProviderName string

	// Bridge reports whether a service credential is configured.
	Bridge narration.CredentialBridge

	// Fallback is the on-device synthesizer. Nil disables the fallback.
	Fallback tts.Provider

	// Timeout bounds one remote request. Zero uses [narration.DefaultTimeout].
	Timeout time.Duration

	// FallbackTimeout bounds one on-device narration. Zero uses
	// [narration.DefaultFallbackTimeout].
	FallbackTimeout time.Duration

	// Metrics receives playback and narration metrics.
	Metrics *observe.Metrics

	// SessionOptions are appended to the screen's audio session options.
	SessionOptions []audio.SessionOption
}

// Screen is the audio scope of one mini-game.
type Screen struct {
	Level Level

	session  *audio.Session
	narrator *narration.Narrator
}

// NewScreen builds the session, gate and narrator for level.
func NewScreen(level Level, cfg ScreenConfig) *Screen {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	sessOpts := append([]audio.SessionOption{audio.WithPlaybackHook(m.RecordPlayback)}, cfg.SessionOptions...)
	session := audio.NewSession(cfg.Platform, sessOpts...)

	opts := []narration.Option{narration.WithMetrics(m)}
	if cfg.Provider != nil {
		opts = append(opts, narration.WithProvider(cfg.Provider, cfg.ProviderName))
	}
	if cfg.Bridge != nil {
		opts = append(opts, narration.WithBridge(cfg.Bridge))
	}
	if cfg.Fallback != nil {
		opts = append(opts, narration.WithFallback(narration.NewSynthFallback(cfg.Fallback, session)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, narration.WithTimeout(cfg.Timeout))
	}
	if cfg.FallbackTimeout > 0 {
		opts = append(opts, narration.WithFallbackTimeout(cfg.FallbackTimeout))
	}

	slog.Debug("screen opened", "level", level.ID, "route", level.Route)
	return &Screen{
		Level:    level,
		session:  session,
		narrator: narration.New(narration.NewGate(), session, opts...),
	}
}

// Speak narrates text in the level's voice.
func (s *Screen) Speak(ctx context.Context, text string) narration.Outcome {
	voice := s.Level.Voice
	if voice.ID == "" {
		voice = tts.DefaultVoice
	}
	return s.narrator.Speak(ctx, text, voice)
}

// Narrator returns the screen's narrator.
func (s *Screen) Narrator() *narration.Narrator { return s.narrator }

// Session returns the screen's audio session.
func (s *Screen) Session() *audio.Session { return s.session }

// Speaking reports whether narration holds the gate.
func (s *Screen) Speaking() bool { return s.narrator.Gate().Speaking() }

// Close releases the audio device. In-flight playbacks are abandoned.
func (s *Screen) Close() error {
	slog.Debug("screen closed", "level", s.Level.ID)
	return s.session.Close()
}
