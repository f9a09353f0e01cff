// Command dinoenglish runs the dino English game in a terminal, with narration
// played on the local speakers and an optional side server for health probes
// and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/dinoenglish/internal/app"
	"github.com/MrWong99/dinoenglish/internal/config"
	"github.com/MrWong99/dinoenglish/internal/narration"
	"github.com/MrWong99/dinoenglish/internal/observe"
	"github.com/MrWong99/dinoenglish/internal/progress"
	"github.com/MrWong99/dinoenglish/internal/tui"
	"github.com/MrWong99/dinoenglish/pkg/audio"
	otoaudio "github.com/MrWong99/dinoenglish/pkg/audio/oto"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts/coqui"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts/gemini"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts/piper"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload log level and game settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	fileLoaded := err == nil
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dinoenglish: %v\n", err)
			return 1
		}
		cfg = config.Default()
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, logLevel, cfg.Server.LogFormat))

	if !fileLoaded {
		slog.Info("config file not found, using defaults", "config", *configPath)
	}
	slog.Info("dinoenglish starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "dinoenglish",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	deps, err := buildDeps(cfg, reg)
	if err != nil {
		slog.Error("failed to build dependencies", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(os.Stdout, cfg, deps)

	term := tui.New(os.Stdin, os.Stdout)
	application, err := app.New(ctx, cfg, deps, app.WithConfirmer(term))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch && fileLoaded {
		w, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
			applyReload(application, logLevel, config.Diff(old, next))
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	runErr := application.Run(ctx, term)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyReload pushes the hot-reloadable parts of a config change into the
// running process.
func applyReload(a *app.App, logLevel *slog.LevelVar, d config.ConfigDiff) {
	if d.LogLevelChanged {
		logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GameChanged {
		a.SetGameConfig(d.NewGame)
	}
	if d.RestartRequired {
		slog.Warn("config change needs a restart to take effect")
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in factories into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if v, ok := entry.Options["instruction"].(string); ok {
			opts = append(opts, gemini.WithInstruction(v))
		}
		if v := config.OptString(entry.Options, "system_instruction"); v != "" {
			opts = append(opts, gemini.WithSystemInstruction(v))
		}
		return gemini.New(ctx, entry.ResolveAPIKey(), opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if v := config.OptString(entry.Options, "output_format"); v != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(v))
		}
		return elevenlabs.New(entry.ResolveAPIKey(), opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if v := config.OptString(entry.Options, "language"); v != "" {
			opts = append(opts, coqui.WithLanguage(v))
		}
		if v := config.OptString(entry.Options, "api_mode"); v != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(v)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if v := config.OptString(entry.Options, "binary"); v != "" {
			opts = append(opts, piper.WithBinary(v))
		}
		if v := config.OptString(entry.Options, "speaker"); v != "" {
			opts = append(opts, piper.WithDefaultSpeaker(v))
		}
		if v, ok := entry.Options["sample_rate"].(int); ok {
			opts = append(opts, piper.WithSampleRate(v))
		}
		return piper.New(entry.Model, opts...)
	})

	// ── Storage ───────────────────────────────────────────────────────────────

	reg.RegisterStorage(config.StorageMemory, func(config.StorageConfig) (progress.Storage, error) {
		return progress.NewMemoryStorage(), nil
	})
	reg.RegisterStorage(config.StorageFile, func(sc config.StorageConfig) (progress.Storage, error) {
		return progress.NewFileStorage(sc.Path)
	})
	reg.RegisterStorage(config.StorageSQLite, func(sc config.StorageConfig) (progress.Storage, error) {
		return progress.NewSQLiteStorage(sc.Path)
	})
	reg.RegisterStorage(config.StoragePostgres, func(sc config.StorageConfig) (progress.Storage, error) {
		pool, err := progress.OpenPostgres(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s := progress.NewPostgresStorage(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("oto", func(ac config.AudioConfig) (audio.Platform, error) {
		var opts []otoaudio.Option
		if ac.BufferSize > 0 {
			opts = append(opts, otoaudio.WithBufferSize(ac.BufferSize))
		}
		return otoaudio.New(opts...), nil
	})
	reg.RegisterAudio("none", func(config.AudioConfig) (audio.Platform, error) {
		return nil, nil
	})

	slog.Debug("registered providers", "tts", reg.Names())
}

// buildDeps instantiates everything named in cfg using the registry. A remote
// voice whose credential is missing is skipped with a hint for the grown-up;
// the game then narrates with the on-device voice.
func buildDeps(cfg *config.Config, reg *config.Registry) (app.Deps, error) {
	var deps app.Deps

	if entry := cfg.Providers.TTS; entry.Name != "" {
		if v := entry.APIKeyVar(); v != "" {
			deps.Bridge = &narration.EnvBridge{Var: v}
		}
		if entry.APIKeyVar() != "" && entry.ResolveAPIKey() == "" {
			slog.Warn("remote voice has no credential, skipping", "name", entry.Name, "env", entry.APIKeyVar())
			_ = deps.Bridge.PromptForCredential(context.Background())
		} else {
			p, err := reg.CreateTTS(entry)
			if err != nil {
				return deps, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
			}
			deps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.Fallback; entry.Name != "" {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			// The game still runs without the on-device voice.
			slog.Warn("on-device voice unavailable", "name", entry.Name, "err", err)
		} else {
			deps.Fallback = p
			slog.Info("provider created", "kind", "fallback", "name", entry.Name)
		}
	}

	s, err := reg.CreateStorage(cfg.Storage)
	if err != nil {
		return deps, fmt.Errorf("create storage %q: %w", cfg.Storage.Backend, err)
	}
	deps.Storage = s

	p, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return deps, fmt.Errorf("create audio %q: %w", cfg.Audio.Backend, err)
	}
	deps.Audio = p

	return deps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, deps app.Deps) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║      Dino English — startup summary   ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "Voice", providerLabel(cfg.Providers.TTS, deps.TTS != nil))
	printProvider(w, "Fallback", providerLabel(cfg.Providers.Fallback, deps.Fallback != nil))
	printProvider(w, "Storage", string(cfg.Storage.Backend))
	printProvider(w, "Audio", cfg.Audio.Backend)
	printProvider(w, "Goal", fmt.Sprintf("%d x %d pts", cfg.Game.Goal, cfg.Game.Points))
	if cfg.Server.ListenAddr != "" {
		printProvider(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry, created bool) string {
	switch {
	case e.Name == "":
		return ""
	case !created:
		return e.Name + " (off)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func printProvider(w io.Writer, kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level slog.Leveler, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
