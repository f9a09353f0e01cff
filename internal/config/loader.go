package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":      {"gemini", "elevenlabs", "coqui", "piper"},
	"fallback": {"piper", "coqui"},
}

// APIKeyEnv maps provider names to the environment variables consulted when
// the config file carries no api_key. The first variable that is set wins.
var APIKeyEnv = map[string][]string{
	"gemini":     {"GEMINI_API_KEY", "API_KEY"},
	"elevenlabs": {"ELEVENLABS_API_KEY"},
}

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

// Defaults applied by [ApplyDefaults].
const (
	DefaultStoragePath      = "dinoenglish-data"
	DefaultNarrationTimeout = 5 * time.Second
	DefaultFallbackTimeout  = 15 * time.Second
	DefaultMaxFailures      = 3
	DefaultResetTimeout     = 30 * time.Second
	DefaultGoal             = 5
	DefaultPoints           = 10
	DefaultPromptDelay      = 700 * time.Millisecond
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero field of cfg that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFile
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case StorageFile:
			cfg.Storage.Path = DefaultStoragePath
		case StorageSQLite:
			cfg.Storage.Path = DefaultStoragePath + ".db"
		}
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = "oto"
	}
	if cfg.Narration.Timeout == 0 {
		cfg.Narration.Timeout = DefaultNarrationTimeout
	}
	if cfg.Narration.FallbackTimeout == 0 {
		cfg.Narration.FallbackTimeout = DefaultFallbackTimeout
	}
	if cfg.Narration.Breaker.MaxFailures == 0 {
		cfg.Narration.Breaker.MaxFailures = DefaultMaxFailures
	}
	if cfg.Narration.Breaker.ResetTimeout == 0 {
		cfg.Narration.Breaker.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Narration.Breaker.HalfOpenMax == 0 {
		cfg.Narration.Breaker.HalfOpenMax = 1
	}
	if cfg.Game.Goal == 0 {
		cfg.Game.Goal = DefaultGoal
	}
	if cfg.Game.Points == 0 {
		cfg.Game.Points = DefaultPoints
	}
	if cfg.Game.PromptDelay == 0 {
		cfg.Game.PromptDelay = DefaultPromptDelay
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Providers
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("fallback", cfg.Providers.Fallback.Name)
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is empty; narration will use the on-device voice only")
	}
	if cfg.Providers.Fallback.Name == "piper" && cfg.Providers.Fallback.Model == "" {
		errs = append(errs, errors.New("providers.fallback.model is required for piper"))
	}
	if cfg.Providers.TTS.Name == "piper" && cfg.Providers.TTS.Model == "" {
		errs = append(errs, errors.New("providers.tts.model is required for piper"))
	}
	if cfg.Providers.TTS.Name == "coqui" && cfg.Providers.TTS.BaseURL == "" {
		errs = append(errs, errors.New("providers.tts.base_url is required for coqui"))
	}

	// Narration
	if cfg.Narration.FallbackTimeout < 0 {
		errs = append(errs, fmt.Errorf("narration.fallback_timeout %s must not be negative", cfg.Narration.FallbackTimeout))
	}
	if cfg.Narration.Timeout < 0 {
		errs = append(errs, fmt.Errorf("narration.timeout %s must not be negative", cfg.Narration.Timeout))
	}
	b := cfg.Narration.Breaker
	if b.MaxFailures < 0 || b.HalfOpenMax < 0 || b.ResetTimeout < 0 {
		errs = append(errs, errors.New("narration.breaker values must not be negative"))
	}

	// Storage
	switch {
	case !cfg.Storage.Backend.IsValid():
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, sqlite, postgres", cfg.Storage.Backend))
	case cfg.Storage.Backend == StoragePostgres && cfg.Storage.PostgresDSN == "":
		errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
	case (cfg.Storage.Backend == StorageFile || cfg.Storage.Backend == StorageSQLite) && cfg.Storage.Path == "":
		errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StorageMemory {
		slog.Warn("storage.backend is memory; progress is lost on exit")
	}

	// Audio
	if a := cfg.Audio.Backend; a != "" && a != "oto" && a != "none" {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: oto, none", a))
	}
	if cfg.Audio.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_size %s must not be negative", cfg.Audio.BufferSize))
	}

	// Game
	if cfg.Game.Goal < 0 {
		errs = append(errs, fmt.Errorf("game.goal %d must not be negative", cfg.Game.Goal))
	}
	if cfg.Game.Points < 0 {
		errs = append(errs, fmt.Errorf("game.points %d must not be negative", cfg.Game.Points))
	}
	if cfg.Game.PromptDelay < 0 {
		errs = append(errs, fmt.Errorf("game.prompt_delay %s must not be negative", cfg.Game.PromptDelay))
	}

	return errors.Join(errs...)
}

// ResolveAPIKey returns e.APIKey, or the first set environment variable
// listed for e.Name in [APIKeyEnv].
func (e ProviderEntry) ResolveAPIKey() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	for _, name := range APIKeyEnv[e.Name] {
		if v, ok := lookupEnv(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// APIKeyVar returns the primary environment variable for e's API key, or ""
// for providers that need none.
func (e ProviderEntry) APIKeyVar() string {
	if vars := APIKeyEnv[e.Name]; len(vars) > 0 {
		return vars[0]
	}
	return ""
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
