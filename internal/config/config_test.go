package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dinoenglish/internal/config"
	"github.com/MrWong99/dinoenglish/internal/progress"
	"github.com/MrWong99/dinoenglish/pkg/audio"
	audiomock "github.com/MrWong99/dinoenglish/pkg/audio/mock"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
	ttsmock "github.com/MrWong99/dinoenglish/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json

providers:
  tts:
    name: gemini
    api_key: gm-test
    model: gemini-2.5-flash-preview-tts
    options:
      instruction: "Say cheerfully"
  fallback:
    name: piper
    model: /opt/piper/en_GB-alba-medium.onnx

narration:
  timeout: 4s
  breaker:
    max_failures: 2
    reset_timeout: 1m

storage:
  backend: sqlite
  path: /var/lib/dino/progress.db

audio:
  backend: oto
  buffer_size: 80ms

game:
  goal: 6
  points: 5
  prompt_delay: 500ms
`

func load(t *testing.T, yaml string) (*config.Config, error) {
	t.Helper()
	return config.LoadFromReader(strings.NewReader(yaml))
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, sampleYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug || cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.TTS.Name != "gemini" || cfg.Providers.TTS.APIKey != "gm-test" {
		t.Errorf("providers.tts = %+v", cfg.Providers.TTS)
	}
	if got := config.OptString(cfg.Providers.TTS.Options, "instruction"); got != "Say cheerfully" {
		t.Errorf("instruction option = %q", got)
	}
	if cfg.Providers.Fallback.Name != "piper" {
		t.Errorf("providers.fallback = %+v", cfg.Providers.Fallback)
	}
	if cfg.Narration.Timeout != 4*time.Second || cfg.Narration.Breaker.MaxFailures != 2 ||
		cfg.Narration.Breaker.ResetTimeout != time.Minute || cfg.Narration.Breaker.HalfOpenMax != 1 {
		t.Errorf("narration = %+v", cfg.Narration)
	}
	if cfg.Storage.Backend != config.StorageSQLite || cfg.Storage.Path != "/var/lib/dino/progress.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Audio.BufferSize != 80*time.Millisecond {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Game != (config.GameConfig{Goal: 6, Points: 5, PromptDelay: 500 * time.Millisecond}) {
		t.Errorf("game = %+v", cfg.Game)
	}
}

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, "")
	if err != nil {
		t.Fatalf("empty config should be valid: %v", err)
	}
	want := config.Default()
	if cfg.Server != want.Server || cfg.Storage != want.Storage || cfg.Game != want.Game || cfg.Narration != want.Narration {
		t.Errorf("empty config = %+v\nwant %+v", cfg, want)
	}
	if cfg.Storage.Backend != config.StorageFile || cfg.Storage.Path != config.DefaultStoragePath {
		t.Errorf("default storage = %+v", cfg.Storage)
	}
	if cfg.Game.Goal != 5 || cfg.Game.Points != 10 || cfg.Game.PromptDelay != 700*time.Millisecond {
		t.Errorf("default game = %+v", cfg.Game)
	}
	if cfg.Narration.Timeout != 5*time.Second {
		t.Errorf("default narration timeout = %s", cfg.Narration.Timeout)
	}
	if cfg.Narration.FallbackTimeout != 15*time.Second {
		t.Errorf("default fallback timeout = %s", cfg.Narration.FallbackTimeout)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := load(t, "server:\n  listen_adr: \":1\"\n")
	if err == nil || !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

func TestLoadFromReader_SQLiteDefaultPath(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, "storage:\n  backend: sqlite\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Path != config.DefaultStoragePath+".db" {
		t.Errorf("path = %q", cfg.Storage.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/dino.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"log format", "server:\n  log_format: xml\n", "server.log_format"},
		{"storage backend", "storage:\n  backend: floppy\n", "storage.backend"},
		{"postgres dsn", "storage:\n  backend: postgres\n", "storage.postgres_dsn"},
		{"piper model", "providers:\n  fallback:\n    name: piper\n", "providers.fallback.model"},
		{"piper as main voice", "providers:\n  tts:\n    name: piper\n", "providers.tts.model"},
		{"coqui url", "providers:\n  tts:\n    name: coqui\n", "providers.tts.base_url"},
		{"audio backend", "audio:\n  backend: alsa\n", "audio.backend"},
		{"negative timeout", "narration:\n  timeout: -1s\n", "narration.timeout"},
		{"negative fallback timeout", "narration:\n  fallback_timeout: -1s\n", "narration.fallback_timeout"},
		{"negative breaker", "narration:\n  breaker:\n    max_failures: -1\n", "narration.breaker"},
		{"negative goal", "game:\n  goal: -2\n", "game.goal"},
		{"negative points", "game:\n  points: -2\n", "game.points"},
		{"negative delay", "game:\n  prompt_delay: -5ms\n", "game.prompt_delay"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, tc.yaml)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	_, err := load(t, "server:\n  log_level: loud\nstorage:\n  backend: floppy\ngame:\n  points: -1\n")
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.log_level", "storage.backend", "game.points"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"tts", "fallback"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("no known names for %s", kind)
		}
	}
}

// ── API keys ──────────────────────────────────────────────────────────────────

func TestResolveAPIKey(t *testing.T) {
	env := map[string]string{"GEMINI_API_KEY": "from-env", "API_KEY": "legacy"}
	restore := config.SetLookupEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	defer restore()

	tests := []struct {
		entry config.ProviderEntry
		want  string
	}{
		{config.ProviderEntry{Name: "gemini", APIKey: "from-file"}, "from-file"},
		{config.ProviderEntry{Name: "gemini"}, "from-env"},
		{config.ProviderEntry{Name: "elevenlabs"}, ""},
		{config.ProviderEntry{Name: "piper"}, ""},
	}
	for _, tc := range tests {
		if got := tc.entry.ResolveAPIKey(); got != tc.want {
			t.Errorf("%s.ResolveAPIKey() = %q, want %q", tc.entry.Name, got, tc.want)
		}
	}

	delete(env, "GEMINI_API_KEY")
	if got := (config.ProviderEntry{Name: "gemini"}).ResolveAPIKey(); got != "legacy" {
		t.Errorf("fallback variable: got %q, want legacy", got)
	}
	if got := (config.ProviderEntry{Name: "elevenlabs"}).APIKeyVar(); got != "ELEVENLABS_API_KEY" {
		t.Errorf("APIKeyVar = %q", got)
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS err = %v", err)
	}
	if _, err := reg.CreateStorage(config.StorageConfig{Backend: config.StorageFile}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateStorage err = %v", err)
	}
	if _, err := reg.CreateAudio(config.AudioConfig{Backend: "oto"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateAudio err = %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	want := &ttsmock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterTTS("gemini", func(e config.ProviderEntry) (tts.Provider, error) {
		gotEntry = e
		return want, nil
	})
	reg.RegisterTTS("piper", func(config.ProviderEntry) (tts.Provider, error) { return nil, nil })
	reg.RegisterStorage(config.StorageMemory, func(config.StorageConfig) (progress.Storage, error) {
		return progress.NewMemoryStorage(), nil
	})
	platform := &audiomock.Platform{}
	reg.RegisterAudio("oto", func(config.AudioConfig) (audio.Platform, error) { return platform, nil })

	p, err := reg.CreateTTS(config.ProviderEntry{Name: "gemini", Model: "m"})
	if err != nil || p != want || gotEntry.Model != "m" {
		t.Errorf("CreateTTS = (%v, %v), entry %+v", p, err, gotEntry)
	}
	s, err := reg.CreateStorage(config.StorageConfig{Backend: config.StorageMemory})
	if err != nil {
		t.Fatalf("CreateStorage: %v", err)
	}
	if err := s.Save(context.Background(), "k", []byte("v")); err != nil {
		t.Errorf("storage unusable: %v", err)
	}
	if a, err := reg.CreateAudio(config.AudioConfig{Backend: "oto"}); err != nil || a != platform {
		t.Errorf("CreateAudio = (%v, %v)", a, err)
	}
	if names := reg.Names(); strings.Join(names, ",") != "gemini,piper" {
		t.Errorf("Names = %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("no api key")
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want factory error", err)
	}
}
