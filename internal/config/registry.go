package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/dinoenglish/internal/progress"
	"github.com/MrWong99/dinoenglish/pkg/audio"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps names to constructor functions for speech providers, storage
// backends and audio platforms. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tts     map[string]func(ProviderEntry) (tts.Provider, error)
	storage map[StorageBackend]func(StorageConfig) (progress.Storage, error)
	audio   map[string]func(AudioConfig) (audio.Platform, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts:     make(map[string]func(ProviderEntry) (tts.Provider, error)),
		storage: make(map[StorageBackend]func(StorageConfig) (progress.Storage, error)),
		audio:   make(map[string]func(AudioConfig) (audio.Platform, error)),
	}
}

// RegisterTTS registers a speech provider factory under name. The same
// factories serve both the remote voice and the on-device fallback.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterStorage registers a progress storage factory for backend.
func (r *Registry) RegisterStorage(backend StorageBackend, factory func(StorageConfig) (progress.Storage, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[backend] = factory
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateTTS instantiates a speech provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateStorage instantiates the storage backend named by cfg.Backend.
func (r *Registry) CreateStorage(cfg StorageConfig) (progress.Storage, error) {
	r.mu.RLock()
	factory, ok := r.storage[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: storage/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreateAudio instantiates the audio platform named by cfg.Backend.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Platform, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// Names returns the registered speech provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tts))
	for n := range r.tts {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// OptString returns the string option key from opts, or "".
func OptString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}
