package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; providers,
// storage and audio need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GameChanged is true if goal, points or prompt delay changed. New
	// rounds pick the values up; a round in progress keeps its own.
	GameChanged bool
	NewGame     GameConfig

	// RestartRequired is true if a field outside the hot-reloadable set
	// changed.
	RestartRequired bool
}

// Changed reports whether d carries anything to apply.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.GameChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Game != new.Game {
		d.GameChanged = true
		d.NewGame = new.Game
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.LogFormat != new.Server.LogFormat ||
		!sameProvider(old.Providers.TTS, new.Providers.TTS) ||
		!sameProvider(old.Providers.Fallback, new.Providers.Fallback) ||
		old.Narration != new.Narration ||
		old.Storage != new.Storage ||
		old.Audio != new.Audio {
		d.RestartRequired = true
	}

	return d
}

// sameProvider compares two entries field by field. Options are compared by
// key set and string form only.
func sameProvider(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
