// Package progress keeps the child's score, unlocked levels and avatars, and
// persists them under one fixed storage key.
//
// The in-memory [Store] is authoritative. Every mutation is applied
// synchronously and then handed to a background writer; write failures are
// logged and otherwise ignored.
package progress

import (
	"encoding/json"
	"log/slog"
	"slices"
)

const (
	// StorageKey is the key the progress record is stored under.
	StorageKey = "dino_english_progress_v2"

	// TotalLevels is the number of levels on the map.
	TotalLevels = 27

	// DefaultAvatar is unlocked and selected on a fresh start.
	DefaultAvatar = "dino-green"
)

// State is the persisted progress record.
type State struct {
	Score           int      `json:"score"`
	Level           int      `json:"level"`
	UnlockedAvatars []string `json:"unlockedAvatars"`
	CurrentAvatar   string   `json:"currentAvatar"`
	UnlockedLevels  []int    `json:"unlockedLevels"`
}

// DefaultState returns the state of a fresh install.
func DefaultState() State {
	return State{
		Score:           0,
		Level:           1,
		UnlockedAvatars: []string{DefaultAvatar},
		CurrentAvatar:   DefaultAvatar,
		UnlockedLevels:  []int{1},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.UnlockedAvatars = slices.Clone(s.UnlockedAvatars)
	s.UnlockedLevels = slices.Clone(s.UnlockedLevels)
	return s
}

// storedState mirrors State with optional fields so that records written by
// older versions can be told apart from explicit zero values.
type storedState struct {
	Score           *int     `json:"score"`
	Level           *int     `json:"level"`
	UnlockedAvatars []string `json:"unlockedAvatars"`
	CurrentAvatar   *string  `json:"currentAvatar"`
	UnlockedLevels  []int    `json:"unlockedLevels"`
}

// decodeState parses a stored record and repairs fields that are missing or
// out of range. Unknown fields are ignored.
func decodeState(data []byte) (State, error) {
	var raw storedState
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, err
	}

	st := DefaultState()
	if raw.Score != nil && *raw.Score >= 0 {
		st.Score = *raw.Score
	}
	if raw.Level != nil && *raw.Level >= 1 {
		st.Level = *raw.Level
	}
	if raw.UnlockedLevels == nil {
		slog.Info("progress record has no unlocked levels, reseeding", "key", StorageKey)
	} else {
		st.UnlockedLevels = normalizeLevels(raw.UnlockedLevels)
	}
	if len(raw.UnlockedAvatars) > 0 {
		st.UnlockedAvatars = normalizeAvatars(raw.UnlockedAvatars)
	}
	if raw.CurrentAvatar != nil && *raw.CurrentAvatar != "" {
		// A worn avatar counts as unlocked.
		st.CurrentAvatar = *raw.CurrentAvatar
		if !slices.Contains(st.UnlockedAvatars, st.CurrentAvatar) {
			st.UnlockedAvatars = append(st.UnlockedAvatars, st.CurrentAvatar)
		}
	}
	return st, nil
}

// normalizeLevels drops invalid ids, dedupes, sorts and makes sure level 1 is
// present.
func normalizeLevels(in []int) []int {
	out := []int{1}
	for _, id := range in {
		if id >= 1 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizeAvatars(in []string) []string {
	out := []string{DefaultAvatar}
	for _, id := range in {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
