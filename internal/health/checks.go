package health

import (
	"context"
	"errors"
	"fmt"
)

// Pinger is implemented by storage backends that can probe their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker checks the progress storage. Backends without a Ping method
// (memory, file) always pass.
func StorageChecker(storage any) Checker {
	return Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			p, ok := storage.(Pinger)
			if !ok {
				return nil
			}
			return p.Ping(ctx)
		},
	}
}

// AudioChecker reports whether an audio output device is usable. It is
// optional: the game stays playable when silent.
func AudioChecker(available func() bool) Checker {
	return Checker{
		Name:     "audio",
		Optional: true,
		Check: func(context.Context) error {
			if !available() {
				return errors.New("no audio output device")
			}
			return nil
		},
	}
}

// NarrationChecker reports the remote voice circuit breaker. An open breaker
// means narration runs on the on-device voice. Optional.
func NarrationChecker(state func() string) Checker {
	return Checker{
		Name:     "narration",
		Optional: true,
		Check: func(context.Context) error {
			if s := state(); s == "open" {
				return fmt.Errorf("remote voice circuit %s", s)
			}
			return nil
		},
	}
}
