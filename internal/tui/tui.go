// Package tui is the terminal front-end of the game. It renders the home
// screen, the level map and the mini-game screens as plain text and reads
// commands line by line, so a grown-up can drive the game from a keyboard
// while the child listens to the narration.
//
// A [Terminal] also implements progress.Confirmer: the reset question is
// asked on the same terminal.
package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/dinoenglish/internal/app"
	"github.com/MrWong99/dinoenglish/internal/game"
	"github.com/MrWong99/dinoenglish/internal/progress"
)

// DefaultChoices is how many answer options a game screen shows.
const DefaultChoices = 4

var (
	// errQuit is returned by a screen when the player asked to leave the game.
	errQuit = errors.New("tui: quit")

	// errBack leaves a game screen for the map.
	errBack = errors.New("tui: back")
)

// Terminal reads commands from in and writes screens to out.
type Terminal struct {
	in      io.Reader
	out     io.Writer
	choices int

	startOnce sync.Once
	lines     chan string
}

var (
	_ app.UI             = (*Terminal)(nil)
	_ progress.Confirmer = (*Terminal)(nil)
)

// Option configures a [Terminal].
type Option func(*Terminal)

// WithChoices sets the number of answer options per prompt.
func WithChoices(n int) Option {
	return func(t *Terminal) {
		if n > 0 {
			t.choices = n
		}
	}
}

// New returns a terminal on in and out.
func New(in io.Reader, out io.Writer, opts ...Option) *Terminal {
	t := &Terminal{in: in, out: out, choices: DefaultChoices}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ─── Input ───────────────────────────────────────────────────────────────────

// readLine returns the next trimmed input line. It returns io.EOF when input
// ends and ctx.Err() when ctx is done first.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	t.startOnce.Do(func() {
		t.lines = make(chan string)
		go func() {
			defer close(t.lines)
			sc := bufio.NewScanner(t.in)
			for sc.Scan() {
				t.lines <- sc.Text()
			}
			if err := sc.Err(); err != nil {
				slog.Warn("terminal input error", "err", err)
			}
		}()
	})
	select {
	case line, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

// Confirm asks prompt and reports whether the answer is yes ("y", "yes" or the
// Vietnamese "có"). Anything else, end of input or a done ctx means no.
func (t *Terminal) Confirm(ctx context.Context, prompt string) bool {
	t.printf("%s [y/N] ", prompt)
	line, err := t.readLine(ctx)
	if err != nil {
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes", "c", "co", "có":
		return true
	}
	return false
}

// ─── Home ────────────────────────────────────────────────────────────────────

// Run implements app.UI. It shows the home screen and loops over commands
// until the player quits, input ends or ctx is done.
func (t *Terminal) Run(ctx context.Context, a *app.App) error {
	t.home(a.Store())
	for {
		t.printf("> ")
		line, err := t.readLine(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := t.command(ctx, a, line); err != nil {
			if errors.Is(err, errQuit) {
				t.printf("Bye bye!\n")
				return nil
			}
			return err
		}
	}
}

func (t *Terminal) command(ctx context.Context, a *app.App, line string) error {
	store := a.Store()
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		return nil
	case "q", "quit", "exit":
		return errQuit
	case "h", "home":
		t.home(store)
	case "m", "map":
		t.levelMap(store)
	case "p", "play":
		id := store.CurrentLevel()
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil {
				t.printf("Unknown level %q.\n", arg)
				return nil
			}
			id = n
		}
		return t.play(ctx, a, id)
	case "avatars":
		t.avatars(store)
	case "wear":
		if store.SelectCosmetic(arg) {
			t.printf("Now wearing %s.\n", arg)
		} else {
			t.printf("%q is not unlocked yet.\n", arg)
		}
	case "reset":
		if store.Reset(ctx) {
			t.home(store)
		}
	case "unlock-all":
		store.UnlockAll(progress.TotalLevels)
		t.printf("All %d levels unlocked.\n", progress.TotalLevels)
	case "?", "help":
		t.help()
	default:
		if n, err := strconv.Atoi(cmd); err == nil {
			return t.play(ctx, a, n)
		}
		t.printf("Unknown command %q. Type help.\n", cmd)
	}
	return nil
}

func (t *Terminal) home(store *progress.Store) {
	st := store.Snapshot()
	t.printf("\n  DINO ENGLISH\n")
	t.printf("  Score: %d   Level: %d   Avatar: %s\n", st.Score, st.Level, st.CurrentAvatar)
	t.printf("  Type map to see the levels, play to start, help for more.\n\n")
}

func (t *Terminal) help() {
	t.printf(`Commands:
  map            show all levels
  play [N]       play level N (default: the newest unlocked level)
  N              same as play N
  avatars        list unlocked avatars
  wear ID        wear an unlocked avatar
  reset          erase all progress (asks first)
  unlock-all     open every level
  home           back to the home screen
  quit           leave the game
In a game: type the word or its number, r to hear it again, q to go back.
`)
}

// levelMap lists every level with its lock state. The current level is
// marked with an arrow.
func (t *Terminal) levelMap(store *progress.Store) {
	current := store.CurrentLevel()
	for _, l := range game.Levels() {
		mark := "  "
		switch {
		case l.ID == current:
			mark = "->"
		case !store.IsUnlocked(l.ID):
			mark = " x"
		}
		t.printf("%s %2d  %-14s %s\n", mark, l.ID, l.Title, l.Theme)
	}
}

func (t *Terminal) avatars(store *progress.Store) {
	st := store.Snapshot()
	for _, id := range st.UnlockedAvatars {
		mark := " "
		if id == st.CurrentAvatar {
			mark = "*"
		}
		t.printf("%s %s\n", mark, id)
	}
}

// ─── Game ────────────────────────────────────────────────────────────────────

// play runs one round of level id. It returns nil when the round is won or
// the player goes back to the map, and errQuit on quit.
func (t *Terminal) play(ctx context.Context, a *app.App, id int) error {
	level, ok := game.Lookup(id)
	if !ok {
		t.printf("There is no level %d.\n", id)
		return nil
	}
	if !a.Store().IsUnlocked(id) {
		t.printf("Level %d is locked. Finish level %d first.\n", id, id-1)
		return nil
	}

	screen := a.OpenScreen(level)
	defer screen.Close()
	unlockAudio(screen)
	round := a.NewRound(screen)

	t.printf("\n== Level %d: %s ==\n", level.ID, level.Title)
	for {
		if _, err := round.Next(ctx); err != nil {
			if errors.Is(err, game.ErrNoWords) {
				t.printf("This level has no words yet.\n")
				return nil
			}
			return err
		}
		done, err := t.ask(ctx, screen, round)
		if errors.Is(err, errBack) {
			t.printf("Back to the map.\n")
			return nil
		}
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	// Let the victory line finish before the screen closes.
	select {
	case <-screen.Narrator().Gate().Idle():
	case <-ctx.Done():
		return ctx.Err()
	}
	if next := a.Store().NextLevel(id); next != 0 {
		t.printf("Level complete! Level %d is open.\n", next)
	} else {
		t.printf("You finished every level!\n")
	}
	t.printf("Score: %d\n", a.Store().Snapshot().Score)
	return nil
}

// ask shows the options for the current target and reads answers until one
// is correct. It reports whether the round is complete.
func (t *Terminal) ask(ctx context.Context, screen *game.Screen, round *game.Round) (completed bool, err error) {
	opts := round.Choices(t.choices)
	correct, goal := round.Progress()
	t.printf("[%d/%d] ", correct, goal)
	for i, w := range opts {
		t.printf("%d) %s  ", i+1, w)
	}
	t.printf("\n")

	for {
		t.printf("? ")
		line, err := t.readLine(ctx)
		if errors.Is(err, io.EOF) {
			return false, errQuit
		}
		if err != nil {
			return false, err
		}

		if line == "" {
			continue
		}
		unlockAudio(screen)

		switch strings.ToLower(line) {
		case "r", "repeat":
			round.Repeat(ctx)
			continue
		case "q", "back":
			return false, errBack
		}

		choice := line
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(opts) {
			choice = opts[n-1]
		}
		ok, done := round.Answer(ctx, choice)
		if !ok {
			if !slices.ContainsFunc(opts, func(w string) bool { return strings.EqualFold(w, choice) }) {
				t.printf("Pick one of the options.\n")
			} else {
				t.printf("Not quite, try again!\n")
			}
			continue
		}
		t.printf("Great job!\n")
		return done, nil
	}
}

// unlockAudio opens the screen's output device and resumes it if the host
// suspended it. Typed input is the user gesture that allows playback.
func unlockAudio(screen *game.Screen) {
	s := screen.Session()
	if _, err := s.EnsureOpen(); err != nil {
		return
	}
	s.Resume()
}
