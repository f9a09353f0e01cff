package audio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrSessionClosed is returned by [Session.Play] and [Session.EnsureOpen]
// after [Session.Close].
var ErrSessionClosed = errors.New("audio: session closed")

// defaultPollInterval is how often a running [Playback] checks whether its
// voice has finished.
const defaultPollInterval = 10 * time.Millisecond

// defaultPlaybackGrace is how long a voice may keep reporting IsPlaying after
// its buffer should have run out before the playback is forced to finish.
const defaultPlaybackGrace = 2 * time.Second

// SessionOption is a functional option for [NewSession].
type SessionOption func(*Session)

// WithSampleRate overrides the device sample rate (default [DefaultSampleRate]).
func WithSampleRate(rate int) SessionOption {
	return func(s *Session) { s.sampleRate = rate }
}

// WithChannels overrides the device channel count (default [DefaultChannels]).
func WithChannels(channels int) SessionOption {
	return func(s *Session) { s.channels = channels }
}

// WithPollInterval sets how often playbacks poll for completion.
func WithPollInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.poll = d }
}

// WithPlaybackGrace overrides how long past its buffer duration a voice may
// play before the session stops it (default 2s).
func WithPlaybackGrace(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithPlaybackHook registers fn to be called with +1 when a playback starts
// and -1 when it ends. Used for the active-playback gauge.
func WithPlaybackHook(fn func(delta int64)) SessionOption {
	return func(s *Session) { s.hook = fn }
}

// Session owns the lazily opened output device of one screen. A session is
// created when a screen mounts and closed when it unmounts; nothing is shared
// between sessions.
//
// All methods are safe for concurrent use.
type Session struct {
	platform   Platform
	sampleRate int
	channels   int
	poll       time.Duration
	grace      time.Duration
	hook       func(delta int64)

	mu          sync.Mutex
	device      Device
	unavailable error
	closed      bool
}

// NewSession returns a session that will open its device on p at first use.
// A nil p yields a session that is permanently unavailable.
func NewSession(p Platform, opts ...SessionOption) *Session {
	s := &Session{
		platform:   p,
		sampleRate: DefaultSampleRate,
		channels:   DefaultChannels,
		poll:       defaultPollInterval,
		grace:      defaultPlaybackGrace,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Format returns the PCM format the session's device runs at.
func (s *Session) Format() Format {
	return Format{SampleRate: s.sampleRate, Channels: s.channels}
}

// EnsureOpen opens the device on the first call and returns the same device on
// every later call. It does not block on playback and may be called from an
// input handler.
//
// If the platform cannot open, the failure is latched: this and every later
// call return an error wrapping [ErrPlatformUnavailable] without retrying.
func (s *Session) EnsureOpen() (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureOpenLocked()
}

func (s *Session) ensureOpenLocked() (Device, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.device != nil {
		return s.device, nil
	}
	if s.unavailable != nil {
		return nil, s.unavailable
	}
	if s.platform == nil {
		s.unavailable = ErrPlatformUnavailable
		return nil, s.unavailable
	}

	dev, err := s.platform.Open(s.sampleRate, s.channels)
	if err != nil {
		if !errors.Is(err, ErrPlatformUnavailable) {
			err = fmt.Errorf("%w: %w", ErrPlatformUnavailable, err)
		}
		s.unavailable = err
		slog.Warn("audio output unavailable, narration will be silent", "err", err)
		return nil, err
	}
	s.device = dev
	slog.Debug("audio session opened",
		"format", formatString(s.sampleRate, s.channels))
	return dev, nil
}

// Available reports whether the session has not latched as unavailable and
// has not been closed. It does not open the device.
func (s *Session) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.unavailable == nil && s.platform != nil
}

// Resume resumes a suspended device. Errors are logged and swallowed: playback
// simply stays silent until the next user interaction. Calling Resume before
// the device is open, or on a running device, does nothing.
func (s *Session) Resume() {
	s.mu.Lock()
	dev := s.device
	s.mu.Unlock()
	if dev == nil || !dev.Suspended() {
		return
	}
	if err := dev.Resume(); err != nil {
		slog.Debug("audio session resume failed", "err", err)
	}
}

// Play starts buf on a new independent voice and returns its [Playback]. Earlier
// playbacks keep running.
//
// When the session is unavailable or closed, Play returns an already finished
// Playback together with the error, so callers waiting on completion never
// hang.
func (s *Session) Play(buf *Buffer) (*Playback, error) {
	s.mu.Lock()
	dev, err := s.ensureOpenLocked()
	s.mu.Unlock()
	if err != nil {
		return finishedPlayback(), err
	}
	if buf == nil || buf.Frames == 0 {
		return finishedPlayback(), ErrEmptyPayload
	}

	data := buf.Float32LE()
	if buf.NumChannels() != s.channels {
		data = remix(buf, s.channels).Float32LE()
	}

	v := dev.NewVoice(bytes.NewReader(data))
	pb := newPlayback()
	if s.hook != nil {
		s.hook(1)
	}
	v.Play()
	go s.watch(v, pb, buf.Duration()+s.grace)
	return pb, nil
}

// watch polls v until it stops, or until limit has passed, and then
// completes pb. A voice still playing at the limit is closed.
func (s *Session) watch(v Voice, pb *Playback, limit time.Duration) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
poll:
	for {
		select {
		case <-ticker.C:
			if !v.IsPlaying() {
				break poll
			}
		case <-deadline.C:
			slog.Warn("audio voice overran its buffer, stopping it", "limit", limit)
			break poll
		}
	}
	if err := v.Close(); err != nil {
		slog.Debug("audio voice close failed", "err", err)
	}
	if s.hook != nil {
		s.hook(-1)
	}
	pb.finish()
}

// Close releases the device. Playbacks in flight are abandoned; their
// completion still fires once their voice reports it has stopped. Close is
// idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.device == nil {
		return nil
	}
	err := s.device.Close()
	s.device = nil
	if err != nil {
		return fmt.Errorf("audio: close device: %w", err)
	}
	return nil
}

// remix folds or duplicates channels so that buf matches the device layout.
func remix(buf *Buffer, channels int) *Buffer {
	out := &Buffer{SampleRate: buf.SampleRate, Frames: buf.Frames, Channels: make([][]float32, channels)}
	for c := range channels {
		samples := make([]float32, buf.Frames)
		for i := range buf.Frames {
			if c < buf.NumChannels() {
				samples[i] = buf.Channels[c][i]
				continue
			}
			// Extra device channels carry the mean of the source.
			var sum float32
			for _, src := range buf.Channels {
				sum += src[i]
			}
			samples[i] = sum / float32(buf.NumChannels())
		}
		out.Channels[c] = samples
	}
	return out
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Playback is the handle of one started voice.
type Playback struct {
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	finished bool
	onEnded  []func()
}

func newPlayback() *Playback {
	return &Playback{done: make(chan struct{})}
}

func finishedPlayback() *Playback {
	pb := newPlayback()
	pb.finish()
	return pb
}

// Done returns a channel that is closed when playback has ended.
func (p *Playback) Done() <-chan struct{} { return p.done }

// OnEnded registers fn to run once when playback ends. If playback has already
// ended fn runs immediately on the calling goroutine.
func (p *Playback) OnEnded(fn func()) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		fn()
		return
	}
	p.onEnded = append(p.onEnded, fn)
	p.mu.Unlock()
}

// finish marks the playback ended and runs the callbacks exactly once.
func (p *Playback) finish() {
	p.once.Do(func() {
		p.mu.Lock()
		p.finished = true
		cbs := p.onEnded
		p.onEnded = nil
		p.mu.Unlock()
		close(p.done)
		for _, fn := range cbs {
			fn()
		}
	})
}
