// Package oto plays narration through the host's speakers using
// github.com/ebitengine/oto/v3.
//
// oto allows exactly one context per process, so every [Platform] shares a
// lazily created process-wide context. The first Open fixes the sample rate
// and channel count; later Opens with a different format fail with
// [audio.ErrPlatformUnavailable].
package oto

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/dinoenglish/pkg/audio"
)

var (
	ctxOnce   sync.Once
	ctxShared *oto.Context
	ctxFormat audio.Format
	ctxErr    error

	// newContext is swapped in tests.
	newContext = oto.NewContext
)

// Option is a functional option for [New].
type Option func(*Platform)

// WithBufferSize sets the output buffer duration handed to oto. Default: 50ms.
func WithBufferSize(d time.Duration) Option {
	return func(p *Platform) { p.bufferSize = d }
}

// Platform implements [audio.Platform] on top of oto.
type Platform struct {
	bufferSize time.Duration
}

var _ audio.Platform = (*Platform)(nil)

// New returns an oto-backed platform. Nothing is opened until the first
// [Platform.Open].
func New(opts ...Option) *Platform {
	p := &Platform{bufferSize: 50 * time.Millisecond}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Open implements [audio.Platform]. It creates the shared oto context on first
// use and waits for the driver to become ready.
func (p *Platform) Open(sampleRate, channels int) (audio.Device, error) {
	ctx, err := p.ensureContext(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &device{ctx: ctx}, nil
}

func (p *Platform) ensureContext(sampleRate, channels int) (*oto.Context, error) {
	want := audio.Format{SampleRate: sampleRate, Channels: channels}
	ctxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   p.bufferSize,
		}
		var ready chan struct{}
		ctxShared, ready, ctxErr = newContext(op)
		if ctxErr != nil {
			ctxErr = fmt.Errorf("%w: oto: %w", audio.ErrPlatformUnavailable, ctxErr)
			return
		}
		<-ready
		ctxFormat = want
	})
	if ctxErr != nil {
		return nil, ctxErr
	}
	if ctxFormat != want {
		return nil, fmt.Errorf("%w: oto context already running at %s, requested %s",
			audio.ErrPlatformUnavailable, ctxFormat, want)
	}
	return ctxShared, nil
}

// otoContext is the part of *oto.Context a device uses.
type otoContext interface {
	NewPlayer(r io.Reader) *oto.Player
	Suspend() error
	Resume() error
}

// suspendState tracks whether the shared context is suspended. It is
// process-wide like the context itself.
var suspendState struct {
	mu        sync.Mutex
	suspended bool
}

// device wraps the shared context. Closing a device suspends output rather
// than destroying the process-wide context, which oto cannot recreate. The
// next device opened starts suspended and plays once it is resumed from a
// user interaction.
type device struct {
	ctx otoContext

	mu     sync.Mutex
	closed bool
}

func (d *device) NewVoice(r io.Reader) audio.Voice {
	return &voice{p: d.ctx.NewPlayer(r)}
}

func (d *device) Suspended() bool {
	suspendState.mu.Lock()
	defer suspendState.mu.Unlock()
	return suspendState.suspended
}

func (d *device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("oto: device closed")
	}
	suspendState.mu.Lock()
	defer suspendState.mu.Unlock()
	if err := d.ctx.Resume(); err != nil {
		return fmt.Errorf("oto: resume: %w", err)
	}
	suspendState.suspended = false
	return nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	suspendState.mu.Lock()
	defer suspendState.mu.Unlock()
	if err := d.ctx.Suspend(); err != nil {
		return fmt.Errorf("oto: suspend: %w", err)
	}
	suspendState.suspended = true
	return nil
}

type voice struct {
	p *oto.Player
}

func (v *voice) Play()           { v.p.Play() }
func (v *voice) IsPlaying() bool { return v.p.IsPlaying() }
func (v *voice) Close() error    { return v.p.Close() }
