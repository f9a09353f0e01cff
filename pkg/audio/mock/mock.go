// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Device], and [audio.Voice] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Voices created by [Device] keep playing until the test calls [Voice.Finish]
// (or [Device.FinishAll]) unless Device.AutoFinish is set, in which case they
// finish as soon as they start.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	platform := &mock.Platform{Device: dev}
//	s := audio.NewSession(platform)
//	pb, _ := s.Play(buf)
//	dev.FinishAll()
//	<-pb.Done()
package mock

import (
	"io"
	"sync"

	"github.com/MrWong99/dinoenglish/pkg/audio"
)

// ─── Voice ────────────────────────────────────────────────────────────────────

// Voice is a mock implementation of [audio.Voice].
type Voice struct {
	mu sync.Mutex

	// Data is everything read from the reader given to NewVoice.
	Data []byte

	playing  bool
	started  bool
	finished bool

	// CallCountPlay records how many times Play was called.
	CallCountPlay int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	autoFinish bool
}

// Play implements [audio.Voice].
func (v *Voice) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountPlay++
	v.started = true
	v.playing = !v.finished && !v.autoFinish
}

// IsPlaying implements [audio.Voice].
func (v *Voice) IsPlaying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

// Close implements [audio.Voice].
func (v *Voice) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountClose++
	v.playing = false
	return nil
}

// Finish ends playback as if the voice ran out of samples.
func (v *Voice) Finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finished = true
	v.playing = false
}

// Started reports whether Play has been called.
func (v *Voice) Started() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.started
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// AutoFinish makes new voices finish immediately after Play.
	AutoFinish bool

	// IsSuspended is returned by Suspended. Resume clears it unless ResumeErr is set.
	IsSuspended bool

	// ResumeErr is returned by Resume.
	ResumeErr error

	// CloseErr is returned by Close.
	CloseErr error

	// Voices records every voice created, in order.
	Voices []*Voice

	// CallCountResume records how many times Resume was called.
	CallCountResume int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewVoice implements [audio.Device]. The reader is drained synchronously.
func (d *Device) NewVoice(r io.Reader) audio.Voice {
	data, _ := io.ReadAll(r)
	d.mu.Lock()
	defer d.mu.Unlock()
	v := &Voice{Data: data, autoFinish: d.AutoFinish}
	d.Voices = append(d.Voices, v)
	return v
}

// Suspended implements [audio.Device].
func (d *Device) Suspended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.IsSuspended
}

// Resume implements [audio.Device].
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountResume++
	if d.ResumeErr != nil {
		return d.ResumeErr
	}
	d.IsSuspended = false
	return nil
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return d.CloseErr
}

// VoiceCount returns the number of voices created so far.
func (d *Device) VoiceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Voices)
}

// Voice returns the i-th created voice.
func (d *Device) Voice(i int) *Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Voices[i]
}

// FinishAll finishes every voice created so far.
func (d *Device) FinishAll() {
	d.mu.Lock()
	voices := make([]*Voice, len(d.Voices))
	copy(voices, d.Voices)
	d.mu.Unlock()
	for _, v := range voices {
		v.Finish()
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Platform.Open] invocation.
type OpenCall struct {
	SampleRate int
	Channels   int
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// Device is returned by Open. A nil Device with a nil OpenErr returns a
	// fresh *Device.
	Device *Device

	// OpenErr is returned by Open.
	OpenErr error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall
}

// Open implements [audio.Platform].
func (p *Platform) Open(sampleRate, channels int) (audio.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCalls = append(p.OpenCalls, OpenCall{SampleRate: sampleRate, Channels: channels})
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if p.Device == nil {
		p.Device = &Device{}
	}
	return p.Device, nil
}

// OpenCount returns the number of Open calls.
func (p *Platform) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.OpenCalls)
}

var (
	_ audio.Platform = (*Platform)(nil)
	_ audio.Device   = (*Device)(nil)
	_ audio.Voice    = (*Voice)(nil)
)
