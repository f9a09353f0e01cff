package audio_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/dinoenglish/pkg/audio"
	"github.com/MrWong99/dinoenglish/pkg/audio/mock"
)

func testBuffer(t *testing.T) *audio.Buffer {
	t.Helper()
	buf, err := audio.Decode(samplesToBytes([]int16{1, 2, 3, 4}), audio.DefaultSampleRate, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return buf
}

func waitDone(t *testing.T, pb *audio.Playback) {
	t.Helper()
	select {
	case <-pb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
	}
}

func TestSession_EnsureOpenIsIdempotent(t *testing.T) {
	p := &mock.Platform{}
	s := audio.NewSession(p)

	d1, err := s.EnsureOpen()
	if err != nil {
		t.Fatalf("EnsureOpen: %v", err)
	}
	d2, err := s.EnsureOpen()
	if err != nil {
		t.Fatalf("EnsureOpen (2nd): %v", err)
	}
	if d1 != d2 {
		t.Error("EnsureOpen returned different devices")
	}
	if p.OpenCount() != 1 {
		t.Errorf("Open called %d times, want 1", p.OpenCount())
	}
	if call := p.OpenCalls[0]; call.SampleRate != 24000 || call.Channels != 1 {
		t.Errorf("Open(%d, %d), want Open(24000, 1)", call.SampleRate, call.Channels)
	}
}

func TestSession_UnavailableLatches(t *testing.T) {
	p := &mock.Platform{OpenErr: errors.New("no sound card")}
	s := audio.NewSession(p)

	for range 3 {
		if _, err := s.EnsureOpen(); !errors.Is(err, audio.ErrPlatformUnavailable) {
			t.Fatalf("err = %v, want ErrPlatformUnavailable", err)
		}
	}
	if p.OpenCount() != 1 {
		t.Errorf("Open called %d times, want 1", p.OpenCount())
	}
	if s.Available() {
		t.Error("Available() = true after failed open")
	}

	pb, err := s.Play(testBuffer(t))
	if !errors.Is(err, audio.ErrPlatformUnavailable) {
		t.Fatalf("Play err = %v, want ErrPlatformUnavailable", err)
	}
	waitDone(t, pb)
}

func TestSession_NilPlatform(t *testing.T) {
	s := audio.NewSession(nil)
	pb, err := s.Play(testBuffer(t))
	if !errors.Is(err, audio.ErrPlatformUnavailable) {
		t.Fatalf("err = %v, want ErrPlatformUnavailable", err)
	}
	waitDone(t, pb)
	s.Resume()
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSession_PlayCompletesOnce(t *testing.T) {
	dev := &mock.Device{}
	s := audio.NewSession(&mock.Platform{Device: dev}, audio.WithPollInterval(time.Millisecond))

	pb, err := s.Play(testBuffer(t))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	var calls atomic.Int32
	pb.OnEnded(func() { calls.Add(1) })

	select {
	case <-pb.Done():
		t.Fatal("playback finished before the voice stopped")
	case <-time.After(20 * time.Millisecond):
	}

	dev.FinishAll()
	waitDone(t, pb)
	time.Sleep(10 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("OnEnded fired %d times, want 1", got)
	}

	// Registering after completion runs immediately.
	late := false
	pb.OnEnded(func() { late = true })
	if !late {
		t.Error("OnEnded after completion did not run")
	}

	v := dev.Voice(0)
	if v.CallCountPlay != 1 {
		t.Errorf("Play called %d times, want 1", v.CallCountPlay)
	}
	if len(v.Data) != 4*4 {
		t.Errorf("voice got %d bytes, want 16", len(v.Data))
	}
}

func TestSession_StuckVoiceIsStoppedAfterGrace(t *testing.T) {
	dev := &mock.Device{}
	s := audio.NewSession(&mock.Platform{Device: dev},
		audio.WithPollInterval(time.Millisecond),
		audio.WithPlaybackGrace(30*time.Millisecond),
	)
	defer s.Close()

	pb, err := s.Play(testBuffer(t))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	// The voice is never finished.
	waitDone(t, pb)

	v := dev.Voice(0)
	if v.CallCountClose != 1 {
		t.Errorf("voice closed %d times, want 1", v.CallCountClose)
	}
	if v.IsPlaying() {
		t.Error("voice still playing after the grace period")
	}
}

func TestSession_OverlappingPlaysAreIndependent(t *testing.T) {
	dev := &mock.Device{}
	s := audio.NewSession(&mock.Platform{Device: dev}, audio.WithPollInterval(time.Millisecond))

	pb1, _ := s.Play(testBuffer(t))
	pb2, _ := s.Play(testBuffer(t))
	if dev.VoiceCount() != 2 {
		t.Fatalf("voices = %d, want 2", dev.VoiceCount())
	}

	dev.Voice(1).Finish()
	waitDone(t, pb2)
	if !dev.Voice(0).IsPlaying() {
		t.Error("second Play stopped the first voice")
	}
	select {
	case <-pb1.Done():
		t.Error("first playback finished early")
	default:
	}

	dev.Voice(0).Finish()
	waitDone(t, pb1)
}

func TestSession_PlaybackHook(t *testing.T) {
	var active atomic.Int64
	s := audio.NewSession(&mock.Platform{Device: &mock.Device{AutoFinish: true}},
		audio.WithPollInterval(time.Millisecond),
		audio.WithPlaybackHook(func(d int64) { active.Add(d) }),
	)
	pb, err := s.Play(testBuffer(t))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitDone(t, pb)
	if got := active.Load(); got != 0 {
		t.Errorf("active = %d after completion, want 0", got)
	}
}

func TestSession_StereoDeviceRemixesMono(t *testing.T) {
	dev := &mock.Device{AutoFinish: true}
	s := audio.NewSession(&mock.Platform{Device: dev}, audio.WithChannels(2), audio.WithPollInterval(time.Millisecond))

	pb, err := s.Play(testBuffer(t))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitDone(t, pb)
	if got := len(dev.Voice(0).Data); got != 4*2*4 {
		t.Errorf("voice got %d bytes, want 32", got)
	}
}

func TestSession_Resume(t *testing.T) {
	dev := &mock.Device{IsSuspended: true}
	s := audio.NewSession(&mock.Platform{Device: dev})

	s.Resume() // before open: no-op
	if dev.CallCountResume != 0 {
		t.Fatalf("Resume reached device before open")
	}

	if _, err := s.EnsureOpen(); err != nil {
		t.Fatalf("EnsureOpen: %v", err)
	}
	s.Resume()
	s.Resume() // already running
	if dev.CallCountResume != 1 {
		t.Errorf("device Resume called %d times, want 1", dev.CallCountResume)
	}
}

func TestSession_ResumeErrorSwallowed(t *testing.T) {
	dev := &mock.Device{IsSuspended: true, ResumeErr: errors.New("not allowed")}
	s := audio.NewSession(&mock.Platform{Device: dev})
	if _, err := s.EnsureOpen(); err != nil {
		t.Fatalf("EnsureOpen: %v", err)
	}
	s.Resume()
	s.Resume()
	if dev.CallCountResume != 2 {
		t.Errorf("device Resume called %d times, want 2", dev.CallCountResume)
	}
}

func TestSession_Close(t *testing.T) {
	dev := &mock.Device{}
	s := audio.NewSession(&mock.Platform{Device: dev}, audio.WithPollInterval(time.Millisecond))
	pb, _ := s.Play(testBuffer(t))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if dev.CallCountClose != 1 {
		t.Errorf("device Close called %d times, want 1", dev.CallCountClose)
	}

	pb2, err := s.Play(testBuffer(t))
	if !errors.Is(err, audio.ErrSessionClosed) {
		t.Errorf("Play after Close err = %v, want ErrSessionClosed", err)
	}
	waitDone(t, pb2)

	// The abandoned playback still completes when its voice stops.
	dev.FinishAll()
	waitDone(t, pb)
}

func TestSession_PlayEmptyBuffer(t *testing.T) {
	s := audio.NewSession(&mock.Platform{})
	pb, err := s.Play(&audio.Buffer{SampleRate: 24000})
	if !errors.Is(err, audio.ErrEmptyPayload) {
		t.Fatalf("err = %v, want ErrEmptyPayload", err)
	}
	waitDone(t, pb)
}
