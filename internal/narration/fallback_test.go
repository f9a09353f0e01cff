package narration

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/dinoenglish/pkg/audio"
	audiomock "github.com/MrWong99/dinoenglish/pkg/audio/mock"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
	ttsmock "github.com/MrWong99/dinoenglish/pkg/provider/tts/mock"
)

func TestSynthFallback_PlaysAndWaits(t *testing.T) {
	dev := &audiomock.Device{}
	session := audio.NewSession(&audiomock.Platform{Device: dev}, audio.WithPollInterval(time.Millisecond))
	t.Cleanup(func() { _ = session.Close() })
	piper := &ttsmock.Provider{Result: &tts.Result{Audio: []byte{0, 0x10, 0, 0x20, 0, 0x30}, SampleRate: 22050, Channels: 1}}
	f := NewSynthFallback(piper, session)

	done := make(chan error, 1)
	go func() { done <- f.Say(context.Background(), "Well done!", tts.VoiceKore) }()

	deadline := time.After(2 * time.Second)
	for dev.VoiceCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("fallback never started a voice")
		case <-time.After(time.Millisecond):
		}
	}
	select {
	case err := <-done:
		t.Fatalf("Say returned before playback ended: %v", err)
	default:
	}

	dev.Voice(0).Finish()
	if err := <-done; err != nil {
		t.Fatalf("Say: %v", err)
	}
	if piper.Calls[0].Request.Text != "Well done!" {
		t.Errorf("request text = %q", piper.Calls[0].Request.Text)
	}
	// 3 samples at 22050 Hz resample to 3 samples at 24000 Hz.
	if got := len(dev.Voice(0).Data); got != 3*4 {
		t.Errorf("voice bytes = %d, want 12", got)
	}
}

func TestSynthFallback_Errors(t *testing.T) {
	tests := []struct {
		name     string
		platform *audiomock.Platform
		provider *ttsmock.Provider
		want     error
	}{
		{
			name:     "synthesis fails",
			platform: &audiomock.Platform{},
			provider: &ttsmock.Provider{Err: errors.New("piper: binary not found")},
		},
		{
			name:     "empty audio",
			platform: &audiomock.Platform{},
			provider: &ttsmock.Provider{Result: &tts.Result{SampleRate: 22050, Channels: 1}},
			want:     audio.ErrEmptyPayload,
		},
		{
			name:     "no audio device",
			platform: &audiomock.Platform{OpenErr: errors.New("no sound card")},
			provider: &ttsmock.Provider{Result: &tts.Result{Audio: []byte{1, 2, 3, 4}, SampleRate: 24000, Channels: 1}},
			want:     audio.ErrPlatformUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			session := audio.NewSession(tc.platform)
			f := NewSynthFallback(tc.provider, session)
			err := f.Say(context.Background(), "hi", tts.VoiceKore)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSynthFallback_ContextDone(t *testing.T) {
	session := audio.NewSession(&audiomock.Platform{}, audio.WithPollInterval(time.Millisecond))
	t.Cleanup(func() { _ = session.Close() })
	f := NewSynthFallback(&ttsmock.Provider{Result: &tts.Result{Audio: []byte{1, 2}, SampleRate: 24000, Channels: 1}}, session)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.Say(ctx, "hi", tts.VoiceKore); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestEnvBridge(t *testing.T) {
	env := map[string]string{"GEMINI_API_KEY": "abc", "BLANK": "  "}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	tests := []struct {
		name string
		v    string
		want bool
	}{
		{"set", "GEMINI_API_KEY", true},
		{"blank", "BLANK", false},
		{"unset", "ELEVENLABS_API_KEY", false},
		{"no variable", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := &EnvBridge{Var: tc.v, lookup: lookup}
			got, err := b.HasCredential(context.Background())
			if err != nil || got != tc.want {
				t.Errorf("HasCredential = (%v, %v), want %v", got, err, tc.want)
			}
		})
	}

	var out bytes.Buffer
	b := &EnvBridge{Var: "GEMINI_API_KEY", Out: &out}
	if err := b.PromptForCredential(context.Background()); err != nil {
		t.Fatalf("PromptForCredential: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("GEMINI_API_KEY")) {
		t.Errorf("prompt %q does not name the variable", out.String())
	}
}
