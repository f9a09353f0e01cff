package narration

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/dinoenglish/pkg/audio"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

// SynthFallback turns a local [tts.Provider] (Piper) into a [Fallback] that
// plays on the same screen session as the remote voice.
type SynthFallback struct {
	provider tts.Provider
	player   Player

	mu        sync.Mutex
	converter *audio.FormatConverter
}

var _ Fallback = (*SynthFallback)(nil)

// NewSynthFallback returns a fallback that synthesizes with p and plays on player.
func NewSynthFallback(p tts.Provider, player Player) *SynthFallback {
	return &SynthFallback{
		provider:  p,
		player:    player,
		converter: &audio.FormatConverter{Target: player.Format()},
	}
}

// Say synthesizes text, plays it and waits for playback to end or ctx to be
// done.
func (f *SynthFallback) Say(ctx context.Context, text string, voice tts.VoiceProfile) error {
	res, err := f.provider.Synthesize(ctx, tts.Request{Text: text, Voice: voice})
	if err != nil {
		return fmt.Errorf("narration: fallback synthesize: %w", err)
	}

	target := f.player.Format()
	f.mu.Lock()
	pcm := f.converter.Convert(audio.PCM16{Data: res.Audio, Format: resultFormat(res)})
	f.mu.Unlock()

	buf, err := audio.Decode(pcm.Data, target.SampleRate, target.Channels)
	if err != nil {
		return fmt.Errorf("narration: fallback decode: %w", err)
	}
	pb, err := f.player.Play(buf)
	if err != nil {
		return fmt.Errorf("narration: fallback play: %w", err)
	}

	select {
	case <-pb.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
