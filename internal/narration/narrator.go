package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/dinoenglish/internal/observe"
	"github.com/MrWong99/dinoenglish/internal/resilience"
	"github.com/MrWong99/dinoenglish/pkg/audio"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

const (
	// DefaultTimeout bounds the remote speech request.
	DefaultTimeout = 5 * time.Second

	// DefaultFallbackTimeout bounds one on-device narration, synthesis and
	// playback together.
	DefaultFallbackTimeout = 15 * time.Second
)

var (
	// errNoProvider is the preflight failure when no remote provider is wired.
	errNoProvider = errors.New("narration: no speech provider configured")

	// errNoCredential is the preflight failure when the bridge reports no
	// credential.
	errNoCredential = errors.New("narration: no credential configured")
)

// Outcome is the result of [Narrator.Speak].
type Outcome int

const (
	// Played means the remote voice is playing.
	Played Outcome = iota

	// PlayedViaFallback means the on-device voice was used, or nothing could
	// be played at all.
	PlayedViaFallback

	// Suppressed means another narration held the gate; nothing was done.
	Suppressed
)

// String returns the metric label of the outcome.
func (o Outcome) String() string {
	switch o {
	case Played:
		return "played"
	case PlayedViaFallback:
		return "fallback"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Player plays decoded audio. [*audio.Session] implements it.
type Player interface {
	Format() audio.Format
	Play(buf *audio.Buffer) (*audio.Playback, error)
}

// Fallback speaks text with a voice that needs no network. Say blocks until
// speaking has finished or failed.
type Fallback interface {
	Say(ctx context.Context, text string, voice tts.VoiceProfile) error
}

// FallbackFunc adapts a function to [Fallback].
type FallbackFunc func(ctx context.Context, text string, voice tts.VoiceProfile) error

// Say calls f.
func (f FallbackFunc) Say(ctx context.Context, text string, voice tts.VoiceProfile) error {
	return f(ctx, text, voice)
}

// Option configures a [Narrator].
type Option func(*Narrator)

// WithProvider sets the remote speech provider. name labels metrics and logs.
func WithProvider(p tts.Provider, name string) Option {
	return func(n *Narrator) {
		n.provider = p
		n.providerName = name
	}
}

// WithBridge sets the credential bridge consulted before every request.
func WithBridge(b CredentialBridge) Option {
	return func(n *Narrator) { n.bridge = b }
}

// WithFallback sets the on-device voice.
func WithFallback(f Fallback) Option {
	return func(n *Narrator) { n.fallback = f }
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(n *Narrator) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithFallbackTimeout overrides [DefaultFallbackTimeout].
func WithFallbackTimeout(d time.Duration) Option {
	return func(n *Narrator) {
		if d > 0 {
			n.fallbackTimeout = d
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(n *Narrator) { n.metrics = m }
}

// Narrator speaks prompts on one screen. Safe for concurrent use; concurrent
// calls are arbitrated by the gate.
type Narrator struct {
	gate         *Gate
	player       Player
	provider     tts.Provider
	providerName string
	bridge       CredentialBridge
	fallback     Fallback
	timeout      time.Duration
	metrics      *observe.Metrics

	fallbackTimeout time.Duration

	promptOnce sync.Once

	convMu    sync.Mutex
	converter *audio.FormatConverter
}

// New returns a narrator that plays on player and arbitrates through gate.
func New(gate *Gate, player Player, opts ...Option) *Narrator {
	n := &Narrator{
		gate:         gate,
		player:       player,
		providerName: "remote",
		timeout:      DefaultTimeout,

		fallbackTimeout: DefaultFallbackTimeout,
	}
	for _, o := range opts {
		o(n)
	}
	if n.metrics == nil {
		n.metrics = observe.DefaultMetrics()
	}
	n.converter = &audio.FormatConverter{Target: player.Format()}
	return n
}

// Gate returns the narrator's gate.
func (n *Narrator) Gate() *Gate { return n.gate }

// Speak narrates text in voice.
//
// It returns as soon as playback (remote or fallback) has started. The gate is
// released exactly once, when that playback ends, when the fallback returns,
// or immediately if nothing could be played. Errors are logged, never
// returned.
func (n *Narrator) Speak(ctx context.Context, text string, voice tts.VoiceProfile) Outcome {
	if !n.gate.TryAcquire() {
		slog.Debug("narration suppressed, already speaking", "text", text)
		n.metrics.RecordNarration(ctx, Suppressed.String())
		return Suppressed
	}

	var once sync.Once
	release := func() { once.Do(n.gate.Release) }

	id := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "narration.speak",
		trace.WithAttributes(
			attribute.String("narration.id", id),
			attribute.String("narration.voice", voice.ID),
		),
	)
	defer span.End()
	log := observe.Logger(ctx).With("narration_id", id)

	buf, err := n.fetch(ctx, text, voice, log)
	if err == nil {
		var pb *audio.Playback
		pb, err = n.player.Play(buf)
		if err == nil {
			pb.OnEnded(release)
			log.Debug("narration playing", "duration", buf.Duration())
			n.metrics.RecordNarration(ctx, Played.String())
			return Played
		}
		err = fmt.Errorf("narration: play: %w", err)
	}

	span.SetStatus(codes.Error, err.Error())
	log.Info("narration falling back to on-device voice", "err", err)
	n.startFallback(ctx, text, voice, release, log)
	n.metrics.RecordNarration(ctx, PlayedViaFallback.String())
	return PlayedViaFallback
}

// Wait blocks until no narration holds the gate.
func (n *Narrator) Wait() {
	<-n.gate.Idle()
}

// fetch runs the preflight, the remote request and the decoder.
func (n *Narrator) fetch(ctx context.Context, text string, voice tts.VoiceProfile, log *slog.Logger) (*audio.Buffer, error) {
	if n.provider == nil {
		return nil, errNoProvider
	}
	if n.bridge != nil {
		ok, err := n.bridge.HasCredential(ctx)
		if err != nil || !ok {
			n.promptOnce.Do(func() {
				if perr := n.bridge.PromptForCredential(ctx); perr != nil {
					log.Debug("credential prompt failed", "err", perr)
				}
			})
			return nil, errors.Join(errNoCredential, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	res, err := n.provider.Synthesize(reqCtx, tts.Request{Text: text, Voice: voice})
	n.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		n.metrics.RecordProviderRequest(ctx, n.providerName, "error")
		n.metrics.RecordProviderError(ctx, n.providerName, errorKind(err))
		return nil, fmt.Errorf("narration: synthesize: %w", err)
	}
	n.metrics.RecordProviderRequest(ctx, n.providerName, "ok")

	target := n.player.Format()
	pcm := n.convert(audio.PCM16{Data: res.Audio, Format: resultFormat(res)})
	buf, err := audio.Decode(pcm.Data, target.SampleRate, target.Channels)
	if err != nil {
		n.metrics.DecodeErrors.Add(ctx, 1)
		return nil, fmt.Errorf("narration: decode: %w", err)
	}
	return buf, nil
}

func (n *Narrator) convert(pcm audio.PCM16) audio.PCM16 {
	n.convMu.Lock()
	defer n.convMu.Unlock()
	return n.converter.Convert(pcm)
}

// startFallback runs the fallback voice on its own goroutine and releases the
// gate when it returns or when the fallback timeout passes, whichever comes
// first. Without a fallback the gate is released immediately.
func (n *Narrator) startFallback(ctx context.Context, text string, voice tts.VoiceProfile, release func(), log *slog.Logger) {
	if n.fallback == nil {
		release()
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.fallbackTimeout)
	go func() {
		defer cancel()
		defer release()

		done := make(chan error, 1)
		go func() { done <- n.fallback.Say(ctx, text, voice) }()

		select {
		case err := <-done:
			if err != nil {
				log.Warn("on-device voice failed", "err", err)
			}
		case <-ctx.Done():
			log.Warn("on-device voice timed out", "timeout", n.fallbackTimeout)
		}
	}()
}

func resultFormat(res *tts.Result) audio.Format {
	f := audio.Format{SampleRate: res.SampleRate, Channels: res.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = audio.DefaultSampleRate
	}
	if f.Channels <= 0 {
		f.Channels = audio.DefaultChannels
	}
	return f
}

// errorKind classifies provider errors for the errors metric.
func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, tts.ErrMissingPayload):
		return "missing_payload"
	default:
		return "request"
	}
}
