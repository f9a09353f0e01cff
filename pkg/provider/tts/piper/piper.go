// Package piper implements the tts.Provider interface on top of the local
// Piper speech synthesizer. It is the on-device fallback voice: no network,
// no credential, raw 16-bit mono PCM at 22050 Hz on stdout.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

var (
	// ErrPiperNotFound is returned when the piper binary is not on PATH.
	ErrPiperNotFound = errors.New("piper: binary not found")

	// ErrNoModel is returned when no voice model is configured.
	ErrNoModel = errors.New("piper: no model specified")

	// ErrSynthesisFailed is returned when the piper process fails or
	// produces no audio.
	ErrSynthesisFailed = errors.New("piper: synthesis failed")
)

// SampleRate is the rate of Piper's raw output for the bundled medium models.
const SampleRate = 22050

// Option is a functional option for [New].
type Option func(*Provider)

// WithBinary sets the piper executable (default "piper").
func WithBinary(path string) Option {
	return func(p *Provider) { p.binary = path }
}

// WithSampleRate overrides [SampleRate] for models trained at another rate.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithDefaultSpeaker sets the speaker used when a request names none.
func WithDefaultSpeaker(speaker string) Option {
	return func(p *Provider) { p.defaultSpeaker = speaker }
}

// Provider runs one piper process per utterance.
type Provider struct {
	binary         string
	model          string
	defaultSpeaker string
	sampleRate     int
}

// New returns a Piper provider for the ONNX voice model at model.
func New(model string, opts ...Option) (*Provider, error) {
	p := &Provider{binary: "piper", model: model, sampleRate: SampleRate}
	for _, o := range opts {
		o(p)
	}
	if _, err := exec.LookPath(p.binary); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPiperNotFound, p.binary)
	}
	if p.model == "" {
		return nil, ErrNoModel
	}
	return p, nil
}

// Synthesize implements tts.Provider. The request's voice ID is passed as the
// piper speaker number; Gemini voice names are ignored.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("piper: empty text")
	}

	args := []string{"--model", p.model, "--output-raw"}
	if speaker := p.speaker(req.Voice); speaker != "" {
		args = append(args, "--speaker", speaker)
	}

	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stdin = strings.NewReader(req.Text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("piper failed", "err", err, "stderr", stderr.String())
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no audio output", ErrSynthesisFailed)
	}

	return &tts.Result{
		Audio:      stdout.Bytes(),
		SampleRate: p.sampleRate,
		Channels:   1,
		MIMEType:   "audio/L16",
	}, nil
}

// speaker returns the piper speaker for v. Only numeric IDs or IDs tagged for
// piper are forwarded.
func (p *Provider) speaker(v tts.VoiceProfile) string {
	if v.ID != "" && (v.Provider == "piper" || isDigits(v.ID)) {
		return v.ID
	}
	return p.defaultSpeaker
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
