// Package gemini implements the tts.Provider interface for Google's Gemini
// speech generation models using the google.golang.org/genai SDK.
//
// Each Synthesize call issues one generateContent request with the audio
// response modality and a prebuilt voice. The reply carries raw 16-bit PCM
// (24 kHz mono) as inline data in the first candidate's content parts.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/dinoenglish/pkg/audio"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel = "gemini-2.5-flash-preview-tts"

	// DefaultInstruction is prepended to every narration prompt.
	DefaultInstruction = "Say this in a warm, friendly, encouraging tone for a small child"

	// TeacherSystemInstruction is the persona used by the reading screens.
	TeacherSystemInstruction = "You are a warm, clear British English teacher for toddlers. Speak slowly and cheerfully."
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for synthesis.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API endpoint. Primarily used in tests to point at a
// local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithInstruction replaces [DefaultInstruction]. An empty instruction sends the
// text verbatim.
func WithInstruction(instruction string) Option {
	return func(p *Provider) { p.instruction = instruction }
}

// WithSystemInstruction sets a system instruction sent with every request.
func WithSystemInstruction(instruction string) Option {
	return func(p *Provider) { p.systemInstruction = instruction }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// generator is the subset of the genai Models service used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements tts.Provider for Gemini TTS models.
type Provider struct {
	model             string
	baseURL           string
	instruction       string
	systemInstruction string
	httpClient        *http.Client

	models generator
}

// New creates a Gemini TTS provider. apiKey must be non-empty.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key must not be empty")
	}
	p := &Provider{
		model:       defaultModel,
		instruction: DefaultInstruction,
	}
	for _, o := range opts {
		o(p)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.models = client.Models
	return p, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Synthesize implements tts.Provider. It sends exactly one request.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("gemini: empty text")
	}

	voice := req.Voice.ID
	if voice == "" {
		voice = tts.DefaultVoice.ID
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	if p.systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.systemInstruction, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(p.prompt(req), genai.RoleUser),
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	return extractAudio(resp)
}

// prompt wraps the narration text in the delivery instruction.
func (p *Provider) prompt(req tts.Request) string {
	instruction := p.instruction
	if req.Instruction != "" {
		instruction = req.Instruction
	}
	if instruction == "" {
		return req.Text
	}
	return instruction + ": " + req.Text
}

// extractAudio returns the first inline audio part of the first candidate.
func extractAudio(resp *genai.GenerateContentResponse) (*tts.Result, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: %w: no candidates", tts.ErrMissingPayload)
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return nil, fmt.Errorf("gemini: %w: empty candidate", tts.ErrMissingPayload)
	}
	for _, part := range content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		rate, ok := audio.ParseRateFromMIME(part.InlineData.MIMEType)
		if !ok {
			rate = audio.DefaultSampleRate
		}
		return &tts.Result{
			Audio:      part.InlineData.Data,
			SampleRate: rate,
			Channels:   audio.DefaultChannels,
			MIMEType:   part.InlineData.MIMEType,
		}, nil
	}
	return nil, fmt.Errorf("gemini: %w", tts.ErrMissingPayload)
}
