package tts

// VoiceProfile selects a voice of a TTS provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (a Gemini prebuilt voice
	// name, an ElevenLabs voice ID, or a Piper speaker number).
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string
}

// Gemini prebuilt voices used by the mini-games.
var (
	VoicePuck   = VoiceProfile{ID: "Puck", Name: "Puck", Provider: "gemini"}
	VoiceCharon = VoiceProfile{ID: "Charon", Name: "Charon", Provider: "gemini"}
	VoiceKore   = VoiceProfile{ID: "Kore", Name: "Kore", Provider: "gemini"}
	VoiceZephyr = VoiceProfile{ID: "Zephyr", Name: "Zephyr", Provider: "gemini"}
)

// DefaultVoice is the voice used when a screen does not pick one.
var DefaultVoice = VoiceKore

// Request is one narration utterance.
type Request struct {
	// Text is the sentence to speak.
	Text string

	// Voice selects the speaker.
	Voice VoiceProfile

	// Instruction optionally overrides the provider's default delivery
	// instruction (for example "Say cheerfully").
	Instruction string
}

// Result is the audio returned for one [Request].
type Result struct {
	// Audio is signed 16-bit little-endian interleaved PCM.
	Audio []byte

	// SampleRate of Audio in Hz.
	SampleRate int

	// Channels of Audio.
	Channels int

	// MIMEType is the content type reported by the service, if any.
	MIMEType string
}
