package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

// fakeServer is a minimal stream-input endpoint. It records the received text
// messages and answers with the configured replies once the flush arrives.
type fakeServer struct {
	mu       sync.Mutex
	messages []map[string]any
	path     string
	query    string
	replies  []string
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.path, f.query = r.URL.Path, r.URL.RawQuery
		f.mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(data, &m)
			f.mu.Lock()
			f.messages = append(f.messages, m)
			f.mu.Unlock()
			if m["text"] == "" {
				break
			}
		}
		for _, reply := range f.replies {
			if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
	})
}

func chunk(pcm []byte, final bool) string {
	b, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(pcm), IsFinal: final})
	return string(b)
}

func newServer(t *testing.T, f *fakeServer) *Provider {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	p, err := New("test-key", WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.outputFormat != "pcm_24000" {
		t.Errorf("outputFormat = %q, want pcm_24000", p.outputFormat)
	}
}

func TestNew_RejectsNonPCMFormat(t *testing.T) {
	if _, err := New("key", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Fatal("expected error for non-PCM output format")
	}
}

func TestBuildURL(t *testing.T) {
	p, _ := New("key", WithModel("eleven_turbo_v2"), WithOutputFormat("pcm_16000"))
	got := p.buildURL("voice-123")
	want := "wss://api.elevenlabs.io/v1/text-to-speech/voice-123/stream-input?model_id=eleven_turbo_v2&output_format=pcm_16000"
	if got != want {
		t.Errorf("buildURL = %q, want %q", got, want)
	}
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	f := &fakeServer{replies: []string{
		chunk([]byte{1, 0, 2, 0}, false),
		`{"message":"keepalive"}`,
		chunk([]byte{3, 0}, true),
	}}
	p := newServer(t, f)

	res, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello dino", Voice: tts.VoiceProfile{ID: "v1"}})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != string([]byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("audio = %v", res.Audio)
	}
	if res.SampleRate != 24000 || res.Channels != 1 {
		t.Errorf("format = %dHz %dch", res.SampleRate, res.Channels)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.HasSuffix(f.path, "/v1/text-to-speech/v1/stream-input") {
		t.Errorf("path = %q", f.path)
	}
	if len(f.messages) != 3 {
		t.Fatalf("messages = %d, want 3 (BOI, text, flush)", len(f.messages))
	}
	if f.messages[0]["xi_api_key"] != "test-key" {
		t.Errorf("BOI missing api key: %v", f.messages[0])
	}
	if f.messages[1]["text"] != "Hello dino " {
		t.Errorf("text message = %v", f.messages[1]["text"])
	}
}

func TestSynthesize_NoAudioIsMissingPayload(t *testing.T) {
	f := &fakeServer{replies: []string{`{"isFinal":true}`}}
	p := newServer(t, f)

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: tts.VoiceProfile{ID: "v1"}})
	if !errors.Is(err, tts.ErrMissingPayload) {
		t.Errorf("err = %v, want ErrMissingPayload", err)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	f := &fakeServer{replies: []string{`{"error":"quota_exceeded"}`}}
	p := newServer(t, f)

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: tts.VoiceProfile{ID: "v1"}})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Errorf("err = %v, want server error", err)
	}
}

func TestSynthesize_RequiresVoice(t *testing.T) {
	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hi"}); err == nil {
		t.Fatal("expected error for empty voice ID")
	}
}

func TestSampleRateOf(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"pcm_24000", 24000, false},
		{"pcm_16000", 16000, false},
		{"pcm_", 0, true},
		{"mp3_44100", 0, true},
	}
	for _, tc := range tests {
		got, err := sampleRateOf(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("sampleRateOf(%q) = (%d, %v)", tc.in, got, err)
		}
	}
}
