package narration

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// CredentialBridge tells the narrator whether the host has a narration
// credential configured, and lets it ask the host to obtain one.
type CredentialBridge interface {
	// HasCredential reports whether a credential is available.
	HasCredential(ctx context.Context) (bool, error)

	// PromptForCredential asks the host (a grown-up, not the child) to supply
	// a credential. It is advisory and must not block waiting for an answer.
	PromptForCredential(ctx context.Context) error
}

// EnvBridge is a [CredentialBridge] backed by an environment variable.
type EnvBridge struct {
	// Var is the environment variable holding the credential, e.g. GEMINI_API_KEY.
	Var string

	// Out receives the advisory prompt. Defaults to os.Stderr.
	Out io.Writer

	// lookup is overridden in tests.
	lookup func(string) (string, bool)
}

var _ CredentialBridge = (*EnvBridge)(nil)

// HasCredential reports whether Var is set to a non-blank value.
func (b *EnvBridge) HasCredential(context.Context) (bool, error) {
	if b.Var == "" {
		return false, nil
	}
	lookup := b.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(b.Var)
	return ok && strings.TrimSpace(v) != "", nil
}

// PromptForCredential prints one line telling the grown-up how to enable the
// natural voice.
func (b *EnvBridge) PromptForCredential(context.Context) error {
	out := b.Out
	if out == nil {
		out = os.Stderr
	}
	_, err := fmt.Fprintf(out, "Narration is using the on-device voice. Set %s to enable the natural voice.\n", b.Var)
	return err
}
