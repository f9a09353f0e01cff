package progress

import "context"

// ResetPrompt is the question asked before progress is wiped.
const ResetPrompt = "Xóa hết tiến trình và chơi lại từ đầu?"

// Confirmer asks the grown-up a blocking yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to [Confirmer].
type ConfirmFunc func(ctx context.Context, prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}
