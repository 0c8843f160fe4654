package llm

import (
	"context"
	"sync"
	"sync/atomic"
)

// Fake is a scripted Model for tests and dry runs. Respond receives the
// full prompt text (for a session, system and user joined by a newline)
// and returns the reply.
type Fake struct {
	Respond func(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	calls   atomic.Int64
	mu      sync.Mutex
	prompts []string
}

// NewFake returns a Fake that answers with fn.
func NewFake(fn func(ctx context.Context, prompt string, opts GenerateOptions) (string, error)) *Fake {
	return &Fake{Respond: fn}
}

// Generate records the prompt and returns the scripted reply.
func (f *Fake) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Respond == nil {
		return "", nil
	}
	return f.Respond(ctx, prompt, opts)
}

// GenerateTurn renders the session and delegates to Generate.
func (f *Fake) GenerateTurn(ctx context.Context, s Session, opts GenerateOptions) (string, error) {
	return f.Generate(ctx, s.Text(), opts)
}

// Calls returns how many generations were requested.
func (f *Fake) Calls() int { return int(f.calls.Load()) }

// Prompts returns a copy of every prompt seen, in arrival order.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
