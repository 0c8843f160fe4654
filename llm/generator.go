package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrGenerationFailed wraps any failure of the backing model.
var ErrGenerationFailed = errors.New("llm: generation failed")

// GenerateOptions control a single generation call.
type GenerateOptions struct {
	MaxNewTokens int
	Stop         []string
	Temperature  float64
}

// Generator produces a continuation for a standalone prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// ChatGenerator produces the next assistant turn of a session.
type ChatGenerator interface {
	GenerateTurn(ctx context.Context, s Session, opts GenerateOptions) (string, error)
}

// Model is a text generator that supports both call shapes.
type Model interface {
	Generator
	ChatGenerator
}

// Completer adapts a chat Provider to Model. A standalone prompt is sent as
// a single user message.
type Completer struct {
	provider Provider
	model    string
}

// NewCompleter wraps p. An empty model defers to the provider's configured one.
func NewCompleter(p Provider, model string) *Completer {
	return &Completer{provider: p, model: model}
}

// Generate sends prompt as one user turn and returns the reply text.
func (c *Completer) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return c.complete(ctx, []Message{{Role: RoleUser, Content: prompt}}, opts)
}

// GenerateTurn sends the session transcript and returns the assistant reply.
func (c *Completer) GenerateTurn(ctx context.Context, s Session, opts GenerateOptions) (string, error) {
	return c.complete(ctx, s.Messages(), opts)
}

func (c *Completer) complete(ctx context.Context, msgs []Message, opts GenerateOptions) (string, error) {
	resp, err := c.provider.Chat(ctx, ChatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxNewTokens,
		Stop:        opts.Stop,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	slog.Debug("llm: generation complete",
		"model", resp.Model,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"finish_reason", resp.FinishReason,
	)
	return resp.Content, nil
}
