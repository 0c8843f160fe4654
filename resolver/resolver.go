// Package resolver drives a bounded-context generation model over texts
// larger than its window. Text is chunked, each chunk is sent through one
// generation call, and partial results are recursively merged until a
// single result fits.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bbiangul/longdoc/chunker"
	"github.com/bbiangul/longdoc/llm"
)

// Phase sizes one kind of generation call.
type Phase struct {
	ContextSize  int `json:"context_size" yaml:"context_size" mapstructure:"context_size"`
	MaxGenerated int `json:"max_generated" yaml:"max_generated" mapstructure:"max_generated"`
}

// Config holds resolver configuration.
type Config struct {
	QA              Phase
	QAFinalize      Phase
	Summary         Phase
	SummaryFinalize Phase

	// Concurrency caps simultaneous generation calls. 1 issues calls one
	// at a time in document order.
	Concurrency int

	// Timeout bounds a single generation call. Expiry is retried up to
	// TimeoutRetries times; other failures are not.
	Timeout        time.Duration
	TimeoutRetries int
	RetryDelay     time.Duration

	// MaxDepth caps recursion. 0 derives the cap from the input size.
	MaxDepth int

	Temperature float64
	Stop        []string
}

// DefaultConfig returns the reference phase sizes with serialized calls.
func DefaultConfig() Config {
	return Config{
		QA:              Phase{ContextSize: 2048, MaxGenerated: 600},
		QAFinalize:      Phase{ContextSize: 2048, MaxGenerated: 500},
		Summary:         Phase{ContextSize: 1845, MaxGenerated: 300},
		SummaryFinalize: Phase{ContextSize: 2048, MaxGenerated: 500},
		Concurrency:     1,
		Timeout:         2 * time.Minute,
		TimeoutRetries:  2,
		RetryDelay:      500 * time.Millisecond,
	}
}

// Resolver runs question answering and summarization over long texts.
// It is safe for concurrent use.
type Resolver struct {
	model   llm.Model
	tok     chunker.Tokenizer
	chunker *chunker.Chunker
	cfg     Config
	sem     *semaphore.Weighted
}

// New creates a resolver. A nil tokenizer falls back to chunker.Estimator.
func New(model llm.Model, tok chunker.Tokenizer, cfg Config) *Resolver {
	if tok == nil {
		tok = chunker.Estimator{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.TimeoutRetries < 0 {
		cfg.TimeoutRetries = 0
	}
	return &Resolver{
		model:   model,
		tok:     tok,
		chunker: chunker.New(tok),
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// Config returns the effective configuration.
func (r *Resolver) Config() Config { return r.cfg }

// op tracks one top-level operation across recursion frames.
type op struct {
	calls    atomic.Int64
	maxDepth atomic.Int64
	chunks   atomic.Int64
	limit    int
}

func (o *op) stats() Stats {
	return Stats{
		Calls:  int(o.calls.Load()),
		Depth:  int(o.maxDepth.Load()),
		Chunks: int(o.chunks.Load()),
	}
}

// enter records a recursion frame at depth and fails once the guard trips.
func (o *op) enter(depth int) error {
	d := int64(depth)
	for {
		cur := o.maxDepth.Load()
		if d <= cur || o.maxDepth.CompareAndSwap(cur, d) {
			break
		}
	}
	if depth > o.limit {
		return fmt.Errorf("%w: depth %d, limit %d", ErrDepthExceeded, depth, o.limit)
	}
	return nil
}

// newOp starts an operation whose recursion is bounded by the number of
// parts n and the text size in budgets.
func (r *Resolver) newOp(n, tokens, budget int) *op {
	o := &op{limit: r.cfg.MaxDepth}
	if o.limit <= 0 {
		o.limit = depthLimit(n, tokens, budget)
	}
	return o
}

// depthLimit allows two frames per halving of n and two per budget-sized
// span of text, plus slack for the final merges.
func depthLimit(n, tokens, budget int) int {
	if budget < 1 {
		budget = 1
	}
	if n < 1 {
		n = 1
	}
	return 2*bits.Len(uint(n)) + 2*(tokens/budget) + 8
}

// budget returns the input tokens left for p once the instruction and the
// generation allowance are reserved.
func (r *Resolver) budget(p Phase, instruction string) (int, error) {
	instr := r.tok.Count(instruction)
	b := p.ContextSize - instr - p.MaxGenerated
	if b <= 0 {
		return 0, fmt.Errorf("%w: context %d, instruction %d, generation %d",
			ErrContextTooSmall, p.ContextSize, instr, p.MaxGenerated)
	}
	return b, nil
}

// call runs one generation through the shared pool. A call that hits the
// per-call timeout is retried; anything else fails at once.
func (r *Resolver) call(ctx context.Context, o *op, p Phase, gen func(context.Context, llm.GenerateOptions) (string, error)) (string, error) {
	opts := llm.GenerateOptions{
		MaxNewTokens: p.MaxGenerated,
		Stop:         r.cfg.Stop,
		Temperature:  r.cfg.Temperature,
	}

	var out string
	err := retry.Do(
		func() error {
			if err := r.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer r.sem.Release(1)

			o.calls.Add(1)
			cctx := ctx
			if r.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
				defer cancel()
			}
			s, err := gen(cctx, opts)
			if err != nil {
				return err
			}
			out = s
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.cfg.TimeoutRetries)+1),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("resolver: generation timed out, retrying",
				"attempt", n+1, "timeout", r.cfg.Timeout)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return out, nil
}

func (r *Resolver) generate(ctx context.Context, o *op, p Phase, prompt string) (string, error) {
	return r.call(ctx, o, p, func(ctx context.Context, opts llm.GenerateOptions) (string, error) {
		return r.model.Generate(ctx, prompt, opts)
	})
}

func (r *Resolver) generateTurn(ctx context.Context, o *op, p Phase, s llm.Session) (string, error) {
	return r.call(ctx, o, p, func(ctx context.Context, opts llm.GenerateOptions) (string, error) {
		return r.model.GenerateTurn(ctx, s, opts)
	})
}

// each runs fn for indexes 0..n-1. With a concurrency of 1 the calls run
// in order on the caller's goroutine. Callers write results into
// index-addressed slots so order is kept either way. The first error
// returned by fn stops the loop.
func (r *Resolver) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if r.cfg.Concurrency <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
