package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bbiangul/longdoc/llm"
	"github.com/bbiangul/longdoc/structured"
)

// Summarize produces one summary of text. Every chunk is summarized on its
// own; chunks that fail are skipped. The partial summaries are then
// finalized into one result shaped like {"Title", "Final Summary"}.
func (r *Resolver) Summarize(ctx context.Context, text, title string) (structured.Result, Stats, error) {
	instr := summaryInstruction()
	budget, err := r.budget(r.cfg.Summary, instr)
	if err != nil {
		return structured.Result{}, Stats{}, err
	}
	chunks, err := r.chunker.Chunk(text, budget)
	if err != nil {
		return structured.Result{}, Stats{}, err
	}

	o := r.newOp(len(chunks), r.tok.Count(text), budget)
	o.chunks.Store(int64(len(chunks)))

	session := llm.OpenSession(instr)
	partials := make([]*structured.Result, len(chunks))
	err = r.each(ctx, len(chunks), func(ctx context.Context, i int) error {
		turn := session.WithUser(chunks[i].Text)
		if n := r.tok.Count(turn.Text()) + r.cfg.Summary.MaxGenerated; n > r.cfg.Summary.ContextSize {
			slog.Warn("resolver: chunk skipped", "phase", "summary", "chunk", i,
				"error", "prompt exceeds context window", "tokens", n, "context", r.cfg.Summary.ContextSize)
			return nil
		}
		resp, err := r.generateTurn(ctx, o, r.cfg.Summary, turn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("resolver: chunk skipped", "phase", "summary", "chunk", i, "error", err)
			return nil
		}
		res, ok := structured.Last(resp)
		if !ok {
			slog.Warn("resolver: chunk skipped", "phase", "summary", "chunk", i, "error", ErrNoStructuredResult)
			return nil
		}
		partials[i] = &res
		return nil
	})
	if err != nil {
		return structured.Result{}, o.stats(), err
	}

	var collected []structured.Result
	for _, p := range partials {
		if p != nil {
			collected = append(collected, *p)
		}
	}
	if len(collected) == 0 {
		return structured.Result{}, o.stats(), ErrNoSummary
	}
	slog.Debug("resolver: section summaries collected", "chunks", len(chunks), "summaries", len(collected))

	res, err := r.finalize(ctx, o, collected, title, 0)
	return res, o.stats(), err
}

// Finalize reduces partial summaries of one text into a single summary.
func (r *Resolver) Finalize(ctx context.Context, partials []structured.Result, title string) (structured.Result, Stats, error) {
	instr := finalizeSummaryInstruction(title)
	budget, err := r.budget(r.cfg.SummaryFinalize, instr)
	if err != nil {
		return structured.Result{}, Stats{}, err
	}
	o := r.newOp(len(partials), r.tok.Count(flatten(partials)), budget)
	res, err := r.finalize(ctx, o, partials, title, 0)
	return res, o.stats(), err
}

func flatten(partials []structured.Result) string {
	var b strings.Builder
	for _, p := range partials {
		b.WriteString(p.String())
	}
	return b.String()
}

func (r *Resolver) finalize(ctx context.Context, o *op, partials []structured.Result, title string, depth int) (structured.Result, error) {
	if err := ctx.Err(); err != nil {
		return structured.Result{}, err
	}
	if err := o.enter(depth); err != nil {
		return structured.Result{}, err
	}
	if len(partials) == 0 {
		return structured.Result{}, ErrNoSummary
	}

	instr := finalizeSummaryInstruction(title)
	budget, err := r.budget(r.cfg.SummaryFinalize, instr)
	if err != nil {
		return structured.Result{}, err
	}

	joined := flatten(partials)
	tokens := r.tok.Count(joined)
	slog.Debug("resolver: finalizing summaries",
		"depth", depth, "summaries", len(partials), "tokens", tokens, "budget", budget)

	session := llm.OpenSession(instr)
	if tokens <= budget {
		resp, err := r.generateTurn(ctx, o, r.cfg.SummaryFinalize, session.WithUser(joined))
		if err != nil {
			return structured.Result{}, err
		}
		objs := structured.Extract(resp)
		if len(objs) == 0 {
			return structured.Result{}, ErrNoStructuredResult
		}
		return structured.Merge(objs), nil
	}

	chunks, err := r.chunker.Chunk(joined, budget)
	if err != nil {
		return structured.Result{}, err
	}
	next := make([]*structured.Result, len(chunks))
	err = r.each(ctx, len(chunks), func(ctx context.Context, i int) error {
		resp, err := r.generateTurn(ctx, o, r.cfg.SummaryFinalize, session.WithUser(chunks[i].Text))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("resolver: chunk skipped", "phase", "summary_finalize", "chunk", i, "depth", depth, "error", err)
			return nil
		}
		objs := structured.Extract(resp)
		if len(objs) == 0 {
			slog.Warn("resolver: chunk skipped", "phase", "summary_finalize", "chunk", i, "depth", depth,
				"error", ErrNoStructuredResult)
			return nil
		}
		merged := structured.Merge(objs)
		next[i] = &merged
		return nil
	})
	if err != nil {
		return structured.Result{}, err
	}

	var collected []structured.Result
	for _, p := range next {
		if p != nil {
			collected = append(collected, *p)
		}
	}
	if len(collected) == 0 {
		return structured.Result{}, fmt.Errorf("%w: all %d chunks failed at depth %d", ErrNoSummary, len(chunks), depth)
	}
	return r.finalize(ctx, o, collected, title, depth+1)
}
