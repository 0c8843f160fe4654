package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bbiangul/longdoc/chunker"
	"github.com/bbiangul/longdoc/structured"
)

// Ask answers question against text. Each chunk is asked for an answer
// or the NOANSWER sentinel; surviving answers are resolved into one. A
// failed resolution is retried once.
func (r *Resolver) Ask(ctx context.Context, text, question string) (Outcome, Stats) {
	instr := answerInstruction(question)
	budget, err := r.budget(r.cfg.QA, instr)
	if err != nil {
		return Failure{Err: err}, Stats{}
	}
	chunks, err := r.chunker.Chunk(text, budget)
	if err != nil {
		return Failure{Err: err}, Stats{}
	}

	o := r.newOp(len(chunks), r.tok.Count(text), budget)
	o.chunks.Store(int64(len(chunks)))
	out := r.ask(ctx, o, instr, question, chunks)
	return out, o.stats()
}

type chunkAnswer struct {
	flat string
	raw  structured.Result
}

func (r *Resolver) ask(ctx context.Context, o *op, instr, question string, chunks []chunker.Chunk) Outcome {
	found := make([]*chunkAnswer, len(chunks))
	err := r.each(ctx, len(chunks), func(ctx context.Context, i int) error {
		resp, err := r.generate(ctx, o, r.cfg.QA, instr+"\n"+chunks[i].Text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("resolver: chunk skipped", "phase", "qa", "chunk", i, "error", err)
			return nil
		}
		res, ok := structured.Last(resp)
		if !ok {
			slog.Warn("resolver: chunk skipped", "phase", "qa", "chunk", i, "error", ErrNoStructuredResult)
			return nil
		}
		flat := res.Compact().String()
		if flat == "" {
			return nil
		}
		found[i] = &chunkAnswer{flat: flat, raw: res}
		return nil
	})
	if err != nil {
		return Failure{Err: err}
	}

	var answers []string
	var raws []structured.Result
	for _, a := range found {
		if a != nil {
			answers = append(answers, a.flat)
			raws = append(raws, a.raw)
		}
	}
	slog.Debug("resolver: chunk answers collected", "chunks", len(chunks), "answers", len(answers))

	switch len(answers) {
	case 0:
		return NoAnswer{}
	case 1:
		return Found{Result: raws[0]}
	}

	out := r.resolve(ctx, o, answers, question, 0)
	if f, ok := out.(Failure); ok && retryable(ctx, f.Err) {
		slog.Warn("resolver: resolution failed, retrying once", "answers", len(answers), "error", f.Err)
		out = r.resolve(ctx, o, answers, question, 0)
	}
	return out
}

func retryable(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !errors.Is(err, ErrContextTooSmall)
}

// Resolve reduces a list of textual answers to one question into a single
// structured answer. Answers are halved while their joint size exceeds the
// finalize budget; a single oversized answer is re-chunked.
func (r *Resolver) Resolve(ctx context.Context, answers []string, question string) (Outcome, Stats) {
	instr := finalizeAnswerInstruction(question)
	budget, err := r.budget(r.cfg.QAFinalize, instr)
	if err != nil {
		return Failure{Err: err}, Stats{}
	}
	o := r.newOp(len(answers), r.tok.Count(strings.Join(answers, "\n")), budget)
	out := r.resolve(ctx, o, answers, question, 0)
	return out, o.stats()
}

func (r *Resolver) resolve(ctx context.Context, o *op, answers []string, question string, depth int) Outcome {
	if err := ctx.Err(); err != nil {
		return Failure{Err: err}
	}
	if err := o.enter(depth); err != nil {
		return Failure{Err: err}
	}
	if len(answers) == 0 {
		return NoAnswer{}
	}

	instr := finalizeAnswerInstruction(question)
	budget, err := r.budget(r.cfg.QAFinalize, instr)
	if err != nil {
		return Failure{Err: err}
	}

	tokens := r.tok.Count(strings.Join(answers, sectionMarker))
	slog.Debug("resolver: resolving answers",
		"depth", depth, "answers", len(answers), "tokens", tokens, "budget", budget)

	switch {
	case tokens <= budget:
		return r.finalizeAnswers(ctx, o, instr, answers)
	case len(answers) > 1:
		return r.splitAnswers(ctx, o, answers, question, depth)
	default:
		return r.rechunkAnswer(ctx, o, instr, answers[0], question, budget, depth)
	}
}

// finalizeAnswers is the base case: the answers fit one call.
func (r *Resolver) finalizeAnswers(ctx context.Context, o *op, instr string, answers []string) Outcome {
	resp, err := r.generate(ctx, o, r.cfg.QAFinalize, instr+"\n"+strings.Join(answers, "\n"))
	if err != nil {
		return Failure{Err: err}
	}
	res, ok := structured.Last(resp)
	if !ok {
		return Failure{Err: ErrNoStructuredResult}
	}
	if res.HasNoAnswer() {
		return NoAnswer{}
	}
	return Found{Result: res}
}

// splitAnswers resolves each half of the list on its own and then
// resolves the two half results together.
func (r *Resolver) splitAnswers(ctx context.Context, o *op, answers []string, question string, depth int) Outcome {
	mid := (len(answers) + 1) / 2
	halves := [2][]string{answers[:mid], answers[mid:]}
	var outs [2]Outcome

	if r.cfg.Concurrency <= 1 {
		for i, h := range halves {
			outs[i] = r.resolve(ctx, o, h, question, depth+1)
			if f, ok := outs[i].(Failure); ok {
				return f
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, h := range halves {
			g.Go(func() error {
				outs[i] = r.resolve(gctx, o, h, question, depth+1)
				if f, ok := outs[i].(Failure); ok {
					return f.Err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Failure{Err: err}
		}
	}

	var merged []string
	for _, out := range outs {
		switch v := out.(type) {
		case Found:
			merged = append(merged, v.Result.Compact().String())
		case NoAnswer:
		case Failure:
			return v
		}
	}
	if len(merged) == 0 {
		return NoAnswer{}
	}
	return r.resolve(ctx, o, merged, question, depth+1)
}

// rechunkAnswer handles a single answer larger than the budget. Each
// piece is finalized on its own and the surviving fragments are resolved
// together. Any failing piece fails the whole answer.
func (r *Resolver) rechunkAnswer(ctx context.Context, o *op, instr, answer, question string, budget, depth int) Outcome {
	chunks, err := r.chunker.Chunk(answer, budget)
	if err != nil {
		return Failure{Err: err}
	}
	slog.Debug("resolver: re-chunking oversized answer", "depth", depth, "chunks", len(chunks))

	frags := make([]string, len(chunks))
	err = r.each(ctx, len(chunks), func(ctx context.Context, i int) error {
		resp, err := r.generate(ctx, o, r.cfg.QAFinalize, instr+"\n"+chunks[i].Text)
		if err != nil {
			return fmt.Errorf("answer chunk %d: %w", i, err)
		}
		res, ok := structured.Last(resp)
		if !ok {
			return fmt.Errorf("answer chunk %d: %w", i, ErrNoStructuredResult)
		}
		frags[i] = res.Compact().String()
		return nil
	})
	if err != nil {
		return Failure{Err: err}
	}

	var next []string
	for _, f := range frags {
		if f != "" {
			next = append(next, f)
		}
	}
	if len(next) == 0 {
		return NoAnswer{}
	}
	return r.resolve(ctx, o, next, question, depth+1)
}
