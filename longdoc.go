// Package longdoc answers questions about, and summarizes, texts larger
// than a generation model's context window.
package longdoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bbiangul/longdoc/chunker"
	"github.com/bbiangul/longdoc/llm"
	"github.com/bbiangul/longdoc/parser"
	"github.com/bbiangul/longdoc/resolver"
	"github.com/bbiangul/longdoc/store"
	"github.com/bbiangul/longdoc/structured"
)

// User-facing texts for the two terminal non-results.
const (
	NoAnswerMessage      = "It seems there is no answer in the text."
	SummaryFailedMessage = "Failed to summarize the text."
)

// DefaultTitle is used when a summary is requested without a title.
const DefaultTitle = "Untitled"

// Job statuses.
const (
	StatusFound    = store.StatusFound
	StatusNoAnswer = store.StatusNoAnswer
	StatusFailed   = store.StatusFailed
)

// Engine is the main entry point for long-document Q&A and summarization.
type Engine interface {
	// Ask answers question from text. A text without an answer is not an
	// error: the Answer carries StatusNoAnswer and NoAnswerMessage.
	Ask(ctx context.Context, text, question string, opts ...CallOption) (*Answer, error)

	// Summarize produces one {"Title", "Final Summary"} result for text.
	Summarize(ctx context.Context, text, title string, opts ...CallOption) (*Summary, error)

	// AskFile parses a document file and runs Ask over its text.
	AskFile(ctx context.Context, path, question string, opts ...CallOption) (*Answer, error)

	// SummarizeFile parses a document file and runs Summarize over its text.
	SummarizeFile(ctx context.Context, path, title string, opts ...CallOption) (*Summary, error)

	// Jobs lists recorded jobs, newest first. kind filters by "ask" or
	// "summarize"; limit <= 0 lists all.
	Jobs(ctx context.Context, kind string, limit int) ([]Job, error)

	// Job returns one recorded job.
	Job(ctx context.Context, id string) (*Job, error)

	// JobStats counts recorded jobs by status.
	JobStats(ctx context.Context) (*store.DBStats, error)

	// PruneJobs deletes jobs recorded before cutoff, cached results
	// included, and returns how many were removed.
	PruneJobs(ctx context.Context, cutoff time.Time) (int64, error)

	// Config returns the effective configuration.
	Config() Config

	// Close cleanly shuts down the engine.
	Close() error
}

// Answer is the result of Ask.
type Answer struct {
	JobID   string            `json:"job_id"`
	Status  string            `json:"status"`
	Fields  structured.Result `json:"answer"`
	Message string            `json:"message,omitempty"`
	Calls   int               `json:"calls"`
	Depth   int               `json:"depth"`
	Chunks  int               `json:"chunks"`
	Cached  bool              `json:"cached"`
	Elapsed time.Duration     `json:"elapsed_ns"`
}

// Summary is the result of Summarize.
type Summary struct {
	JobID   string            `json:"job_id"`
	Title   string            `json:"title"`
	Fields  structured.Result `json:"summary"`
	Calls   int               `json:"calls"`
	Depth   int               `json:"depth"`
	Chunks  int               `json:"chunks"`
	Cached  bool              `json:"cached"`
	Elapsed time.Duration     `json:"elapsed_ns"`
}

// Job is a recorded Ask or Summarize call.
type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Prompt      string          `json:"prompt"`
	ContentHash string          `json:"content_hash"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Model       string          `json:"model,omitempty"`
	Calls       int             `json:"calls"`
	Depth       int             `json:"depth"`
	Chunks      int             `json:"chunks"`
	ElapsedMs   int64           `json:"elapsed_ms"`
	CreatedAt   string          `json:"created_at"`
}

// Option configures engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	model llm.Model
	tok   chunker.Tokenizer
}

// WithModel replaces the configured chat provider with m.
func WithModel(m llm.Model) Option {
	return func(o *engineOptions) { o.model = m }
}

// WithTokenizer replaces the configured token counter.
func WithTokenizer(t chunker.Tokenizer) Option {
	return func(o *engineOptions) { o.tok = t }
}

// CallOption configures a single Ask or Summarize call.
type CallOption func(*callOptions)

type callOptions struct {
	noCache bool
}

// WithNoCache skips the result cache for this call. The job is still
// recorded.
func WithNoCache() CallOption {
	return func(o *callOptions) { o.noCache = true }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     *store.Store
	resolver  *resolver.Resolver
	parsers   *parser.Registry
	modelName string
	settings  string
	closed    atomic.Bool
}

// New creates a longdoc engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &engineOptions{}
	for _, o := range opts {
		o(options)
	}

	model := options.model
	modelName := cfg.Chat.Model
	if model == nil {
		p, err := llm.NewProvider(cfg.Chat.providerConfig())
		if err != nil {
			return nil, fmt.Errorf("creating chat provider: %w", err)
		}
		model = llm.NewCompleter(p, cfg.Chat.Model)
	} else {
		modelName = ""
	}

	tok := options.tok
	if tok == nil {
		var err error
		if tok, err = newTokenizer(cfg); err != nil {
			return nil, err
		}
	}

	var s *store.Store
	if !cfg.DisableStore {
		var err error
		s, err = store.New(cfg.resolveDBPath())
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}

	return &engine{
		cfg:       cfg,
		store:     s,
		resolver:  resolver.New(model, tok, cfg.resolverConfig()),
		parsers:   parser.NewRegistry(),
		modelName: modelName,
		settings:  cfg.settingsFingerprint(),
	}, nil
}

// newTokenizer builds the configured token counter. A remote counter must
// answer once here.
func newTokenizer(cfg Config) (chunker.Tokenizer, error) {
	if cfg.Tokenizer.Mode != "remote" {
		return chunker.Estimator{}, nil
	}
	base := cfg.Tokenizer.BaseURL
	if base == "" {
		// llama.cpp serves /tokenize at the server root, beside /v1.
		base = strings.TrimSuffix(strings.TrimRight(cfg.Chat.BaseURL, "/"), "/v1")
	}
	tok := llm.NewRemoteTokenizer(base, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tok.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenizerUnavailable, err)
	}
	return tok, nil
}

func (e *engine) Config() Config { return e.cfg }

// Ask runs the question answering pipeline.
func (e *engine) Ask(ctx context.Context, text, question string, opts ...CallOption) (*Answer, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	options := callOpts(opts)
	key := e.cacheKey(store.KindAsk, question, text)

	if j := e.cached(ctx, key, options); j != nil {
		ans := &Answer{JobID: j.ID, Status: j.Status, Calls: j.Calls, Depth: j.Depth, Chunks: j.Chunks, Cached: true}
		if j.Status == StatusNoAnswer {
			ans.Message = NoAnswerMessage
		} else if err := json.Unmarshal([]byte(j.Result), &ans.Fields); err != nil {
			slog.Warn("longdoc: cached result unreadable, recomputing", "job", j.ID, "error", err)
			ans = nil
		}
		if ans != nil {
			return ans, nil
		}
	}

	start := time.Now()
	out, stats := e.resolver.Ask(ctx, text, question)
	elapsed := time.Since(start)

	job := store.Job{
		ID:          uuid.NewString(),
		Kind:        key.Kind,
		Prompt:      key.Prompt,
		ContentHash: key.ContentHash,
		Model:       key.Model,
		Settings:    key.Settings,
		Calls:       stats.Calls,
		Depth:       stats.Depth,
		Chunks:      stats.Chunks,
		ElapsedMS:   elapsed.Milliseconds(),
	}
	ans := &Answer{JobID: job.ID, Calls: stats.Calls, Depth: stats.Depth, Chunks: stats.Chunks, Elapsed: elapsed}

	var err error
	switch v := out.(type) {
	case resolver.Found:
		job.Status = StatusFound
		job.Result = marshalResult(v.Result)
		ans.Status = StatusFound
		ans.Fields = v.Result
	case resolver.NoAnswer:
		job.Status = StatusNoAnswer
		ans.Status = StatusNoAnswer
		ans.Message = NoAnswerMessage
	case resolver.Failure:
		job.Status = StatusFailed
		job.Error = v.Err.Error()
		err = fmt.Errorf("%w: %w", ErrAnswerFailed, v.Err)
	}

	slog.Info("longdoc: question answered",
		"job", job.ID, "status", job.Status, "chunks", stats.Chunks,
		"calls", stats.Calls, "depth", stats.Depth, "elapsed", elapsed.Round(time.Millisecond))
	e.record(ctx, job)

	if err != nil {
		return nil, err
	}
	return ans, nil
}

// Summarize runs the summarization pipeline.
func (e *engine) Summarize(ctx context.Context, text, title string, opts ...CallOption) (*Summary, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	options := callOpts(opts)
	key := e.cacheKey(store.KindSummarize, title, text)

	if j := e.cached(ctx, key, options); j != nil {
		sum := &Summary{JobID: j.ID, Title: title, Calls: j.Calls, Depth: j.Depth, Chunks: j.Chunks, Cached: true}
		if err := json.Unmarshal([]byte(j.Result), &sum.Fields); err == nil {
			return sum, nil
		}
		slog.Warn("longdoc: cached result unreadable, recomputing", "job", j.ID)
	}

	start := time.Now()
	res, stats, err := e.resolver.Summarize(ctx, text, title)
	elapsed := time.Since(start)

	job := store.Job{
		ID:          uuid.NewString(),
		Kind:        key.Kind,
		Prompt:      key.Prompt,
		ContentHash: key.ContentHash,
		Model:       key.Model,
		Settings:    key.Settings,
		Calls:       stats.Calls,
		Depth:       stats.Depth,
		Chunks:      stats.Chunks,
		ElapsedMS:   elapsed.Milliseconds(),
	}
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusFound
		job.Result = marshalResult(res)
	}

	slog.Info("longdoc: text summarized",
		"job", job.ID, "status", job.Status, "chunks", stats.Chunks,
		"calls", stats.Calls, "depth", stats.Depth, "elapsed", elapsed.Round(time.Millisecond))
	e.record(ctx, job)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSummaryFailed, err)
	}
	return &Summary{
		JobID:   job.ID,
		Title:   title,
		Fields:  res,
		Calls:   stats.Calls,
		Depth:   stats.Depth,
		Chunks:  stats.Chunks,
		Elapsed: elapsed,
	}, nil
}

// AskFile parses path and answers question from its text.
func (e *engine) AskFile(ctx context.Context, path, question string, opts ...CallOption) (*Answer, error) {
	text, _, err := e.parseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.Ask(ctx, text, question, opts...)
}

// SummarizeFile parses path and summarizes its text. Without a title the
// document's own title is used when the format carries one.
func (e *engine) SummarizeFile(ctx context.Context, path, title string, opts ...CallOption) (*Summary, error) {
	text, docTitle, err := e.parseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		title = docTitle
	}
	return e.Summarize(ctx, text, title, opts...)
}

// parseFile returns the flattened text of path and its title, if any.
func (e *engine) parseFile(ctx context.Context, path string) (string, string, error) {
	res, err := e.parsers.Parse(ctx, path)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedFormat) {
			return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, parser.FormatOf(path))
		}
		return "", "", fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}
	text := res.Text()
	slog.Debug("longdoc: document parsed",
		"path", path, "format", parser.FormatOf(path), "pages", res.Pages,
		"sections", len(res.Sections), "chars", len(text))
	if strings.TrimSpace(text) == "" {
		return "", "", ErrEmptyText
	}
	return text, res.Title, nil
}

// Jobs lists recorded jobs.
func (e *engine) Jobs(ctx context.Context, kind string, limit int) ([]Job, error) {
	if err := e.storeReady(); err != nil {
		return nil, err
	}
	rows, err := e.store.ListJobs(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	jobs := make([]Job, len(rows))
	for i, r := range rows {
		jobs[i] = toJob(r)
	}
	return jobs, nil
}

// Job returns one recorded job.
func (e *engine) Job(ctx context.Context, id string) (*Job, error) {
	if err := e.storeReady(); err != nil {
		return nil, err
	}
	r, err := e.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	j := toJob(*r)
	return &j, nil
}

// JobStats counts recorded jobs by status.
func (e *engine) JobStats(ctx context.Context) (*store.DBStats, error) {
	if err := e.storeReady(); err != nil {
		return nil, err
	}
	return e.store.DBStats(ctx)
}

// PruneJobs deletes jobs recorded before cutoff.
func (e *engine) PruneJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := e.storeReady(); err != nil {
		return 0, err
	}
	n, err := e.store.PruneJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning jobs: %w", err)
	}
	slog.Info("longdoc: jobs pruned", "removed", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	return n, nil
}

// Close releases the job log.
func (e *engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

func (e *engine) storeReady() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.store == nil {
		return ErrStoreDisabled
	}
	return nil
}

func (e *engine) cacheKey(kind, prompt, text string) store.CacheKey {
	return store.CacheKey{
		Kind:        kind,
		Prompt:      prompt,
		ContentHash: store.ContentHash(text),
		Model:       e.modelName,
		Settings:    e.settings,
	}
}

// cached returns a previous successful job for the same request, or nil.
func (e *engine) cached(ctx context.Context, key store.CacheKey, o callOptions) *store.Job {
	if e.store == nil || !e.cfg.Cache || o.noCache {
		return nil
	}
	j, err := e.store.CachedResult(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("longdoc: cache lookup failed", "kind", key.Kind, "error", err)
		}
		return nil
	}
	slog.Debug("longdoc: cache hit", "kind", key.Kind, "job", j.ID)
	return j
}

// record writes job to the log. A failed write is logged, never returned.
func (e *engine) record(ctx context.Context, job store.Job) {
	if e.store == nil {
		return
	}
	if err := e.store.InsertJob(context.WithoutCancel(ctx), job); err != nil {
		slog.Warn("longdoc: recording job failed", "job", job.ID, "error", err)
	}
}

func callOpts(opts []CallOption) callOptions {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func marshalResult(r structured.Result) string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

func toJob(r store.Job) Job {
	j := Job{
		ID:          r.ID,
		Kind:        r.Kind,
		Prompt:      r.Prompt,
		ContentHash: r.ContentHash,
		Status:      r.Status,
		Error:       r.Error,
		Model:       r.Model,
		Calls:       r.Calls,
		Depth:       r.Depth,
		Chunks:      r.Chunks,
		ElapsedMs:   r.ElapsedMS,
		CreatedAt:   r.CreatedAt,
	}
	if r.Result != "" {
		j.Result = json.RawMessage(r.Result)
	}
	return j
}
