package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bbiangul/longdoc"
)

const maxUploadBytes = 100 << 20

type handler struct {
	engine  longdoc.Engine
	timeout time.Duration
}

func newHandler(e longdoc.Engine, timeout time.Duration) *handler {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &handler{engine: e, timeout: timeout}
}

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /questionary", h.handleQuestionary)
	mux.HandleFunc("POST /questionary/upload", h.handleQuestionaryUpload)
	mux.HandleFunc("POST /summarize", h.handleSummarize)
	mux.HandleFunc("POST /summarize/upload", h.handleSummarizeUpload)
	mux.HandleFunc("GET /jobs", h.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.handleGetJob)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /status", h.handleStatus)
	return mux
}

type requestOptions struct {
	NoCache bool `json:"no_cache,omitempty"`
}

func (o *requestOptions) callOptions() []longdoc.CallOption {
	if o != nil && o.NoCache {
		return []longdoc.CallOption{longdoc.WithNoCache()}
	}
	return nil
}

// POST /questionary
func (h *handler) handleQuestionary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req struct {
		Text     string          `json:"text"`
		Question string          `json:"question"`
		Issuer   string          `json:"issuer,omitempty"`
		Options  *requestOptions `json:"options,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ans, err := h.engine.Ask(ctx, req.Text, req.Question, req.Options.callOptions()...)
	h.writeAnswer(w, ans, err, "issuer", req.Issuer)
}

// POST /questionary/upload
// Multipart form with "file" and "question".
func (h *handler) handleQuestionaryUpload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	path, cleanup, ok := saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	var opts []longdoc.CallOption
	if r.FormValue("no_cache") == "true" {
		opts = append(opts, longdoc.WithNoCache())
	}
	ans, err := h.engine.AskFile(ctx, path, r.FormValue("question"), opts...)
	h.writeAnswer(w, ans, err, "file", filepath.Base(path))
}

func (h *handler) writeAnswer(w http.ResponseWriter, ans *longdoc.Answer, err error, logKV ...any) {
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		if status >= http.StatusInternalServerError {
			slog.Error("questionary error", append(logKV, "error", err)...)
		}
		return
	}
	setJobHeaders(w, ans.JobID, ans.Calls, ans.Cached)
	if ans.Status == longdoc.StatusNoAnswer {
		writeJSON(w, http.StatusOK, map[string]string{"message": longdoc.NoAnswerMessage})
		return
	}
	writeJSON(w, http.StatusOK, ans.Fields)
}

// POST /summarize
func (h *handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req struct {
		Text    string          `json:"text"`
		Title   string          `json:"title"`
		Issuer  string          `json:"issuer,omitempty"`
		Options *requestOptions `json:"options,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sum, err := h.engine.Summarize(ctx, req.Text, req.Title, req.Options.callOptions()...)
	h.writeSummary(w, sum, err, "issuer", req.Issuer)
}

// POST /summarize/upload
// Multipart form with "file" and optional "title".
func (h *handler) handleSummarizeUpload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	path, cleanup, ok := saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	var opts []longdoc.CallOption
	if r.FormValue("no_cache") == "true" {
		opts = append(opts, longdoc.WithNoCache())
	}
	sum, err := h.engine.SummarizeFile(ctx, path, r.FormValue("title"), opts...)
	h.writeSummary(w, sum, err, "file", filepath.Base(path))
}

func (h *handler) writeSummary(w http.ResponseWriter, sum *longdoc.Summary, err error, logKV ...any) {
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		if status >= http.StatusInternalServerError {
			slog.Error("summarize error", append(logKV, "error", err)...)
		}
		return
	}
	setJobHeaders(w, sum.JobID, sum.Calls, sum.Cached)
	writeJSON(w, http.StatusOK, sum.Fields)
}

// saveUpload copies the multipart "file" field into a private temp dir.
func saveUpload(w http.ResponseWriter, r *http.Request) (string, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart form with 'file'")
		return "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return "", nil, false
	}
	defer file.Close()

	dir, err := os.MkdirTemp("", "longdoc-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp dir", "error", err)
		return "", nil, false
	}
	cleanup := func() { os.RemoveAll(dir) }

	// Sanitise filename to prevent path traversal.
	path := filepath.Join(dir, filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		cleanup()
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp file", "error", err)
		return "", nil, false
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		cleanup()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return "", nil, false
	}
	dst.Close()
	return path, cleanup, true
}

// errorStatus maps engine errors to a status and a message safe to show.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, longdoc.ErrEmptyText):
		return http.StatusBadRequest, "No text context provided"
	case errors.Is(err, longdoc.ErrEmptyQuestion):
		return http.StatusBadRequest, "No question provided"
	case errors.Is(err, longdoc.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported document format"
	case errors.Is(err, longdoc.ErrParsingFailed):
		return http.StatusUnprocessableEntity, "document could not be parsed"
	case errors.Is(err, longdoc.ErrSummaryFailed):
		return http.StatusInternalServerError, longdoc.SummaryFailedMessage
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, longdoc.ErrClosed):
		return http.StatusServiceUnavailable, "service is shutting down"
	}
	return http.StatusInternalServerError, "question answering failed"
}

func setJobHeaders(w http.ResponseWriter, jobID string, calls int, cached bool) {
	w.Header().Set("X-Job-ID", jobID)
	w.Header().Set("X-Generation-Calls", strconv.Itoa(calls))
	if cached {
		w.Header().Set("X-Cache", "hit")
	}
}

// GET /jobs?kind=ask&limit=50
func (h *handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != "ask" && kind != "summarize" {
		writeError(w, http.StatusBadRequest, "kind must be ask or summarize")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	jobs, err := h.engine.Jobs(r.Context(), kind, limit)
	if err != nil {
		if errors.Is(err, longdoc.ErrStoreDisabled) {
			writeError(w, http.StatusNotFound, "job store disabled")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		slog.Error("list jobs error", "error", err)
		return
	}
	if jobs == nil {
		jobs = []longdoc.Job{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs": jobs,
	})
}

// GET /jobs/{id}
func (h *handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, longdoc.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, longdoc.ErrStoreDisabled):
			writeError(w, http.StatusNotFound, "job store disabled")
		default:
			writeError(w, http.StatusInternalServerError, "failed to get job")
			slog.Error("get job error", "id", r.PathValue("id"), "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// GET /status
func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.Config()
	resp := map[string]any{
		"environment":  cfg.Environment,
		"project_name": cfg.ProjectName,
		"model":        cfg.Chat.Model,
		"provider":     cfg.Chat.Provider,
		"phases": map[string]any{
			"qa":               cfg.QA,
			"qa_finalize":      cfg.QAFinalize,
			"summary":          cfg.Summary,
			"summary_finalize": cfg.SummaryFinalize,
		},
		"concurrency":        cfg.Concurrency,
		"generation_timeout": cfg.GenerationTimeout.String(),
		"timeout_retries":    cfg.TimeoutRetries,
		"tokenizer":          cfg.Tokenizer.Mode,
	}
	if stats, err := h.engine.JobStats(r.Context()); err == nil {
		resp["jobs"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
