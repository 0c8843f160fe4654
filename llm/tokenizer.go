package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bbiangul/longdoc/chunker"
)

// RemoteTokenizer counts tokens with a llama.cpp-style POST /tokenize
// endpoint so budgets match the served model exactly. Callers should Ping
// it once before use. The first failed count switches it to
// chunker.Estimator for the rest of its life, so a flapping endpoint never
// mixes the two counts for the same text.
type RemoteTokenizer struct {
	url      string
	client   *http.Client
	fallback chunker.Estimator
	degraded atomic.Bool
}

// NewRemoteTokenizer returns a tokenizer for the server at baseURL.
func NewRemoteTokenizer(baseURL string, timeout time.Duration) *RemoteTokenizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteTokenizer{
		url:    strings.TrimRight(baseURL, "/") + "/tokenize",
		client: &http.Client{Timeout: timeout},
	}
}

// Ping checks that the endpoint answers a tokenize request.
func (t *RemoteTokenizer) Ping(ctx context.Context) error {
	if _, err := t.Tokenize(ctx, "ping"); err != nil {
		return fmt.Errorf("tokenizer %s: %w", t.url, err)
	}
	return nil
}

// Count returns the model's token count for text, or the estimate once the
// endpoint has failed.
func (t *RemoteTokenizer) Count(text string) int {
	if t.degraded.Load() {
		return t.fallback.Count(text)
	}
	n, err := t.Tokenize(context.Background(), text)
	if err != nil {
		if !t.degraded.Swap(true) {
			slog.Warn("llm: tokenizer endpoint failed, using estimate from now on",
				"url", t.url, "error", err)
		}
		return t.fallback.Count(text)
	}
	return n
}

type tokenizeRequest struct {
	Content string `json:"content"`
}

type tokenizeResponse struct {
	Tokens []json.RawMessage `json:"tokens"`
}

// Tokenize asks the server for the token count of text.
func (t *RemoteTokenizer) Tokenize(ctx context.Context, text string) (int, error) {
	data, err := json.Marshal(tokenizeRequest{Content: text})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tokenize request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading tokenize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tokenize error %d: %s", resp.StatusCode, string(body))
	}

	var out tokenizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decoding tokenize response: %w", err)
	}
	return len(out.Tokens), nil
}
