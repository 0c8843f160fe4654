package chunker

import (
	"errors"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// ErrInvalidBudget is returned when a chunk budget is not positive.
var ErrInvalidBudget = errors.New("chunker: token budget must be positive")

// Tokenizer counts tokens the way the target model would.
type Tokenizer interface {
	Count(text string) int
}

// TokenizerFunc adapts an ordinary function to the Tokenizer interface.
type TokenizerFunc func(text string) int

// Count calls f(text).
func (f TokenizerFunc) Count(text string) int { return f(text) }

// Estimator approximates token counts with a word-based heuristic:
// tokens ~ words * 1.3. It is the fallback when no model tokenizer is
// reachable.
type Estimator struct{}

// Count returns the estimated token count of text.
func (Estimator) Count(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// Chunk is a sentence-aligned slice of a larger text.
type Chunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Tokens    int    `json:"tokens"`
	Sentences int    `json:"sentences"`
}

// Oversized reports whether the chunk exceeds budget. Only a chunk made of
// a single sentence can do that.
func (c Chunk) Oversized(budget int) bool {
	return c.Tokens > budget
}

// Chunker splits text into token-budgeted chunks without cutting a
// sentence in two.
type Chunker struct {
	tok Tokenizer
}

// New returns a Chunker that measures text with tok.
// A nil tokenizer falls back to Estimator.
func New(tok Tokenizer) *Chunker {
	if tok == nil {
		tok = Estimator{}
	}
	return &Chunker{tok: tok}
}

// Chunk greedily packs sentences into chunks of at most budget tokens.
// A sentence that alone exceeds the budget becomes its own chunk; it is
// logged, not split further.
func (c *Chunker) Chunk(text string, budget int) ([]Chunk, error) {
	if budget <= 0 {
		return nil, ErrInvalidBudget
	}

	var (
		chunks        []Chunk
		current       []string
		currentTokens int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, " ")
		ch := Chunk{
			Index:     len(chunks),
			Text:      body,
			Tokens:    c.tok.Count(body),
			Sentences: len(current),
		}
		if ch.Oversized(budget) {
			slog.Warn("chunker: sentence exceeds budget, keeping it whole",
				"chunk", ch.Index, "tokens", ch.Tokens, "budget", budget)
		}
		chunks = append(chunks, ch)
		current = current[:0]
		currentTokens = 0
	}

	for _, sent := range SplitSentences(text) {
		sentTokens := c.tok.Count(sent)

		if currentTokens+sentTokens > budget {
			flush()
		}

		current = append(current, sent)
		currentTokens += sentTokens
	}
	flush()

	return chunks, nil
}

// SplitSentences segments text into trimmed sentences. Unicode sentence
// boundaries (UAX #29) come first; each segment is then split again on
// terminal punctuation followed by whitespace, because UAX #29 keeps
// "one. two." together when the next word is lowercase. Blank segments
// are dropped.
func SplitSentences(text string) []string {
	var out []string
	seg := sentences.FromString(text)
	for seg.Next() {
		out = append(out, splitTerminals(seg.Value())...)
	}
	return out
}

// splitTerminals splits on '.', '?' or '!' followed by whitespace.
func splitTerminals(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	emit := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			emit()
		}
	}
	emit()
	return out
}
