package chunker

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Estimator
// ---------------------------------------------------------------------------

func TestEstimatorCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 2},
		{"short sentence.", 3},
		{"a b c d e f g h i j", 13},
	}
	for _, tt := range tests {
		if got := (Estimator{}).Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Sentence segmentation
// ---------------------------------------------------------------------------

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("The cat sat. The dog ran!  Did it rain? Yes.")
	want := []string{"The cat sat.", "The dog ran!", "Did it rain?", "Yes."}
	if len(got) != len(want) {
		t.Fatalf("SplitSentences returned %d sentences %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSentencesBlank(t *testing.T) {
	if got := SplitSentences("   \n\t "); len(got) != 0 {
		t.Errorf("SplitSentences(blank) = %q, want none", got)
	}
}

// ---------------------------------------------------------------------------
// Chunk
// ---------------------------------------------------------------------------

func TestChunkEmptyText(t *testing.T) {
	chunks, err := New(nil).Chunk("", 50)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestChunkInvalidBudget(t *testing.T) {
	for _, budget := range []int{0, -5} {
		_, err := New(nil).Chunk("Some text.", budget)
		if !errors.Is(err, ErrInvalidBudget) {
			t.Errorf("Chunk(budget=%d) error = %v, want ErrInvalidBudget", budget, err)
		}
	}
}

func TestChunkShortSentenceRepeats(t *testing.T) {
	text := strings.Repeat("short sentence. ", 120)
	c := New(Estimator{})

	chunks, err := c.Chunk(text, 50)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	total := 0
	for i, ch := range chunks {
		if ch.Tokens > 50 {
			t.Errorf("chunk %d has %d tokens, budget 50", i, ch.Tokens)
		}
		if ch.Index != i {
			t.Errorf("chunk %d Index = %d", i, ch.Index)
		}
		total += ch.Sentences
	}
	if total != 120 {
		t.Errorf("chunks hold %d sentences, want 120", total)
	}
}

func TestChunkBudgetInvariant(t *testing.T) {
	texts := []string{
		"Alpha beta gamma. Delta epsilon. Zeta eta theta iota kappa lambda mu. Nu.",
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40),
		"Tiny. " + strings.Repeat("word ", 90) + "end. Tail sentence here.",
	}
	for _, text := range texts {
		for _, budget := range []int{1, 5, 13, 50, 500} {
			chunks, err := New(nil).Chunk(text, budget)
			if err != nil {
				t.Fatalf("Chunk: %v", err)
			}
			for i, ch := range chunks {
				if ch.Oversized(budget) && ch.Sentences != 1 {
					t.Errorf("budget %d: chunk %d has %d tokens across %d sentences",
						budget, i, ch.Tokens, ch.Sentences)
				}
			}
		}
	}
}

func TestChunkCoverage(t *testing.T) {
	text := "First sentence is here. Second one follows! Is there a third? " +
		strings.Repeat("Filler words make this longer. ", 25) + "Last."
	chunks, err := New(nil).Chunk(text, 20)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	var rebuilt []string
	for _, ch := range chunks {
		rebuilt = append(rebuilt, ch.Text)
	}
	got := strings.Fields(strings.Join(rebuilt, " "))
	want := strings.Fields(text)
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("chunks do not reproduce the source text\n got: %q\nwant: %q", got, want)
	}
}

func TestChunkOversizedSentenceIsSingleton(t *testing.T) {
	long := strings.Repeat("word ", 60) + "done."
	text := "Short intro. " + long + " Short outro."
	chunks, err := New(nil).Chunk(text, 10)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	if !chunks[1].Oversized(10) || chunks[1].Sentences != 1 {
		t.Errorf("middle chunk should be a lone oversized sentence, got %+v", chunks[1])
	}
	if chunks[0].Text != "Short intro." {
		t.Errorf("chunks[0] = %q", chunks[0].Text)
	}
}

func TestChunkLeadingOversizedSentence(t *testing.T) {
	text := strings.Repeat("word ", 30) + "done. Next."
	chunks, err := New(nil).Chunk(text, 5)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	for i, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestChunkUsesTokenizer(t *testing.T) {
	calls := 0
	tok := TokenizerFunc(func(s string) int {
		calls++
		return len(s)
	})
	chunks, err := New(tok).Chunk("abcd. efgh. ijkl.", 12)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if calls == 0 {
		t.Fatal("custom tokenizer was not used")
	}
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks with char-count tokenizer, got %d", len(chunks))
	}
}
