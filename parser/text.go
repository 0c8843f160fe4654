package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser reads plain text and markdown as a single section. A markdown
// file that opens with a level-one heading gets that heading as its title.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md", "markdown"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	res := &ParseResult{}
	body := strings.TrimSpace(string(data))
	if body == "" {
		return res, nil
	}
	if f := FormatOf(path); f == "md" || f == "markdown" {
		res.Title = markdownTitle(body)
	}
	res.Sections = []Section{{Content: body}}
	return res, nil
}

// markdownTitle returns the text of a leading "# " heading, or "".
func markdownTitle(body string) string {
	first, _, _ := strings.Cut(body, "\n")
	if t, ok := strings.CutPrefix(strings.TrimSpace(first), "# "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}
