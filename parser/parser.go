// Package parser turns document files into plain text for the resolver.
package parser

import (
	"context"
	"strings"
)

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Title    string    // document title when the format carries one
	Sections []Section // in reading order
	Pages    int       // pages, slides or sheets; 0 for flowing text
}

// Section is a run of text under one heading.
type Section struct {
	Heading string
	Content string
	Page    int // 1-based; 0 when the format has no pages
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// Text flattens the sections into one document. Headings sit on their own
// line so the sentence splitter never glues them to the next paragraph.
func (r *ParseResult) Text() string {
	var b strings.Builder
	for _, s := range r.Sections {
		if h := strings.TrimSpace(s.Heading); h != "" {
			b.WriteString(h)
			b.WriteString("\n")
		}
		if c := strings.TrimSpace(s.Content); c != "" {
			b.WriteString(c)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(b.String())
}
