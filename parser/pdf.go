package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	sections := make([]Section, 0)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("pdf: skipping unreadable page", "page", i, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sections = append(sections, splitPageIntoSections(text, i)...)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no extractable text in PDF")
	}

	return &ParseResult{Sections: sections, Pages: totalPages}, nil
}

// splitPageIntoSections breaks page text into logical sections.
func splitPageIntoSections(text string, pageNum int) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var currentContent strings.Builder
	var currentHeading string

	save := func() {
		if currentContent.Len() == 0 {
			return
		}
		sections = append(sections, Section{
			Heading: currentHeading,
			Content: strings.TrimSpace(currentContent.String()),
			Page:    pageNum,
		})
		currentContent.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			continue
		}

		if isLikelyHeading(trimmed) {
			save()
			currentHeading = trimmed
			continue
		}
		if currentContent.Len() > 0 {
			currentContent.WriteString("\n")
		}
		currentContent.WriteString(trimmed)
	}
	save()

	// A page made only of headings still carries text.
	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, Section{Content: text, Page: pageNum})
	}

	return sections
}

// headingPrefixes mark lines such as "Chapter 3" or "Sección 2".
var headingPrefixes = []string{
	"section ", "article ", "chapter ", "part ",
	"sección ", "seccion ", "capítulo ", "capitulo ", "anexo ",
	"abschnitt ", "kapitel ",
}

func isLikelyHeading(line string) bool {
	if line == "" {
		return false
	}
	// All caps and short
	if len(line) < 100 && len(line) > 2 && line == strings.ToUpper(line) && line != strings.ToLower(line) {
		return true
	}
	if len(line) >= 120 {
		return false
	}
	// Numbered section like "1.", "1.1", "3.9.1"
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
		return true
	}
	lower := strings.ToLower(line)
	for _, p := range headingPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
