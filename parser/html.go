package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser strips markup from HTML and XML-ish documents and keeps the
// visible text. Headings start new sections.
type HTMLParser struct{}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html", "htm", "xhtml"} }

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening HTML: %w", err)
	}
	defer f.Close()

	sections, title, err := parseHTML(f)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return &ParseResult{Title: title, Sections: sections}, nil
}

// StripTags returns the visible text of an HTML fragment.
func StripTags(s string) string {
	sections, _, err := parseHTML(strings.NewReader(s))
	if err != nil {
		return s
	}
	return (&ParseResult{Sections: sections}).Text()
}

// blockTags end the current line of text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "blockquote": true, "pre": true, "table": true, "ul": true, "ol": true,
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

func parseHTML(r io.Reader) ([]Section, string, error) {
	z := html.NewTokenizer(r)

	var (
		sections []Section
		content  strings.Builder
		heading  strings.Builder
		current  string
		title    string
		skip     int // depth inside script/style
		inTitle  bool
		inHead   bool
	)
	flush := func() {
		if c := normalizeLines(content.String()); c != "" || current != "" {
			sections = append(sections, Section{Heading: current, Content: c})
		}
		content.Reset()
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				flush()
				return sections, title, nil
			}
			return nil, "", z.Err()

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style" || tag == "noscript":
				skip++
			case tag == "title":
				inTitle = true
			case isHeading(tag):
				flush()
				inHead = true
				heading.Reset()
			case blockTags[tag]:
				content.WriteString("\n")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style" || tag == "noscript":
				if skip > 0 {
					skip--
				}
			case tag == "title":
				inTitle = false
			case isHeading(tag) && inHead:
				current = collapseSpace(heading.String())
				inHead = false
			case blockTags[tag]:
				content.WriteString("\n")
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			switch {
			case inTitle:
				title = collapseSpace(title + " " + text)
			case inHead:
				heading.WriteString(text)
			default:
				content.WriteString(text)
			}
		}
	}
}

// collapseSpace joins runs of whitespace into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeLines collapses spaces inside each line and drops blank lines.
func normalizeLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if l := collapseSpace(line); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
