package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// PPTXParser reads the text runs of every slide, one section per slide in
// presentation order. Slides without text are skipped but still counted.
type PPTXParser struct{}

func (p *PPTXParser) SupportedFormats() []string { return []string{"pptx"} }

type pptxSlideFile struct {
	num  int
	file *zip.File
}

func (p *PPTXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening PPTX: %w", err)
	}
	defer r.Close()

	var slides []pptxSlideFile
	for _, f := range r.File {
		if n, ok := slideNumber(f.Name); ok {
			slides = append(slides, pptxSlideFile{num: n, file: f})
		}
	}
	slices.SortFunc(slides, func(a, b pptxSlideFile) int { return a.num - b.num })

	res := &ParseResult{Pages: len(slides)}
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := readSlide(s.file)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		if text == "" {
			continue
		}
		res.Sections = append(res.Sections, Section{
			Heading: fmt.Sprintf("Slide %d", s.num),
			Content: text,
			Page:    s.num,
		})
	}
	if len(res.Sections) == 0 {
		return nil, fmt.Errorf("no text found in PPTX")
	}
	return res, nil
}

// slideNumber parses "ppt/slides/slide12.xml" into 12.
func slideNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "ppt/slides/slide")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".xml")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil && n > 0
}

// readSlide walks the slide XML and joins the <a:t> runs of each <a:p>
// paragraph into one line.
func readSlide(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		lines  []string
		line   strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inText = t.Name.Local == "t"
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if l := strings.TrimSpace(line.String()); l != "" {
					lines = append(lines, l)
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
