package loader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DOCXLoader reads word/document.xml. Paragraphs styled Heading* or Title
// open new sections.
type DOCXLoader struct{}

// PPTXLoader reads ppt/slides/slideN.xml in slide order, one section per slide.
type PPTXLoader struct{}

// ODTLoader reads content.xml of an OpenDocument text file; text:h opens sections.
type ODTLoader struct{}

// xmlParagraph is one paragraph of an office document.
type xmlParagraph struct {
	Text    string
	Heading bool
}

// xmlTextRules describes where text lives in a particular XML dialect.
// Element names are local names; namespaces are ignored.
type xmlTextRules struct {
	paragraphs map[string]bool
	// text elements whose character data is collected; nil collects all
	// character data inside a paragraph
	text     map[string]bool
	headings map[string]bool
	// empty elements that stand for characters
	chars map[string]string
	// paragraph property carrying a style name (w:pStyle/@w:val)
	styleElem string
}

var docxRules = xmlTextRules{
	paragraphs: map[string]bool{"p": true},
	text:       map[string]bool{"t": true},
	chars:      map[string]string{"tab": "\t", "br": "\n", "cr": "\n"},
	styleElem:  "pStyle",
}

var pptxRules = xmlTextRules{
	paragraphs: map[string]bool{"p": true},
	text:       map[string]bool{"t": true},
	chars:      map[string]string{"br": "\n"},
}

var odtRules = xmlTextRules{
	paragraphs: map[string]bool{"p": true, "h": true},
	headings:   map[string]bool{"h": true},
	chars:      map[string]string{"tab": "\t", "line-break": "\n", "s": " "},
}

// Extract implements Loader.
func (DOCXLoader) Extract(ctx context.Context, file string) (*Extraction, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	paras, err := readZipXML(&zr.Reader, "word/document.xml", docxRules)
	if err != nil {
		return nil, err
	}

	sections := sectionsFromParagraphs(paras)
	return &Extraction{Text: joinSections(sections), Sections: sections}, nil
}

// Extract implements Loader.
func (ODTLoader) Extract(ctx context.Context, file string) (*Extraction, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open odt: %w", err)
	}
	defer zr.Close()

	paras, err := readZipXML(&zr.Reader, "content.xml", odtRules)
	if err != nil {
		return nil, err
	}

	sections := sectionsFromParagraphs(paras)
	return &Extraction{Text: joinSections(sections), Sections: sections}, nil
}

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Extract implements Loader.
func (PPTXLoader) Extract(ctx context.Context, file string) (*Extraction, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slidePattern.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{num: n, name: f.Name})
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("open pptx: no slides found")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sections []Section
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paras, err := readZipXML(&zr.Reader, s.name, pptxRules)
		if err != nil {
			return nil, err
		}
		lines := make([]string, 0, len(paras))
		for _, p := range paras {
			lines = append(lines, p.Text)
		}
		sections = append(sections, Section{
			Kind:  SectionSlide,
			Title: fmt.Sprintf("Slide %d", s.num),
			Text:  strings.Join(lines, "\n"),
		})
	}

	return &Extraction{Text: joinSections(sections), Sections: sections}, nil
}

func readZipXML(zr *zip.Reader, name string, rules xmlTextRules) ([]xmlParagraph, error) {
	for _, f := range zr.File {
		if path.Clean(f.Name) != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()

		paras, err := parseXMLParagraphs(rc, rules)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return paras, nil
	}
	return nil, fmt.Errorf("missing %s", name)
}

// parseXMLParagraphs streams tokens and collects paragraph text. Nested
// paragraphs (text boxes, table cells inside frames) are folded into the
// outermost one.
func parseXMLParagraphs(r io.Reader, rules xmlTextRules) ([]xmlParagraph, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var (
		paras     []xmlParagraph
		buf       strings.Builder
		depth     int
		textDepth int
		heading   bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := t.Name.Local
			switch {
			case rules.paragraphs[local]:
				if depth == 0 {
					buf.Reset()
					heading = rules.headings[local]
				}
				depth++
			case depth > 0 && rules.text[local]:
				textDepth++
			case depth > 0 && rules.chars[local] != "":
				buf.WriteString(rules.chars[local])
			case depth > 0 && rules.styleElem != "" && local == rules.styleElem:
				for _, a := range t.Attr {
					if a.Name.Local == "val" && isHeadingStyle(a.Value) {
						heading = true
					}
				}
			}

		case xml.EndElement:
			local := t.Name.Local
			switch {
			case rules.paragraphs[local] && depth > 0:
				depth--
				if depth == 0 {
					paras = append(paras, xmlParagraph{Text: buf.String(), Heading: heading})
				} else {
					buf.WriteByte(' ')
				}
			case rules.text[local] && textDepth > 0:
				textDepth--
			}

		case xml.CharData:
			if depth == 0 {
				continue
			}
			if rules.text == nil || textDepth > 0 {
				buf.Write(t)
			}
		}
	}

	return paras, nil
}

func isHeadingStyle(style string) bool {
	s := strings.ToLower(style)
	return strings.HasPrefix(s, "heading") || s == "title"
}

// sectionsFromParagraphs starts a new section at every heading paragraph.
func sectionsFromParagraphs(paras []xmlParagraph) []Section {
	var (
		sections []Section
		current  = Section{Kind: SectionBody}
		lines    []string
	)

	flush := func() {
		current.Text = strings.Join(lines, "\n")
		if strings.TrimSpace(current.Text) != "" {
			sections = append(sections, current)
		}
		lines = nil
	}

	for _, p := range paras {
		text := strings.TrimSpace(p.Text)
		if p.Heading && text != "" {
			flush()
			current = Section{Kind: SectionHeading, Title: text}
		}
		lines = append(lines, p.Text)
	}
	flush()

	return sections
}
