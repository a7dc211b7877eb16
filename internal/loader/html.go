package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLLoader extracts visible text from html and htm files. Headings open
// new sections; the <title> element becomes the document title.
type HTMLLoader struct{}

// Elements whose content is never visible text.
var htmlSkipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// Elements that end a line of text.
var htmlBlocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.Ul: true, atom.Ol: true, atom.Table: true, atom.Section: true,
	atom.Article: true, atom.Header: true, atom.Footer: true, atom.Nav: true,
	atom.Aside: true, atom.Main: true, atom.Pre: true, atom.Blockquote: true,
	atom.Hr: true, atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figure: true,
	atom.Figcaption: true, atom.Form: true, atom.Fieldset: true, atom.Address: true,
}

var htmlHeadings = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// Extract tokenises the file; malformed markup is tolerated the way browsers do.
func (HTMLLoader) Extract(ctx context.Context, path string) (*Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	return extractHTML(f)
}

func extractHTML(r io.Reader) (*Extraction, error) {
	var (
		ext       Extraction
		sections  []Section
		current   = Section{Kind: SectionBody}
		body      strings.Builder
		heading   strings.Builder
		title     strings.Builder
		skipDepth int
		inTitle   bool
		inHeading bool
	)

	flush := func() {
		current.Text = body.String()
		if strings.TrimSpace(current.Text) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("parse html: %w", err)
			}
			flush()
			ext.Sections = sections
			ext.Text = joinSections(sections)
			ext.Title = strings.TrimSpace(collapseSpaces(title.String()))
			return &ext, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case htmlSkipped[a]:
				if tt == html.StartTagToken {
					skipDepth++
				}
			case a == atom.Title:
				inTitle = tt == html.StartTagToken
			case htmlHeadings[a]:
				flush()
				inHeading = true
				heading.Reset()
			case htmlBlocks[a]:
				body.WriteByte('\n')
			case a == atom.Td || a == atom.Th:
				body.WriteByte('\t')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case htmlSkipped[a]:
				if skipDepth > 0 {
					skipDepth--
				}
			case a == atom.Title:
				inTitle = false
			case htmlHeadings[a]:
				if inHeading {
					current = Section{Kind: SectionHeading, Title: strings.TrimSpace(collapseSpaces(heading.String()))}
					inHeading = false
				}
				body.WriteByte('\n')
			case htmlBlocks[a]:
				body.WriteByte('\n')
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := string(z.Text())
			switch {
			case inTitle:
				title.WriteString(text)
			case inHeading:
				heading.WriteString(text)
				body.WriteString(text)
			default:
				body.WriteString(text)
			}
		}
	}
}
