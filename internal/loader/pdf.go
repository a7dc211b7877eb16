package loader

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts the text layer of a PDF, one section per page.
// Scanned, image-only PDFs have no text layer and come back empty, which
// Dispatcher.Load reports as skipped.
type PDFLoader struct{}

// Extract implements Loader.
func (PDFLoader) Extract(ctx context.Context, path string) (*Extraction, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sections []Section
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		sections = append(sections, Section{
			Kind:  SectionPage,
			Title: fmt.Sprintf("Page %d", i),
			Text:  text,
		})
	}

	return &Extraction{Text: joinSections(sections), Sections: sections}, nil
}
