// Package loader turns files in a project's input directory into plain text.
//
// A Dispatcher maps file extensions onto a closed set of format families and
// runs the matching Loader. Dispatcher.Load never returns an error: every
// outcome, including parser panics, is folded into a SourceDocument whose
// Status is ok, skipped or failed.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Status is the extraction outcome of one file.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Section kinds.
const (
	SectionBody    = "body"
	SectionPage    = "page"
	SectionSheet   = "sheet"
	SectionSlide   = "slide"
	SectionHeading = "heading"
)

// Section is a coarse structural node of a document: a page, sheet, slide
// or heading-delimited block.
type Section struct {
	Kind  string
	Title string
	Text  string
}

// Extraction is what a Loader produces for one file.
type Extraction struct {
	Title    string
	Text     string
	Sections []Section
}

// Loader extracts text from one file of a single format family.
type Loader interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) (*Extraction, error)

// Extract calls f.
func (f LoaderFunc) Extract(ctx context.Context, path string) (*Extraction, error) {
	return f(ctx, path)
}

// SourceDocument is the immutable result of loading one file.
type SourceDocument struct {
	Path        string
	Extension   string
	Format      Format
	Size        int64
	Title       string
	Text        string
	Sections    []Section
	Status      Status
	ErrorDetail string
}

// OK reports whether the document contributed text.
func (d SourceDocument) OK() bool {
	return d.Status == StatusOK
}

// Dispatcher owns the extension → loader table.
type Dispatcher struct {
	loaders     map[Format]Loader
	maxFileSize int64
	runner      CommandRunner
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLoader registers or replaces the loader of a format family.
func WithLoader(f Format, l Loader) Option {
	return func(d *Dispatcher) {
		d.loaders[f] = l
	}
}

// WithMaxFileSize skips files larger than n bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(d *Dispatcher) {
		d.maxFileSize = n
	}
}

// WithCommandRunner sets the runner used by loaders that shell out.
func WithCommandRunner(r CommandRunner) Option {
	return func(d *Dispatcher) {
		d.runner = r
	}
}

// NewDispatcher returns a dispatcher with a loader for every format family.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		loaders: make(map[Format]Loader),
		runner:  ExecRunner{},
	}
	for _, opt := range opts {
		opt(d)
	}

	defaults := map[Format]Loader{
		FormatPDF:  PDFLoader{},
		FormatDOCX: DOCXLoader{},
		FormatDOC:  &DOCLoader{Runner: d.runner},
		FormatODT:  ODTLoader{},
		FormatXLS:  XLSLoader{},
		FormatXLSX: XLSXLoader{},
		FormatPPTX: PPTXLoader{},
		FormatText: TextLoader{},
		FormatHTML: HTMLLoader{},
	}
	for f, l := range defaults {
		if _, ok := d.loaders[f]; !ok {
			d.loaders[f] = l
		}
	}

	return d
}

// Lookup resolves an extension. ok is false when no loader is registered,
// which callers treat as "skip with a log entry".
func (d *Dispatcher) Lookup(ext string) (Loader, Format, bool) {
	f := FormatForExtension(ext)
	if !f.Supported() {
		return nil, FormatUnsupported, false
	}
	l, ok := d.loaders[f]
	if !ok {
		return nil, f, false
	}
	return l, f, true
}

// Load extracts one file and reports the outcome as a value.
func (d *Dispatcher) Load(ctx context.Context, path string) (doc SourceDocument) {
	doc = SourceDocument{
		Path:      path,
		Extension: normalizeExt(filepath.Ext(path)),
	}

	l, format, ok := d.Lookup(doc.Extension)
	doc.Format = format
	if !ok {
		return skipped(doc, fmt.Sprintf("no loader for extension %q", "."+doc.Extension))
	}

	info, err := os.Stat(path)
	if err != nil {
		return failed(doc, err.Error())
	}
	doc.Size = info.Size()
	if d.maxFileSize > 0 && doc.Size > d.maxFileSize {
		return skipped(doc, fmt.Sprintf("file size %d exceeds limit %d", doc.Size, d.maxFileSize))
	}

	// Third-party parsers panic on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("loader panic recovered", slog.String("path", path), slog.Any("panic", r))
			doc = failed(doc, fmt.Sprintf("%s parser crashed: %v", format, r))
		}
	}()

	ext, err := l.Extract(ctx, path)
	if err != nil {
		return failed(doc, err.Error())
	}
	if ext == nil {
		return skipped(doc, "no extractable text")
	}

	doc.Title = ext.Title
	doc.Text = cleanText(ext.Text)
	for _, s := range ext.Sections {
		s.Text = cleanText(s.Text)
		if s.Text != "" {
			doc.Sections = append(doc.Sections, s)
		}
	}
	if doc.Text == "" {
		doc.Sections = nil
		return skipped(doc, "no extractable text")
	}
	if len(doc.Sections) == 0 {
		doc.Sections = []Section{{Kind: SectionBody, Text: doc.Text}}
	}

	doc.Status = StatusOK
	return doc
}

// Extensions lists the extensions with a registered loader, sorted.
func (d *Dispatcher) Extensions() []string {
	var exts []string
	for _, ext := range SupportedExtensions() {
		if _, _, ok := d.Lookup(ext); ok {
			exts = append(exts, ext)
		}
	}
	return exts
}

func skipped(doc SourceDocument, detail string) SourceDocument {
	doc.Status = StatusSkipped
	doc.ErrorDetail = detail
	return doc
}

func failed(doc SourceDocument, detail string) SourceDocument {
	doc.Status = StatusFailed
	doc.ErrorDetail = detail
	doc.Text = ""
	doc.Sections = nil
	return doc
}

// joinSections concatenates section texts in order.
func joinSections(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s.Text) != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// cleanText normalises extracted text: valid UTF-8, LF line endings,
// horizontal whitespace collapsed, at most one blank line in a row.
func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = collapseSpaces(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// collapseSpaces trims a line and folds internal whitespace runs to one
// space, keeping tabs that separate spreadsheet cells.
func collapseSpaces(line string) string {
	var sb strings.Builder
	sb.Grow(len(line))
	pending := rune(0)
	for _, r := range strings.TrimSpace(line) {
		if unicode.IsSpace(r) {
			if r == '\t' || pending != '\t' {
				pending = r
				if r != '\t' {
					pending = ' '
				}
			}
			continue
		}
		if pending != 0 {
			sb.WriteRune(pending)
			pending = 0
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
