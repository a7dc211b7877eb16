package loader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want Format
	}{
		{"pdf", FormatPDF},
		{".PDF", FormatPDF},
		{"Docx", FormatDOCX},
		{".doc", FormatDOC},
		{"odt", FormatODT},
		{"xls", FormatXLS},
		{"XLSX", FormatXLSX},
		{"pptx", FormatPPTX},
		{"txt", FormatText},
		{"md", FormatText},
		{".rst", FormatText},
		{"html", FormatHTML},
		{".HTM", FormatHTML},
		{"exe", FormatUnsupported},
		{"", FormatUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatForExtension(tt.ext))
		})
	}
}

func TestDispatcher_CoversRequiredExtensions(t *testing.T) {
	d := NewDispatcher()

	for _, ext := range []string{"pdf", "docx", "doc", "odt", "xls", "xlsx", "pptx", "txt", "md", "rst", "html", "htm"} {
		l, f, ok := d.Lookup(ext)
		assert.True(t, ok, ext)
		assert.NotNil(t, l, ext)
		assert.True(t, f.Supported(), ext)
	}

	_, f, ok := d.Lookup(".zip")
	assert.False(t, ok)
	assert.Equal(t, FormatUnsupported, f)
	assert.Equal(t, "unsupported", f.String())
}

func TestDispatcher_Load_Statuses(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		file       string
		content    string
		wantStatus Status
		wantDetail string
	}{
		{"plain text", "a.txt", "The sky is blue.", StatusOK, ""},
		{"whitespace only", "blank.txt", " \n\t\n ", StatusSkipped, "no extractable text"},
		{"unsupported extension", "image.png", "\x89PNG", StatusSkipped, "no loader for extension"},
		{"corrupt docx", "broken.docx", "not a zip", StatusFailed, "open docx"},
		{"corrupt pdf", "broken.pdf", "hello", StatusFailed, ""},
	}

	d := NewDispatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)

			doc := d.Load(context.Background(), path)

			assert.Equal(t, tt.wantStatus, doc.Status, doc.ErrorDetail)
			assert.Contains(t, doc.ErrorDetail, tt.wantDetail)
			if tt.wantStatus != StatusOK {
				assert.Empty(t, doc.Text)
				assert.NotEmpty(t, doc.ErrorDetail)
			}
		})
	}
}

func TestDispatcher_Load_RecoversLoaderPanic(t *testing.T) {
	// Given: a loader that panics, as some binary parsers do on bad input
	d := NewDispatcher(WithLoader(FormatText, LoaderFunc(func(ctx context.Context, path string) (*Extraction, error) {
		panic("index out of range")
	})))
	path := writeFile(t, t.TempDir(), "a.txt", "content")

	// When: loading
	doc := d.Load(context.Background(), path)

	// Then: the panic becomes a failed result instead of crashing the batch
	assert.Equal(t, StatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorDetail, "index out of range")
}

func TestDispatcher_Load_LoaderErrorIsFailed(t *testing.T) {
	d := NewDispatcher(WithLoader(FormatHTML, LoaderFunc(func(ctx context.Context, path string) (*Extraction, error) {
		return nil, errors.New("encrypted document")
	})))
	path := writeFile(t, t.TempDir(), "page.html", "<p>x</p>")

	doc := d.Load(context.Background(), path)

	assert.Equal(t, StatusFailed, doc.Status)
	assert.Equal(t, "encrypted document", doc.ErrorDetail)
	assert.Equal(t, FormatHTML, doc.Format)
}

func TestDispatcher_Load_MaxFileSize(t *testing.T) {
	d := NewDispatcher(WithMaxFileSize(10))
	path := writeFile(t, t.TempDir(), "big.txt", strings.Repeat("a", 11))

	doc := d.Load(context.Background(), path)

	assert.Equal(t, StatusSkipped, doc.Status)
	assert.Contains(t, doc.ErrorDetail, "exceeds limit")
}

func TestDispatcher_Load_MissingFile(t *testing.T) {
	doc := NewDispatcher().Load(context.Background(), "/nonexistent/a.txt")

	assert.Equal(t, StatusFailed, doc.Status)
	assert.Equal(t, "txt", doc.Extension)
}

func TestDispatcher_Load_DefaultsToBodySection(t *testing.T) {
	path := writeFile(t, t.TempDir(), "b.txt", "Paris is the capital of France.\r\n")

	doc := NewDispatcher().Load(context.Background(), path)

	require.True(t, doc.OK())
	assert.Equal(t, "Paris is the capital of France.", doc.Text)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, SectionBody, doc.Sections[0].Kind)
}

func TestDispatcher_Extensions(t *testing.T) {
	exts := NewDispatcher().Extensions()

	assert.Contains(t, exts, "pdf")
	assert.Contains(t, exts, "htm")
	assert.IsIncreasing(t, exts)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bom and crlf", "\ufeffline one\r\nline two", "line one\nline two"},
		{"collapses spaces", "a   b \t c", "a b\tc"},
		{"limits blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"invalid utf8", "ok\xffok", "ok\uFFFDok"},
		{"trims", "  \n a \n  ", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.in))
		})
	}
}
