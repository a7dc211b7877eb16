package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{name: "success", write: func(w *Writer) { w.Success("Index rebuilt.") }, want: "✅ Index rebuilt.\n"},
		{name: "warning", write: func(w *Writer) { w.Warningf("%d failed", 2) }, want: "⚠️  2 failed\n"},
		{name: "error", write: func(w *Writer) { w.Error("no index") }, want: "❌ no index\n"},
		{name: "no icon", write: func(w *Writer) { w.Status("", "detail") }, want: "   detail\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Answer(t *testing.T) {
	// Given: an answer grounded on two documents
	buf := &bytes.Buffer{}

	// When: printing it
	New(buf).Answer("  Paris.\n", []string{"b.txt", "a.txt"})

	// Then: the answer is trimmed and the sources listed
	assert.Equal(t, "Paris.\n\nSources: b.txt, a.txt\n", buf.String())
}

func TestWriter_Answer_NoSources(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Answer("Hello!", nil)
	assert.Equal(t, "Hello!\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(map[string]int{"documents": 3}))
	assert.Equal(t, "{\n  \"documents\": 3\n}\n", buf.String())
}

func TestPaginate(t *testing.T) {
	t.Run("fits in one page", func(t *testing.T) {
		assert.Equal(t, []string{"a.txt\nb.txt"}, Paginate([]string{"a.txt", "b.txt"}, 20))
	})

	t.Run("breaks between lines", func(t *testing.T) {
		pages := Paginate([]string{"aaaa", "bbbb", "cccc"}, 9)
		assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, pages)
	})

	t.Run("splits an overlong line", func(t *testing.T) {
		pages := Paginate([]string{"abcdefghij"}, 4)
		assert.Equal(t, []string{"abcd", "efgh", "ij"}, pages)
	})

	t.Run("counts characters, not bytes", func(t *testing.T) {
		pages := Paginate([]string{"ééé", "ü"}, 5)
		assert.Equal(t, []string{"ééé\nü"}, pages)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Paginate(nil, 10))
	})

	t.Run("default limit", func(t *testing.T) {
		lines := make([]string, 500)
		for i := range lines {
			lines[i] = strings.Repeat("x", 19)
		}
		pages := Paginate(lines, 0)
		require.Len(t, pages, 3)
		for _, p := range pages {
			assert.LessOrEqual(t, len([]rune(p)), PageLimit)
		}
	})
}

func TestWriter_Pages(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Pages([]string{"one", "two"})
	assert.Equal(t, "one\n\ntwo\n", buf.String())
}
