package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTUIRenderer_FailsForNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestBuildModel_View(t *testing.T) {
	// Given: a model mid-way through loading
	m := newBuildModel("AIssist")
	m.styles = NoColorStyles()
	m.Update(progressUpdateMsg{Stage: StageLoading, Current: 2, Total: 4, CurrentFile: "specs/design.docx"})
	m.Update(errorMsg{File: "bad.pdf", Err: assert.AnError})

	// When: rendering
	view := m.View()

	// Then: stages, progress, file and failures are shown
	assert.Contains(t, view, "indexbot build • AIssist")
	assert.Contains(t, view, "● Scanning")
	assert.Contains(t, view, "○ Embedding")
	assert.Contains(t, view, "2/4")
	assert.Contains(t, view, "design.docx")
	assert.Contains(t, view, "✗ 1 failed")
}

func TestBuildModel_Complete(t *testing.T) {
	m := newBuildModel("")
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg{Documents: 2, Nodes: 5, Skipped: 1, Duration: 3 * time.Second})

	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Index built")
	assert.Contains(t, view, "Nodes:     5")
	assert.Contains(t, view, "⚠ 1 skipped")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{2 * time.Minute, "2m"},
		{150 * time.Second, "2m 30s"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestTruncateFilePath(t *testing.T) {
	assert.Equal(t, "a/b.txt", truncateFilePath("a/b.txt", 20))
	got := truncateFilePath("very/long/directory/structure/file.txt", 24)
	assert.LessOrEqual(t, len(got), 24)
	assert.Contains(t, got, "file.txt")
	assert.Contains(t, got, "...")
}
