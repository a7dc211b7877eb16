package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aissist/indexbot/internal/loader"
)

func sentences(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Sentence number %d is here.", i)
	}
	return out
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	c := NewTextChunker(DefaultChunkSize, DefaultChunkOverlap)

	assert.Equal(t, []string{"Paris is the capital of France."}, c.Split("  Paris is the capital of France.\n"))
	assert.Nil(t, c.Split(" \n "))
}

func TestSplit_RespectsSizeAndCoversAllSentences(t *testing.T) {
	// Given: a long paragraph of short sentences
	c := NewTextChunker(64, 16)
	all := sentences(20)
	text := strings.Join(all, " ")

	// When: splitting
	chunks := c.Split(text)

	// Then: every chunk fits and every sentence survives intact
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 64, ch)
	}
	joined := strings.Join(chunks, " ")
	for _, s := range all {
		assert.Contains(t, joined, s)
	}
}

func TestSplit_CarriesOverlap(t *testing.T) {
	c := NewTextChunker(64, 30)
	text := strings.Join(sentences(6), " ")

	chunks := c.Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		firstSentence := chunks[i][:strings.Index(chunks[i], ".")+1]
		assert.True(t, strings.HasSuffix(prev, firstSentence),
			"chunk %d should start with the last sentence of chunk %d", i, i-1)
	}
}

func TestSplit_NoOverlap(t *testing.T) {
	c := NewTextChunker(64, 0)
	all := sentences(6)

	chunks := c.Split(strings.Join(all, " "))

	assert.Equal(t, strings.Join(all, " "), strings.Join(chunks, " "))
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	c := NewTextChunker(64, 0)
	text := "First paragraph is short.\n\nSecond paragraph is also short.\n\nThird one closes the text."

	chunks := c.Split(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "First paragraph is short.\n\nSecond paragraph is also short.", chunks[0])
	assert.Equal(t, "Third one closes the text.", chunks[1])
}

func TestSplit_HardSplitsGiantTokens(t *testing.T) {
	c := NewTextChunker(64, 0)
	word := strings.Repeat("é", 150)

	chunks := c.Split(word)

	require.Len(t, chunks, 3)
	assert.Equal(t, 64, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 22, utf8.RuneCountInString(chunks[2]))
}

func TestNewTextChunker_Defaults(t *testing.T) {
	c := NewTextChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultChunkSize/8, c.Overlap())

	c = NewTextChunker(100, 100)
	assert.Equal(t, 12, c.Overlap())
}

func TestChunkSections_IndexesAcrossSections(t *testing.T) {
	c := NewTextChunker(64, 0)
	sections := []loader.Section{
		{Kind: loader.SectionPage, Title: "Page 1", Text: strings.Join(sentences(4), " ")},
		{Kind: loader.SectionPage, Title: "Page 2", Text: "Short page."},
	}

	chunks := c.ChunkSections(sections)

	require.GreaterOrEqual(t, len(chunks), 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, "Page 2", last.Section)
	assert.Equal(t, "Short page.", last.Text)
	assert.Equal(t, "Page 1", chunks[0].Section)
}
