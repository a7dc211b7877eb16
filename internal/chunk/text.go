package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aissist/indexbot/internal/loader"
)

// TextChunker packs paragraphs, then sentences, then words into chunks of at
// most Size runes, carrying up to Overlap runes of trailing context into the
// next chunk.
type TextChunker struct {
	size    int
	overlap int
}

// NewTextChunker returns a chunker. Out-of-range values fall back to defaults.
func NewTextChunker(size, overlap int) *TextChunker {
	if size < MinChunkSize {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 8
	}
	return &TextChunker{size: size, overlap: overlap}
}

// Size returns the maximum chunk length in runes.
func (c *TextChunker) Size() int { return c.size }

// Overlap returns the carried context length in runes.
func (c *TextChunker) Overlap() int { return c.overlap }

// ChunkSections chunks each section independently so no chunk spans two
// pages, sheets or slides. Indexes run across the whole document.
func (c *TextChunker) ChunkSections(sections []loader.Section) []Chunk {
	var chunks []Chunk
	for _, s := range sections {
		for _, text := range c.Split(s.Text) {
			chunks = append(chunks, Chunk{
				Index:   len(chunks),
				Section: s.Title,
				Text:    text,
			})
		}
	}
	return chunks
}

// unit is an indivisible piece of text; para marks the start of a paragraph.
type unit struct {
	text string
	para bool
}

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	// sentence end: terminal punctuation, optional closing quotes, whitespace
	sentenceEnd = regexp.MustCompile(`[.!?…]+["'”’)\]]*\s+`)
)

// Split returns the chunks of a single text.
func (c *TextChunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= c.size {
		return []string{text}
	}

	units := c.units(text)

	var (
		chunks []string
		window []unit
		length int
	)

	joinedLen := func(us []unit) int {
		n := 0
		for i, u := range us {
			if i > 0 {
				n += sepLen(u)
			}
			n += runeLen(u.text)
		}
		return n
	}

	for _, u := range units {
		add := runeLen(u.text)
		if len(window) > 0 {
			add += sepLen(u)
		}
		if len(window) > 0 && length+add > c.size {
			chunks = append(chunks, render(window))
			window = c.tail(window)
			length = joinedLen(window)
			add = runeLen(u.text)
			if len(window) > 0 {
				add += sepLen(u)
			}
			// the carried tail plus the new unit must still fit
			for len(window) > 0 && length+add > c.size {
				window = window[1:]
				length = joinedLen(window)
				if len(window) == 0 {
					add = runeLen(u.text)
				}
			}
		}
		window = append(window, u)
		length += add
	}
	if len(window) > 0 {
		chunks = append(chunks, render(window))
	}

	return chunks
}

// tail keeps the trailing units of a closed chunk that fit in the overlap.
func (c *TextChunker) tail(window []unit) []unit {
	if c.overlap == 0 {
		return nil
	}
	n := 0
	start := len(window)
	for i := len(window) - 1; i > 0; i-- {
		l := runeLen(window[i].text)
		if n+l > c.overlap {
			break
		}
		n += l + 1
		start = i
	}
	out := make([]unit, len(window)-start)
	copy(out, window[start:])
	return out
}

// units breaks text down until every piece fits in one chunk.
func (c *TextChunker) units(text string) []unit {
	var units []unit
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		first := true
		for _, piece := range c.fit(para) {
			units = append(units, unit{text: piece, para: first})
			first = false
		}
	}
	return units
}

// fit splits s into sentences, then words, then runes, until pieces fit.
func (c *TextChunker) fit(s string) []string {
	if runeLen(s) <= c.size {
		return []string{s}
	}
	var out []string
	for _, sentence := range splitSentences(s) {
		if runeLen(sentence) <= c.size {
			out = append(out, sentence)
			continue
		}
		out = append(out, c.fitWords(sentence)...)
	}
	return out
}

func (c *TextChunker) fitWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if runeLen(w) <= c.size {
			out = append(out, w)
			continue
		}
		out = append(out, hardSplit(w, c.size)...)
	}
	return out
}

func splitSentences(s string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(s, -1) {
		out = append(out, strings.TrimSpace(s[last:loc[1]]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(s[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func hardSplit(s string, size int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func render(window []unit) string {
	var sb strings.Builder
	for i, u := range window {
		if i > 0 {
			if u.para {
				sb.WriteString("\n\n")
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(u.text)
	}
	return sb.String()
}

func sepLen(u unit) int {
	if u.para {
		return 2
	}
	return 1
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
