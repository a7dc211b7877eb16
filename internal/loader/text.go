package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// TextLoader handles the plain-text family: txt, md and rst. Markdown and
// reStructuredText are split into heading sections; everything else is one
// body section.
type TextLoader struct{}

var (
	// # Title, ## Title, ...
	mdHeaderPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

	// ---\n...\n---
	mdFrontmatterPattern = regexp.MustCompile(`(?s)^---\n.+?\n---\n*`)

	mdFencePattern = regexp.MustCompile("^\\s*(```|~~~)")
)

// Extract reads the file as UTF-8 text.
func (TextLoader) Extract(ctx context.Context, path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	text := cleanNewlines(string(data))

	switch normalizeExt(filepath.Ext(path)) {
	case "md", "markdown":
		text = mdFrontmatterPattern.ReplaceAllString(text, "")
		return &Extraction{Text: text, Sections: markdownSections(text)}, nil
	case "rst":
		return &Extraction{Text: text, Sections: rstSections(text)}, nil
	default:
		return &Extraction{Text: text}, nil
	}
}

func cleanNewlines(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// markdownSections splits on ATX headings outside fenced code blocks.
// Text before the first heading becomes an untitled body section.
func markdownSections(text string) []Section {
	var (
		sections []Section
		current  = Section{Kind: SectionBody}
		body     strings.Builder
		inFence  bool
	)

	flush := func() {
		current.Text = body.String()
		if strings.TrimSpace(current.Text) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if mdFencePattern.MatchString(line) {
			inFence = !inFence
		}
		if !inFence {
			if m := mdHeaderPattern.FindStringSubmatch(line); m != nil {
				flush()
				current = Section{Kind: SectionHeading, Title: m[2]}
			}
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()

	return sections
}

// rstSections splits on titles underlined with a repeated punctuation
// character at least as long as the title.
func rstSections(text string) []Section {
	lines := strings.Split(text, "\n")

	var (
		sections []Section
		current  = Section{Kind: SectionBody}
		body     []string
	)

	flush := func() {
		current.Text = strings.Join(body, "\n")
		if strings.TrimSpace(current.Text) != "" {
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for i := 0; i < len(lines); i++ {
		title := strings.TrimSpace(lines[i])
		if title != "" && i+1 < len(lines) && isRSTUnderline(lines[i+1], len([]rune(title))) {
			flush()
			current = Section{Kind: SectionHeading, Title: title}
			body = append(body, title)
			i++ // skip the underline
			continue
		}
		if isRSTUnderline(lines[i], 1) && len(strings.TrimSpace(lines[i])) >= 3 {
			// overline or transition
			continue
		}
		body = append(body, lines[i])
	}
	flush()

	return sections
}

const rstAdornments = "=-~^\"'`*+#:.<>_"

func isRSTUnderline(line string, minLen int) bool {
	line = strings.TrimRight(line, " \t")
	if len(line) < minLen || len(line) == 0 {
		return false
	}
	c := line[0]
	if !strings.ContainsRune(rstAdornments, rune(c)) {
		return false
	}
	for i := 1; i < len(line); i++ {
		if line[i] != c {
			return false
		}
	}
	return true
}
