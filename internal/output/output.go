// Package output writes the CLI's status lines, answers and paged listings.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// PageLimit is the largest page the document listing produces, matching the
// message size limit of common chat transports.
const PageLimit = 3500

// Writer provides formatted output for the CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Answer prints a model answer followed by the documents it was grounded on.
func (w *Writer) Answer(answer string, sources []string) {
	_, _ = fmt.Fprintln(w.out, strings.TrimSpace(answer))
	if len(sources) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w.out)
	_, _ = fmt.Fprintf(w.out, "Sources: %s\n", strings.Join(sources, ", "))
}

// Pages prints each page, separated by a blank line.
func (w *Writer) Pages(pages []string) {
	for i, p := range pages {
		if i > 0 {
			_, _ = fmt.Fprintln(w.out)
		}
		_, _ = fmt.Fprintln(w.out, p)
	}
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Paginate joins lines with newlines into pages of at most limit characters.
// A single line longer than limit is split across pages.
func Paginate(lines []string, limit int) []string {
	if limit <= 0 {
		limit = PageLimit
	}

	var pages []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			pages = append(pages, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range lines {
		for utf8.RuneCountInString(line) > limit {
			flush()
			head, tail := splitRunes(line, limit)
			pages = append(pages, head)
			line = tail
		}
		n := utf8.RuneCountInString(line)
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+n > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		curLen += sep + n
	}
	flush()
	return pages
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
