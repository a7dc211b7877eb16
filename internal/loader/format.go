package loader

import (
	"sort"
	"strings"
)

// Format is the closed set of document families the dispatcher knows.
// The zero value is FormatUnsupported.
type Format int

const (
	FormatUnsupported Format = iota
	FormatPDF
	FormatDOCX
	FormatDOC
	FormatODT
	FormatXLS
	FormatXLSX
	FormatPPTX
	FormatText
	FormatHTML
)

var formatNames = map[Format]string{
	FormatUnsupported: "unsupported",
	FormatPDF:         "pdf",
	FormatDOCX:        "docx",
	FormatDOC:         "doc",
	FormatODT:         "odt",
	FormatXLS:         "xls",
	FormatXLSX:        "xlsx",
	FormatPPTX:        "pptx",
	FormatText:        "text",
	FormatHTML:        "html",
}

// extensionFormats maps lower-case extensions (without the dot) to formats.
var extensionFormats = map[string]Format{
	"pdf":      FormatPDF,
	"docx":     FormatDOCX,
	"doc":      FormatDOC,
	"odt":      FormatODT,
	"xls":      FormatXLS,
	"xlsx":     FormatXLSX,
	"pptx":     FormatPPTX,
	"txt":      FormatText,
	"text":     FormatText,
	"md":       FormatText,
	"markdown": FormatText,
	"rst":      FormatText,
	"html":     FormatHTML,
	"htm":      FormatHTML,
}

// String returns the format family name.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return formatNames[FormatUnsupported]
}

// Supported reports whether f is anything but FormatUnsupported.
func (f Format) Supported() bool {
	return f != FormatUnsupported && formatNames[f] != ""
}

// FormatForExtension resolves an extension case-insensitively.
// Both ".PDF" and "pdf" are accepted.
func FormatForExtension(ext string) Format {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	return extensionFormats[ext]
}

// normalizeExt returns the lower-case extension without the dot.
func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// SupportedExtensions lists every known extension, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionFormats))
	for ext := range extensionFormats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
