// Package chunk splits extracted document text into retrievable units.
package chunk

// Chunk size defaults, in characters (runes). Roughly 4 characters per token,
// so the default chunk is about 256 tokens, which fits the 256-token window
// of MiniLM-class sentence embedders.
const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 128
	MinChunkSize        = 64
)

// Chunk is a retrievable unit of a document.
type Chunk struct {
	// Index is 0-based across the whole document, in document order.
	Index int
	// Section is the title of the structural node the chunk came from, if any.
	Section string
	Text    string
}
