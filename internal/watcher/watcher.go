package watcher

import (
	"context"
	"path"
	"strings"
	"time"
)

// Operation is the kind of change observed for a path.
type Operation int

const (
	// OpCreate indicates a new file or directory.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file or directory was removed.
	OpDelete
	// OpRename indicates a file or directory was moved away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change under the watched directory.
type FileEvent struct {
	// Path is slash-separated and relative to the watched root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher reports debounced batches of changes under a directory.
type Watcher interface {
	// Start watches path recursively until Stop is called or ctx is done.
	Start(ctx context.Context, path string) error
	// Stop releases resources. Safe to call multiple times.
	Stop() error
	// Events is closed when the watcher stops.
	Events() <-chan []FileEvent
	// Errors carries non-fatal errors. Closed when the watcher stops.
	Errors() <-chan error
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long the input must be quiet before a batch is
	// emitted. Default: 2s, long enough to cover a multi-file copy.
	DebounceWindow time.Duration

	// PollInterval is used when fsnotify is unavailable. Default: 5s.
	PollInterval time.Duration

	// EventBufferSize bounds queued batches. Default: 16.
	EventBufferSize int

	// ForcePolling skips fsnotify, for network mounts where it misses events.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  2 * time.Second,
		PollInterval:    5 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// Ignored reports whether a relative path never affects the index: hidden
// entries (which the builder skips) and the lock and temp files that office
// suites and editors leave next to documents.
func Ignored(rel string) bool {
	if rel == "" || rel == "." {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	base := path.Base(rel)
	switch {
	case strings.HasPrefix(base, "~$"), strings.HasSuffix(base, "~"):
		return true
	case strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".tmp"), strings.HasSuffix(base, ".part"):
		return true
	}
	return false
}
