// Package index builds the project's vector index: it loads every document
// in input/, embeds the text and publishes the result through the store as
// one atomic generation.
package index

import (
	"fmt"
	"time"

	"github.com/aissist/indexbot/internal/store"
)

// Outcome is how a build ended.
type Outcome string

const (
	// OutcomeBuilt means a new index was published.
	OutcomeBuilt Outcome = "built"
	// OutcomeEmptyCorpus means no document yielded text; nothing was written.
	OutcomeEmptyCorpus Outcome = "empty_corpus"
)

// State is the index lifecycle state.
type State string

const (
	StateNotBuilt State = "not_built"
	StateBuilding State = "building"
	StateReady    State = "ready"
)

// FileIssue names a file that did not contribute to the index.
type FileIssue struct {
	Path   string `json:"path"`
	Detail string `json:"detail"`
}

// Report summarizes one build.
type Report struct {
	Outcome   Outcome         `json:"outcome"`
	BuildID   string          `json:"build_id,omitempty"`
	Documents int             `json:"documents"`
	Nodes     int             `json:"nodes"`
	Failures  []FileIssue     `json:"failures"`
	Skipped   []FileIssue     `json:"skipped"`
	Manifest  *store.Manifest `json:"manifest,omitempty"`
	Duration  time.Duration   `json:"duration"`
	// Shared is set for callers that joined a build started by another caller.
	Shared bool `json:"shared"`
}

// Summary is the one-line result shown to users.
func (r *Report) Summary() string {
	if r.Outcome == OutcomeEmptyCorpus {
		return "No documents found in input/ - nothing to index."
	}
	s := fmt.Sprintf("Index rebuilt. %d documents indexed.", r.Documents)
	if n := len(r.Failures); n > 0 {
		s += fmt.Sprintf(" %d failed.", n)
	}
	return s
}
