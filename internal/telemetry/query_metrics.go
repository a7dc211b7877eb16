// Package telemetry keeps local statistics about the questions a project
// answers. Nothing leaves the machine.
package telemetry

import (
	"strings"
	"time"
	"unicode"
)

// LatencyBucket represents a latency histogram bucket. Answers wait on a
// language model, so the buckets are in seconds.
type LatencyBucket string

const (
	BucketUnder1s  LatencyBucket = "<1s"
	BucketUnder5s  LatencyBucket = "1-5s"
	BucketUnder15s LatencyBucket = "5-15s"
	BucketUnder60s LatencyBucket = "15-60s"
	BucketOver60s  LatencyBucket = ">=60s"
)

// Buckets lists the latency buckets in ascending order.
var Buckets = []LatencyBucket{BucketUnder1s, BucketUnder5s, BucketUnder15s, BucketUnder60s, BucketOver60s}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < time.Second:
		return BucketUnder1s
	case d < 5*time.Second:
		return BucketUnder5s
	case d < 15*time.Second:
		return BucketUnder15s
	case d < time.Minute:
		return BucketUnder60s
	default:
		return BucketOver60s
	}
}

// Outcome classifies how a question ended.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeNoContext Outcome = "no_context"
	OutcomeFailed    Outcome = "failed"
)

// QueryEvent is one answered or failed question.
type QueryEvent struct {
	Question  string
	Retrieved int
	Latency   time.Duration
	Failed    bool
	Timestamp time.Time
}

// Outcome returns how the question ended. A question with no retrieved
// passages was answered without grounding.
func (e QueryEvent) Outcome() Outcome {
	switch {
	case e.Failed:
		return OutcomeFailed
	case e.Retrieved == 0:
		return OutcomeNoContext
	default:
		return OutcomeAnswered
	}
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "what": {}, "who": {},
	"how": {}, "why": {}, "when": {}, "where": {}, "which": {}, "does": {}, "did": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "about": {}, "there": {}, "can": {},
	"you": {}, "your": {}, "our": {}, "is": {}, "of": {}, "to": {}, "in": {},
}

// ExtractTerms returns the distinct lowercased words of a question that are
// at least three letters long and not stop words, in order of appearance.
func ExtractTerms(question string) []string {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var terms []string
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot summarises every recorded question.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	Outcomes            map[Outcome]int64       `json:"outcomes"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	// RecentNoContext holds the newest unanswerable questions first.
	RecentNoContext []string  `json:"recent_no_context"`
	Since           time.Time `json:"since"`
}

// NoContextRate is the share of questions answered without any passage.
func (s *Snapshot) NoContextRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.Outcomes[OutcomeNoContext]) / float64(s.TotalQueries)
}
