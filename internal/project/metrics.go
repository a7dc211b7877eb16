package project

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/query"
	"github.com/aissist/indexbot/internal/telemetry"
	"github.com/aissist/indexbot/internal/ui"
)

// TelemetryFile holds the project's query statistics, next to input/ and
// index/.
const TelemetryFile = "telemetry.db"

// statusTopN bounds the term and question lists shown by Status.
const statusTopN = 5

func (p *Project) telemetryPath() string {
	return filepath.Join(p.cfg.ProjectDir(), TelemetryFile)
}

// queryStats opens the statistics database. With create false a missing
// file yields nil.
func (p *Project) queryStats(ctx context.Context, create bool) (*telemetry.Store, error) {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()

	if p.metrics != nil {
		return p.metrics, nil
	}
	path := p.telemetryPath()
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s, err := telemetry.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	p.metrics = s
	return s, nil
}

// recordQuery logs one question. Questions that never reached the index
// are not counted, and a statistics failure never fails the question.
func (p *Project) recordQuery(ctx context.Context, question string, res *query.Result, err error, latency time.Duration) {
	switch {
	case errors.Is(err, context.Canceled),
		apperrors.GetCode(err) == apperrors.ErrCodeIndexUnavailable,
		apperrors.GetCode(err) == apperrors.ErrCodeQueryEmpty:
		return
	}

	event := telemetry.QueryEvent{
		Question:  question,
		Latency:   latency,
		Failed:    err != nil,
		Timestamp: time.Now(),
	}
	if res != nil {
		event.Retrieved = len(res.RetrievedNodeIDs)
	}

	s, openErr := p.queryStats(ctx, true)
	if openErr == nil {
		openErr = s.Record(context.WithoutCancel(ctx), event)
	}
	if openErr != nil {
		slog.Warn("query_stats_failed", slog.String("error", openErr.Error()))
	}
}

// queryStatus summarises the statistics for Status, or nil before the
// first question.
func (p *Project) queryStatus(ctx context.Context) *ui.QueryStats {
	s, err := p.queryStats(ctx, false)
	if err != nil {
		slog.Warn("query_stats_unavailable", slog.String("error", err.Error()))
		return nil
	}
	if s == nil {
		return nil
	}
	snap, err := s.Snapshot(ctx, statusTopN)
	if err != nil {
		slog.Warn("query_stats_unavailable", slog.String("error", err.Error()))
		return nil
	}

	stats := &ui.QueryStats{
		Total:           snap.TotalQueries,
		Answered:        snap.Outcomes[telemetry.OutcomeAnswered],
		NoContext:       snap.Outcomes[telemetry.OutcomeNoContext],
		Failed:          snap.Outcomes[telemetry.OutcomeFailed],
		RecentNoContext: snap.RecentNoContext,
		Since:           snap.Since,
	}
	for _, b := range telemetry.Buckets {
		if n := snap.LatencyDistribution[b]; n > 0 {
			stats.Latency = append(stats.Latency, ui.Count{Label: string(b), Count: n})
		}
	}
	for _, tc := range snap.TopTerms {
		stats.TopTerms = append(stats.TopTerms, ui.Count{Label: tc.Term, Count: tc.Count})
	}
	return stats
}
