package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// MaxNoContextQueries bounds the log of questions that retrieved nothing.
const MaxNoContextQueries = 100

const dateLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS query_outcome_stats (
	date    TEXT NOT NULL,
	outcome TEXT NOT NULL,
	count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, outcome)
);

CREATE TABLE IF NOT EXISTS query_latency_stats (
	date   TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term      TEXT PRIMARY KEY,
	count     INTEGER NOT NULL DEFAULT 1,
	last_seen TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS no_context_queries (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	query     TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL
);
`

// Store persists query statistics in a SQLite file. Several processes may
// share one file; writers wait on each other.
type Store struct {
	db *sql.DB
}

// Open opens or creates the statistics database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record adds one question to the statistics.
func (s *Store) Record(ctx context.Context, e QueryEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	date := e.Timestamp.UTC().Format(dateLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO query_outcome_stats (date, outcome, count) VALUES (?, ?, 1)
		ON CONFLICT(date, outcome) DO UPDATE SET count = count + 1
	`, date, string(e.Outcome())); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO query_latency_stats (date, bucket, count) VALUES (?, ?, 1)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + 1
	`, date, string(LatencyToBucket(e.Latency))); err != nil {
		return fmt.Errorf("record latency: %w", err)
	}

	for _, term := range ExtractTerms(e.Question) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_terms (term, count, last_seen) VALUES (?, 1, ?)
			ON CONFLICT(term) DO UPDATE SET count = count + 1, last_seen = excluded.last_seen
		`, term, e.Timestamp.UTC()); err != nil {
			return fmt.Errorf("record term: %w", err)
		}
	}

	if e.Outcome() == OutcomeNoContext {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO no_context_queries (query, timestamp) VALUES (?, ?)`,
			e.Question, e.Timestamp.UTC()); err != nil {
			return fmt.Errorf("record no-context query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM no_context_queries WHERE id NOT IN (
				SELECT id FROM no_context_queries ORDER BY id DESC LIMIT ?
			)`, MaxNoContextQueries); err != nil {
			return fmt.Errorf("trim no-context queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Snapshot returns totals over all recorded days, the topN most frequent
// terms and the newest topN no-context questions.
func (s *Store) Snapshot(ctx context.Context, topN int) (*Snapshot, error) {
	snap := &Snapshot{
		Outcomes:            make(map[Outcome]int64),
		LatencyDistribution: make(map[LatencyBucket]int64),
	}

	var since sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(date) FROM query_outcome_stats`).Scan(&since); err != nil {
		return nil, fmt.Errorf("query first day: %w", err)
	}
	if since.Valid {
		if t, err := time.Parse(dateLayout, since.String); err == nil {
			snap.Since = t
		}
	}

	err := s.scanCounts(ctx, `SELECT outcome, SUM(count) FROM query_outcome_stats GROUP BY outcome`,
		func(key string, n int64) {
			snap.Outcomes[Outcome(key)] = n
			snap.TotalQueries += n
		})
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}

	err = s.scanCounts(ctx, `SELECT bucket, SUM(count) FROM query_latency_stats GROUP BY bucket`,
		func(key string, n int64) {
			snap.LatencyDistribution[LatencyBucket(key)] = n
		})
	if err != nil {
		return nil, fmt.Errorf("query latency: %w", err)
	}

	err = s.scanCounts(ctx, `SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`,
		func(key string, n int64) {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: key, Count: n})
		}, topN)
	if err != nil {
		return nil, fmt.Errorf("query terms: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT query FROM no_context_queries ORDER BY id DESC LIMIT ?`, topN)
	if err != nil {
		return nil, fmt.Errorf("query no-context questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		snap.RecentNoContext = append(snap.RecentNoContext, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *Store) scanCounts(ctx context.Context, query string, fn func(string, int64), args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		fn(key, n)
	}
	return rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
