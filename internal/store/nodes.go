package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/aissist/indexbot/internal/vector"
)

// NodesFile is the SQLite database holding node text and vectors.
const NodesFile = "nodes.db"

// GraphFile holds the exported HNSW graph, when the index has one.
const GraphFile = "vectors.hnsw"

// DocumentRecord is one indexed source document, stored for listings.
type DocumentRecord struct {
	Path   string
	Format string
	Nodes  int
}

const nodesSchema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE nodes (
	seq         INTEGER PRIMARY KEY,
	node_id     TEXT NOT NULL UNIQUE,
	source_path TEXT NOT NULL,
	chunk       INTEGER NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	text        TEXT NOT NULL,
	vector      BLOB NOT NULL
);

CREATE TABLE documents (
	path   TEXT PRIMARY KEY,
	format TEXT NOT NULL,
	nodes  INTEGER NOT NULL
);
`

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: the file is written once by one builder and then
	// only read.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// writeNodesDB creates path and stores every node of idx in insertion order.
func writeNodesDB(ctx context.Context, path string, idx *vector.Index, docs []DocumentRecord) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, nodesSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('model', ?), ('dimensions', ?)`,
		idx.ModelID(), fmt.Sprint(idx.Dimensions())); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (seq, node_id, source_path, chunk, title, text, vector) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, n := range idx.Nodes() {
		if _, err := stmt.ExecContext(ctx, i, n.ID, n.SourcePath, n.Chunk, n.Title, n.Text, encodeVector(n.Vector)); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", n.ID, err)
		}
	}

	for _, d := range docs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (path, format, nodes) VALUES (?, ?, ?)`, d.Path, d.Format, d.Nodes); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// readNodesDB loads the nodes written by writeNodesDB. Any vector whose
// length is not dims is reported as corruption by the caller.
func readNodesDB(ctx context.Context, path string, modelID string, dims int) (*vector.Index, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, "PRAGMA query_only = 1"); err != nil {
		return nil, fmt.Errorf("failed to set pragma: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT node_id, source_path, chunk, title, text, vector FROM nodes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	idx := vector.NewIndex(modelID, dims)
	for rows.Next() {
		var n vector.Node
		var blob []byte
		if err := rows.Scan(&n.ID, &n.SourcePath, &n.Chunk, &n.Title, &n.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Vector, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if err := idx.Add(n); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read nodes: %w", err)
	}
	return idx, nil
}

// readDocuments lists the documents table in path order.
func readDocuments(ctx context.Context, path string) ([]DocumentRecord, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `SELECT path, format, nodes FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.Path, &d.Format, &d.Nodes); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// encodeVector packs v as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
