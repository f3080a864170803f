package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/pmid-resolver/pkg/results"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL,
	titles INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS resolved_ids (
	run_id TEXT NOT NULL,
	title TEXT NOT NULL,
	position INTEGER NOT NULL,
	pmid TEXT NOT NULL,
	PRIMARY KEY (run_id, title, position),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_resolved_ids_pmid ON resolved_ids(pmid);
`

const insertChunk = 500

// SQLite appends a run and its resolved identifiers to a database file.
// Each Write is one transaction; earlier runs are kept.
type SQLite struct {
	Path  string
	RunID string // generated when empty

	now func() time.Time
}

// Write implements Sink.
func (s *SQLite) Write(ctx context.Context, entries []results.Entry) error {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	runID := s.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = sq.Insert("runs").
		Columns("id", "created_at", "titles").
		Values(runID, now().UTC(), len(entries)).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertIDs(ctx, tx, runID, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertIDs writes one row per identifier, chunked to stay below the
// SQLite bound-parameter limit.
func insertIDs(ctx context.Context, tx *sql.Tx, runID string, entries []results.Entry) error {
	newInsert := func() sq.InsertBuilder {
		return sq.Insert("resolved_ids").Columns("run_id", "title", "position", "pmid")
	}

	insert, pending := newInsert(), 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert ids: %w", err)
		}
		insert, pending = newInsert(), 0
		return nil
	}

	for _, e := range entries {
		for pos, id := range e.IDs {
			insert = insert.Values(runID, e.Title, pos, id)
			pending++
			if pending == insertChunk {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}
