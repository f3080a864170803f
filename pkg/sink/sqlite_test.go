package sink

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Sternrassler/pmid-resolver/pkg/results"
)

type idRow struct {
	Title    string
	Position int
	PMID     string
}

func readIDs(t *testing.T, path, runID string) []idRow {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	rows, err := sq.Select("title", "position", "pmid").
		From("resolved_ids").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("title", "position").
		RunWith(db).
		Query()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var out []idRow
	for rows.Next() {
		var r idRow
		if err := rows.Scan(&r.Title, &r.Position, &r.PMID); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func countRuns(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var n int
	if err := sq.Select("COUNT(*)").From("runs").RunWith(db).QueryRow().Scan(&n); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	return n
}

func TestSQLite_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.db")
	s := &SQLite{
		Path:  path,
		RunID: "run-1",
		now:   func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}

	if err := s.Write(context.Background(), sampleEntries); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got := readIDs(t, path, "run-1")
	want := []idRow{
		{Title: `Re: "Fish & Chips" <b>`, Position: 0, PMID: "222"},
		{Title: `Re: "Fish & Chips" <b>`, Position: 1, PMID: "333"},
		{Title: "Study of X", Position: 0, PMID: "111"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %+v, want %+v", got, want)
	}
	if n := countRuns(t, path); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestSQLite_AppendsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	for i := 0; i < 2; i++ {
		s := &SQLite{Path: path, RunID: fmt.Sprintf("run-%d", i)}
		if err := s.Write(context.Background(), sampleEntries[:1]); err != nil {
			t.Fatalf("Write(%d) error = %v", i, err)
		}
	}

	if n := countRuns(t, path); n != 2 {
		t.Errorf("runs = %d, want 2", n)
	}
	if rows := readIDs(t, path, "run-1"); len(rows) != 1 {
		t.Errorf("run-1 rows = %d, want 1", len(rows))
	}
}

func TestSQLite_GeneratesRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s := &SQLite{Path: path}

	if err := s.Write(context.Background(), nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n := countRuns(t, path); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestSQLite_ChunkedInsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	ids := make([]string, insertChunk*2+7)
	for i := range ids {
		ids[i] = fmt.Sprint(100000 + i)
	}
	s := &SQLite{Path: path, RunID: "big"}
	if err := s.Write(context.Background(), []results.Entry{{Title: "many", IDs: ids}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	rows := readIDs(t, path, "big")
	if len(rows) != len(ids) {
		t.Errorf("rows = %d, want %d", len(rows), len(ids))
	}
}
