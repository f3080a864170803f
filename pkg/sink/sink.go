// Package sink writes resolved titles to an output destination.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/pmid-resolver/pkg/results"
)

// Output formats.
const (
	FormatXML    = "xml"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Sink serializes the final title -> identifiers mapping.
type Sink interface {
	Write(ctx context.Context, entries []results.Entry) error
}

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatXML, FormatJSON, FormatSQLite}
}

// FormatFromPath infers the output format from the file extension,
// defaulting to XML.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatXML
	}
}

// Open returns a file-backed sink for format. runID tags SQLite rows.
func Open(path, format, runID string) (Sink, error) {
	if format == "" {
		format = FormatFromPath(path)
	}
	switch format {
	case FormatXML:
		return &File{Path: path, Encode: NewXML}, nil
	case FormatJSON:
		return &File{Path: path, Encode: NewJSON}, nil
	case FormatSQLite:
		return &SQLite{Path: path, RunID: runID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// File writes an encoded document to Path. The file is replaced only after
// the document has been fully written.
type File struct {
	Path   string
	Encode func(w io.Writer) Sink
}

// Write implements Sink.
func (f *File) Write(ctx context.Context, entries []results.Entry) error {
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if err := f.Encode(tmp).Write(ctx, entries); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
