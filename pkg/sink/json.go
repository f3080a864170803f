package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/pmid-resolver/pkg/results"
)

// JSON writes an array of {"title", "ids"} objects.
type JSON struct {
	w io.Writer
}

// NewJSON creates a JSON sink writing to w.
func NewJSON(w io.Writer) Sink {
	return &JSON{w: w}
}

// Write implements Sink.
func (s *JSON) Write(ctx context.Context, entries []results.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []results.Entry{}
	}
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
