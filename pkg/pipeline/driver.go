// Package pipeline resolves a document of article titles to PubMed IDs.
//
// A Driver reads titles from a source, resolves each one through the batch
// scheduler (normalize, build query, fetch with retry, extract identifiers)
// and writes the accumulated results to a sink. Per-title failures are
// logged and skipped; reading the source, writing the sink and interruption
// are fatal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pmid-resolver/pkg/batch"
	"github.com/Sternrassler/pmid-resolver/pkg/logging"
	"github.com/Sternrassler/pmid-resolver/pkg/results"
	"github.com/Sternrassler/pmid-resolver/pkg/sink"
	"github.com/Sternrassler/pmid-resolver/pkg/title"
)

// TitleSource produces the ordered raw titles of a run.
type TitleSource interface {
	Titles(ctx context.Context) ([]string, error)
}

// QueryBuilder turns a normalized title into a request target.
type QueryBuilder interface {
	Build(title string) (string, error)
}

// Fetcher retrieves the payload for a request target.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// Extractor pulls identifiers out of a payload.
type Extractor interface {
	Extract(payload []byte, title string) ([]string, error)
}

// Deps are the collaborators of a Driver.
type Deps struct {
	Source    TitleSource
	Sink      sink.Sink
	Builder   QueryBuilder
	Fetcher   Fetcher
	Extractor Extractor
	Scheduler *batch.Scheduler

	// Normalize defaults to title.Normalize.
	Normalize func(string) string
	Logger    zerolog.Logger
	// RunID defaults to a random UUID.
	RunID string
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	RunID    string
	Titles   int
	Batches  int
	Resolved int // titles with at least one identifier
	Failed   int // units that returned an error
	Duration time.Duration
}

// Driver runs the resolution pipeline once per Run call.
type Driver struct {
	deps Deps
}

// New creates a driver. All collaborators except Normalize are required.
func New(deps Deps) (*Driver, error) {
	var missing []string
	if deps.Source == nil {
		missing = append(missing, "source")
	}
	if deps.Sink == nil {
		missing = append(missing, "sink")
	}
	if deps.Builder == nil {
		missing = append(missing, "builder")
	}
	if deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	if deps.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if deps.Scheduler == nil {
		missing = append(missing, "scheduler")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing %v", missing)
	}

	if deps.Normalize == nil {
		deps.Normalize = title.Normalize
	}
	if deps.RunID == "" {
		deps.RunID = uuid.New().String()
	}
	return &Driver{deps: deps}, nil
}

// RunID returns the identifier attached to this driver's log lines.
func (d *Driver) RunID() string {
	return d.deps.RunID
}

// Run reads all titles, resolves them and writes the results. On
// interruption nothing is written and the error wraps batch.ErrInterrupted.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	logger := logging.WithRun(d.deps.Logger, d.deps.RunID)
	summary := Summary{RunID: d.deps.RunID}

	titles, err := d.deps.Source.Titles(ctx)
	if err != nil {
		return summary, fmt.Errorf("read titles: %w", err)
	}
	summary.Titles = len(titles)

	cfg := d.deps.Scheduler.Config()
	logger.Info().
		Int("titles", len(titles)).
		Int("batch_size", cfg.BatchSize).
		Int("workers", cfg.Workers).
		Int("rps", cfg.RequestsPerSecond).
		Msg("Starting resolution run")

	acc := results.NewAccumulator()
	report, err := d.deps.Scheduler.Run(ctx, titles, func(ctx context.Context, raw string) error {
		return d.resolve(ctx, acc, raw)
	})
	summary.Batches = len(report.Batches)
	summary.Failed = report.Failed
	summary.Resolved = acc.Len()
	summary.Duration = time.Since(start)
	if err != nil {
		logger.Error().
			Err(err).
			Int("batches_done", summary.Batches).
			Int("resolved", summary.Resolved).
			Msg("Resolution run interrupted")
		return summary, err
	}

	if err := d.deps.Sink.Write(ctx, acc.Ordered(titles)); err != nil {
		return summary, fmt.Errorf("write results: %w", err)
	}
	summary.Duration = time.Since(start)

	logger.Info().
		Int("titles", summary.Titles).
		Int("batches", summary.Batches).
		Int("resolved", summary.Resolved).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Resolution run complete")

	return summary, nil
}

// resolve handles one title. Results are keyed by the raw title; the
// normalized form is only used for the query.
func (d *Driver) resolve(ctx context.Context, acc *results.Accumulator, raw string) error {
	target, err := d.deps.Builder.Build(d.deps.Normalize(raw))
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	payload, err := d.deps.Fetcher.Fetch(ctx, target)
	if err != nil {
		return err
	}

	ids, err := d.deps.Extractor.Extract(payload, raw)
	if err != nil {
		return err
	}
	acc.Record(raw, ids)
	return nil
}

// IsInterrupted reports whether err ended a run early.
func IsInterrupted(err error) bool {
	return errors.Is(err, batch.ErrInterrupted)
}
