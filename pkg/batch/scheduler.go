package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrInterrupted is returned when the run context is cancelled between or
// during batches. Results recorded before the interruption remain valid.
var ErrInterrupted = errors.New("batch run interrupted")

var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmid_batches_total",
		Help: "Total number of batches drained",
	})

	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmid_units_total",
		Help: "Total number of work units by result",
	}, []string{"result"}) // ok, failed

	pacingSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmid_pacing_seconds_total",
		Help: "Total time spent in inter-batch pacing sleeps",
	})
)

// Config holds scheduler configuration.
type Config struct {
	// BatchSize is the number of titles per batch
	BatchSize int `yaml:"batch_size"`
	// Workers is the size of the shared worker pool
	Workers int `yaml:"workers"`
	// RequestsPerSecond drives the pause between batches. Zero disables pacing.
	RequestsPerSecond int `yaml:"requests_per_second"`
}

// DefaultConfig returns the defaults for the public E-utilities budget with
// an API key (10 requests per second).
func DefaultConfig() Config {
	return Config{
		BatchSize:         10,
		Workers:           5,
		RequestsPerSecond: 10,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0 (got %d)", c.Workers)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must be >= 0 (got %d)", c.RequestsPerSecond)
	}
	return nil
}

// PacingDelay is the pause after each non-final batch.
func (c Config) PacingDelay() time.Duration {
	if c.RequestsPerSecond <= 0 {
		return 0
	}
	return time.Duration(c.BatchSize) * (time.Second / time.Duration(c.RequestsPerSecond))
}

// WorkFunc processes one title. A returned error marks the unit failed.
type WorkFunc func(ctx context.Context, title string) error

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// BatchReport describes one drained batch.
type BatchReport struct {
	Index    int
	Size     int
	Failed   int
	Duration time.Duration
}

// Report summarizes a run.
type Report struct {
	Batches []BatchReport
	Units   int // units dispatched
	Failed  int
	Paced   time.Duration
}

// Succeeded returns the number of units that completed without error.
func (r Report) Succeeded() int {
	return r.Units - r.Failed
}

// Scheduler partitions titles and drives them through the worker pool.
type Scheduler struct {
	config Config
	logger zerolog.Logger
	sleep  SleepFunc
}

// NewScheduler creates a scheduler.
func NewScheduler(config Config, logger zerolog.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		config: config,
		logger: logger,
		sleep:  sleepCtx,
	}, nil
}

// SetSleep replaces the pacing sleep (for testing).
func (s *Scheduler) SetSleep(fn SleepFunc) {
	if fn == nil {
		fn = sleepCtx
	}
	s.sleep = fn
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config {
	return s.config
}

type job struct {
	title  string
	done   *sync.WaitGroup
	failed *atomic.Int64
}

// Run processes all titles. Batch k+1 is only dispatched after every unit of
// batch k has completed. Unit failures are logged and counted; the only
// error Run returns wraps ErrInterrupted.
func (s *Scheduler) Run(ctx context.Context, titles []string, work WorkFunc) (Report, error) {
	batches := Partition(titles, s.config.BatchSize)
	report := Report{Batches: make([]BatchReport, 0, len(batches))}
	if len(batches) == 0 {
		return report, nil
	}

	jobs := make(chan job)
	var pool sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		pool.Add(1)
		go s.worker(ctx, i, jobs, work, &pool)
	}
	defer func() {
		close(jobs)
		pool.Wait()
	}()

	delay := s.config.PacingDelay()
	for i, titlesInBatch := range batches {
		s.logger.Info().
			Int("batch", i+1).
			Int("size", len(titlesInBatch)).
			Msgf("Processing batch %d of %d", i+1, len(batches))

		start := time.Now()
		var drain sync.WaitGroup
		var failed atomic.Int64
		for _, title := range titlesInBatch {
			drain.Add(1)
			jobs <- job{title: title, done: &drain, failed: &failed}
		}
		drain.Wait()
		batchesTotal.Inc()

		br := BatchReport{
			Index:    i,
			Size:     len(titlesInBatch),
			Failed:   int(failed.Load()),
			Duration: time.Since(start),
		}
		report.Batches = append(report.Batches, br)
		report.Units += br.Size
		report.Failed += br.Failed

		s.logger.Debug().
			Int("batch", i+1).
			Int("failed", br.Failed).
			Dur("duration", br.Duration).
			Msg("Batch drained")

		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w after batch %d of %d: %v", ErrInterrupted, i+1, len(batches), err)
		}

		if i == len(batches)-1 || delay <= 0 {
			continue
		}
		if err := s.sleep(ctx, delay); err != nil {
			return report, fmt.Errorf("%w during pacing after batch %d of %d: %v", ErrInterrupted, i+1, len(batches), err)
		}
		report.Paced += delay
		pacingSeconds.Add(delay.Seconds())
	}

	return report, nil
}

// worker processes units until jobs is closed.
func (s *Scheduler) worker(ctx context.Context, id int, jobs <-chan job, work WorkFunc, wg *sync.WaitGroup) {
	defer wg.Done()
	processed := 0

	for j := range jobs {
		if err := s.runUnit(ctx, j.title, work); err != nil {
			j.failed.Add(1)
			unitsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn().
				Err(err).
				Int("worker_id", id).
				Str("title", j.title).
				Msg("Title failed")
		} else {
			unitsTotal.WithLabelValues("ok").Inc()
		}
		j.done.Done()
		processed++
	}

	s.logger.Debug().
		Int("worker_id", id).
		Int("units_processed", processed).
		Msg("Worker stopped")
}

// runUnit converts a panicking unit into a failure so the batch still drains.
func (s *Scheduler) runUnit(ctx context.Context, title string, work WorkFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return work(ctx, title)
}

// Partition splits titles into consecutive batches of at most size titles,
// preserving order. The final batch holds the remainder.
func Partition(titles []string, size int) [][]string {
	if len(titles) == 0 {
		return nil
	}
	if size <= 0 || size >= len(titles) {
		return [][]string{titles[:len(titles):len(titles)]}
	}

	batches := make([][]string, 0, (len(titles)+size-1)/size)
	for start := 0; start < len(titles); start += size {
		end := min(start+size, len(titles))
		batches = append(batches, titles[start:end:end])
	}
	return batches
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
