// Package batch runs per-title work in fixed-size batches on a shared worker
// pool.
//
// Titles are partitioned into consecutive batches of Config.BatchSize. Each
// batch is dispatched to Config.Workers goroutines and fully drained before
// the next batch is dispatched. Between batches the scheduler sleeps for
// BatchSize/RequestsPerSecond seconds so that the overall request rate stays
// near the configured budget.
//
// Example usage:
//
//	sched, err := batch.NewScheduler(batch.DefaultConfig(), logger)
//	report, err := sched.Run(ctx, titles, func(ctx context.Context, title string) error {
//		return resolve(ctx, title)
//	})
//
// The scheduler:
//   - Keeps at most Workers units in flight
//   - Logs "Processing batch i of n" before each batch
//   - Logs and counts unit failures without aborting the run
//   - Stops after the current batch drains when ctx is cancelled
package batch
