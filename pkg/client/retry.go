package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmid_retries_total",
		Help: "Total number of retries after a throttle signal",
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmid_retry_exhausted_total",
		Help: "Total number of requests that stayed throttled for every attempt",
	})
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware wall-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first one.
	MaxAttempts int

	// Delay is the fixed wait between a throttled attempt and the next one.
	Delay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       1 * time.Second,
	}
}

// Retrier retries an Executor on throttle signals only. Hard failures are
// returned immediately.
//
// Attempts follow check-then-sleep: after a throttled attempt the retrier
// sleeps only if another attempt remains, so n throttled attempts cost n-1
// sleeps before ErrRateLimitExhausted.
type Retrier struct {
	exec   Executor
	config RetryConfig
	sleep  SleepFunc
	logger zerolog.Logger
}

// NewRetrier wraps exec. A nil sleep uses Sleep.
func NewRetrier(exec Executor, cfg RetryConfig, sleep SleepFunc) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Retrier{
		exec:   exec,
		config: cfg,
		sleep:  sleep,
		logger: log.With().Str("component", "retry").Logger(),
	}
}

// Config returns the effective configuration.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// Fetch returns the payload of the first successful attempt.
func (r *Retrier) Fetch(ctx context.Context, target string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		outcome := r.exec.Execute(ctx, target)

		switch outcome.Kind {
		case OutcomeSuccess:
			if attempt > 1 {
				r.logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return outcome.Payload, nil

		case OutcomeThrottled:
			if attempt >= r.config.MaxAttempts {
				retryExhaustedTotal.Inc()
				r.logger.Warn().
					Int("max_attempts", r.config.MaxAttempts).
					Msg("Retry attempts exhausted while throttled")
				return nil, fmt.Errorf("%w after %d attempts", ErrRateLimitExhausted, attempt)
			}

			retriesTotal.Inc()
			r.logger.Warn().
				Int("attempt", attempt).
				Int("max_attempts", r.config.MaxAttempts).
				Dur("delay", r.config.Delay).
				Msg("Rate limit exceeded, retrying")

			if err := r.sleep(ctx, r.config.Delay); err != nil {
				r.logger.Warn().
					Int("attempt", attempt).
					Msg("Context cancelled during retry delay")
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
			}

		default:
			if outcome.Err == nil {
				return nil, fmt.Errorf("request failed without cause")
			}
			return nil, outcome.Err
		}
	}
}
