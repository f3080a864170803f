package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmid_rate_limit_remaining",
		Help: "Requests remaining in the current search API rate limit window",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmid_rate_limit_throttles_total",
		Help: "Total number of 429 responses received from the search API",
	})
)

// Tracker records the server-reported budget. It is safe for concurrent use
// and only observes; pacing decisions are made by the batch scheduler.
type Tracker struct {
	mu     sync.Mutex
	state  State
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker with an unknown budget.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		state:  State{Remaining: -1},
		logger: logger,
		now:    time.Now,
	}
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// UpdateFromHeaders parses the rate limit headers of a response. Responses
// without the headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	limitStr := headers.Get(HeaderLimit)
	remainStr := headers.Get(HeaderRemaining)
	if limitStr == "" && remainStr == "" {
		return nil
	}

	limit, err := parseIntHeader(limitStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
	}
	remain, err := parseIntHeader(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}
	if remainStr == "" {
		remain = -1
	}

	t.mu.Lock()
	if limitStr != "" {
		t.state.Limit = limit
	}
	t.state.Remaining = remain
	t.state.LastUpdate = t.now()
	state := t.state
	t.mu.Unlock()

	if remain >= 0 {
		rateLimitRemaining.Set(float64(remain))
	}

	if state.IsLow() {
		t.logger.Warn().
			Int("limit", state.Limit).
			Int("remaining", state.Remaining).
			Msg("Search API rate limit budget low")
	} else {
		t.logger.Debug().
			Int("limit", state.Limit).
			Int("remaining", state.Remaining).
			Msg("Search API rate limit state updated")
	}

	return nil
}

// RecordThrottle counts a 429 response and remembers its Retry-After hint.
func (t *Tracker) RecordThrottle(headers http.Header) {
	retryAfter := parseRetryAfter(headers.Get(HeaderRetryAfter))

	t.mu.Lock()
	t.state.Throttles++
	if retryAfter > 0 {
		t.state.RetryAfter = retryAfter
	}
	throttles := t.state.Throttles
	t.mu.Unlock()

	rateLimitThrottlesTotal.Inc()
	t.logger.Warn().
		Int("throttles", throttles).
		Dur("retry_after", retryAfter).
		Msg("Search API signalled too many requests")
}

func parseIntHeader(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// parseRetryAfter accepts delta-seconds only; HTTP dates are ignored.
func parseRetryAfter(value string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
