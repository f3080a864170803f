// Package client performs search API requests and retries throttled ones.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/pmid-resolver/pkg/query"
	"github.com/Sternrassler/pmid-resolver/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for search requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmid_requests_total",
		Help: "Total search API requests by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pmid_request_duration_seconds",
		Help:    "Search API request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmid_errors_total",
		Help: "Total search API hard failures by class",
	}, []string{"class"})
)

// maxPayloadBytes bounds the response body read into memory.
const maxPayloadBytes = 16 << 20

// Config holds the HTTP executor configuration.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds a single request.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// HTTPExecutor issues one GET per call and classifies the response.
type HTTPExecutor struct {
	httpClient *http.Client
	tracker    *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

var _ Executor = (*HTTPExecutor)(nil)

// New creates an HTTP executor. tracker may be nil.
func New(cfg Config, tracker *ratelimit.Tracker) (*HTTPExecutor, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %v)", cfg.Timeout)
	}

	return &HTTPExecutor{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracker:    tracker,
		config:     cfg,
		logger:     log.With().Str("component", "search-client").Logger(),
	}, nil
}

// Execute performs the request. 429 maps to Throttled, 2xx to Success with
// the body, and everything else to Failure.
func (c *HTTPExecutor) Execute(ctx context.Context, target string) Outcome {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return c.fail(&RequestError{ErrorClass: ErrorClassClient, Message: "create request", Err: err})
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/xml")

	c.logger.Debug().Str("target", redact(target)).Msg("Executing search request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(&RequestError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err})
	}
	defer resp.Body.Close()

	if c.tracker != nil {
		if err := c.tracker.UpdateFromHeaders(resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayloadBytes))
		if c.tracker != nil {
			c.tracker.RecordThrottle(resp.Header)
		}
		requestsTotal.WithLabelValues(OutcomeThrottled.String()).Inc()
		return Throttled()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayloadBytes))
		return c.fail(&RequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return c.fail(&RequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassPayload,
			Message:    "read response body",
			Err:        err,
		})
	}

	requestsTotal.WithLabelValues(OutcomeSuccess.String()).Inc()
	return Success(body)
}

func (c *HTTPExecutor) fail(err *RequestError) Outcome {
	errorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()
	requestsTotal.WithLabelValues(OutcomeFailure.String()).Inc()
	c.logger.Debug().
		Int("status_code", err.StatusCode).
		Str("error_class", string(err.ErrorClass)).
		Err(err).
		Msg("Search request failed")
	return Failure(err)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *HTTPExecutor) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// redact removes the credential parameter from a target before logging.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "<unparseable>"
	}
	q := u.Query()
	if !q.Has(query.CredentialParam) {
		return target
	}
	q.Set(query.CredentialParam, "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
