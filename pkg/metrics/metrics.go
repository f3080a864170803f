// Package metrics exposes the resolver's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, batch,
// cache, extract, ratelimit) and registered via promauto.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the resolver.
var Registry = prometheus.DefaultRegisterer

// Gatherer serves the metrics registered with Registry.
var Gatherer = prometheus.DefaultGatherer

const shutdownTimeout = 5 * time.Second

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Serve serves Handler on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, logger zerolog.Logger) error {
	srv := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func ListenAndServe(ctx context.Context, addr string, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, logger)
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - pmid_requests_total{outcome} (Counter): Requests by outcome (success, throttled, failure)
//   - pmid_request_duration_seconds (Histogram): Request duration
//   - pmid_errors_total{class} (Counter): Hard failures by class (client, server, network, payload)
//
// Retry Metrics (pkg/client):
//   - pmid_retries_total (Counter): Retry sleeps after a throttled attempt
//   - pmid_retry_exhausted_total (Counter): Titles still throttled after the last attempt
//
// Batch Metrics (pkg/batch):
//   - pmid_batches_total (Counter): Drained batches
//   - pmid_units_total{result} (Counter): Titles by result (ok, failed)
//   - pmid_pacing_seconds_total (Counter): Time spent pacing between batches
//
// Payload Metrics (pkg/extract):
//   - pmid_payload_parse_failures_total{kind} (Counter): Malformed or unreadable payloads
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pmid_rate_limit_remaining (Gauge): Last X-RateLimit-Remaining seen
//   - pmid_rate_limit_throttles_total (Counter): 429 responses
//
// Cache Metrics (pkg/cache):
//   - pmid_cache_hits_total (Counter)
//   - pmid_cache_misses_total (Counter)
//   - pmid_cache_errors_total{operation} (Counter)
//
// Example Prometheus Queries:
//
//	# Throttle ratio
//	rate(pmid_requests_total{outcome="throttled"}[5m]) / rate(pmid_requests_total[5m])
//
//	# Failed titles
//	pmid_units_total{result="failed"}
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(pmid_request_duration_seconds_bucket[5m]))
