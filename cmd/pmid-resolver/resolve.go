package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/pmid-resolver/internal/config"
	"github.com/Sternrassler/pmid-resolver/pkg/batch"
	"github.com/Sternrassler/pmid-resolver/pkg/cache"
	"github.com/Sternrassler/pmid-resolver/pkg/client"
	"github.com/Sternrassler/pmid-resolver/pkg/extract"
	"github.com/Sternrassler/pmid-resolver/pkg/logging"
	"github.com/Sternrassler/pmid-resolver/pkg/metrics"
	"github.com/Sternrassler/pmid-resolver/pkg/pipeline"
	"github.com/Sternrassler/pmid-resolver/pkg/query"
	"github.com/Sternrassler/pmid-resolver/pkg/ratelimit"
	"github.com/Sternrassler/pmid-resolver/pkg/sink"
	"github.com/Sternrassler/pmid-resolver/pkg/title"
)

var errNoInput = errors.New("no input document (use --input or input.path)")

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve every title of a document to PubMed IDs",
		Example: `  pmid-resolver resolve -i articles.xml -o pmids.xml
  NCBI_API_KEY=... pmid-resolver resolve -i titles.txt -o pmids.db --workers 5 --rps 10`,
		Args: cobra.NoArgs,
		RunE: runResolve,
	}
	addInputFlags(cmd.Flags())
	addResolveFlags(cmd.Flags())
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Input.Path == "" {
		return errNoInput
	}
	logger := setupLogging(cmd, cfg)
	ctx := cmd.Context()

	if cfg.Metrics.Addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := metrics.ListenAndServe(metricsCtx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	driver, cleanup, err := buildDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "resolved %d of %d titles (%d failed) in %d batches -> %s\n",
		summary.Resolved, summary.Titles, summary.Failed, summary.Batches, cfg.Output.Path)
	return nil
}

// buildDriver wires the pipeline for cfg. cleanup releases the Redis
// connection when the cache is enabled.
func buildDriver(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*pipeline.Driver, func(), error) {
	cleanup := func() {}
	runID := uuid.New().String()
	runLogger := logging.WithRun(logger, runID)

	builder, err := query.NewBuilder(cfg.Query())
	if err != nil {
		return nil, cleanup, err
	}

	tracker := ratelimit.NewTracker(runLogger.With().Str("component", "ratelimit").Logger())
	httpExec, err := client.New(cfg.Client(), tracker)
	if err != nil {
		return nil, cleanup, err
	}

	var exec client.Executor = httpExec
	if cfg.Cache.Enabled {
		rdb, err := newRedisClient(cfg.Cache.RedisAddr)
		if err != nil {
			return nil, cleanup, err
		}
		manager := cache.NewManager(rdb)
		if err := manager.Ping(ctx); err != nil {
			rdb.Close()
			return nil, cleanup, fmt.Errorf("connect to redis %s: %w", cfg.Cache.RedisAddr, err)
		}
		cleanup = func() { rdb.Close() }
		exec = client.NewCachedExecutor(httpExec, manager, cfg.Cache.TTL)
		runLogger.Info().Str("redis", cfg.Cache.RedisAddr).Dur("ttl", cfg.Cache.TTL).Msg("Response cache enabled")
	}

	scheduler, err := batch.NewScheduler(cfg.Batch, runLogger.With().Str("component", "batch").Logger())
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	out, err := sink.Open(cfg.Output.Path, cfg.Output.Format, runID)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	driver, err := pipeline.New(pipeline.Deps{
		Source:    title.NewFileSource(cfg.Input.Path, title.Format(cfg.Input.Format)),
		Sink:      out,
		Builder:   builder,
		Fetcher:   client.NewRetrier(exec, cfg.RetryPolicy(), client.Sleep),
		Extractor: extract.New(runLogger.With().Str("component", "extract").Logger()),
		Scheduler: scheduler,
		Logger:    logger.With().Str("component", "pipeline").Logger(),
		RunID:     runID,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return driver, cleanup, nil
}

func newRedisClient(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}
