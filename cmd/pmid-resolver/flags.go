package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sternrassler/pmid-resolver/internal/config"
	"github.com/Sternrassler/pmid-resolver/pkg/logging"
)

// addInputFlags registers flags shared by every command that reads titles.
func addInputFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.StringP("input", "i", d.Input.Path, "Title document (XML with ArticleTitle elements, or .txt with one title per line)")
	fs.String("input-format", d.Input.Format, "Input format: xml or lines (default: from extension)")
	fs.String("base-url", d.API.BaseURL, "esearch endpoint")
	fs.String("api-key", "", "NCBI API key (default $"+config.APIKeyEnv+")")
	fs.String("field", d.API.Field, "Search field the title phrase is matched against")
	fs.Int("proximity", d.API.Proximity, "Word proximity for fuzzy phrase matching (0 disables)")
	fs.Int("retmax", d.API.RetMax, "Maximum IDs per title (0 uses the server default)")
	fs.String("tool", d.API.Tool, "tool parameter sent to NCBI")
	fs.String("email", d.API.Email, "email parameter sent to NCBI")
}

// addResolveFlags registers the flags of the resolve command.
func addResolveFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.StringP("output", "o", d.Output.Path, "Result file")
	fs.StringP("format", "f", d.Output.Format, "Output format: xml, json or sqlite (default: from extension)")
	fs.String("user-agent", d.API.UserAgent, "User-Agent header")
	fs.Duration("timeout", d.API.Timeout, "Per-request timeout")
	fs.Int("batch-size", d.Batch.BatchSize, "Titles per batch")
	fs.Int("workers", d.Batch.Workers, "Concurrent requests")
	fs.Int("rps", d.Batch.RequestsPerSecond, "Request rate budget used for pacing between batches (0 disables pacing)")
	fs.Int("max-attempts", d.Retry.MaxAttempts, "Attempts per title while throttled")
	fs.Duration("retry-delay", d.Retry.Delay, "Wait after a throttled attempt")
	fs.Bool("cache", d.Cache.Enabled, "Cache search responses in Redis")
	fs.String("redis", d.Cache.RedisAddr, "Redis address or redis:// URL (default $"+config.RedisURLEnv+")")
	fs.Duration("cache-ttl", d.Cache.TTL, "Cache entry lifetime")
	fs.String("metrics-addr", d.Metrics.Addr, "Serve Prometheus metrics on this address during the run")
}

// loadConfig loads the config file and environment, then applies the flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	fs := cmd.Flags()
	path, _ := fs.GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	applyFlags(fs, &cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}

	str("input", &cfg.Input.Path)
	str("input-format", &cfg.Input.Format)
	str("output", &cfg.Output.Path)
	str("format", &cfg.Output.Format)
	str("base-url", &cfg.API.BaseURL)
	str("api-key", &cfg.API.APIKey)
	str("field", &cfg.API.Field)
	str("tool", &cfg.API.Tool)
	str("email", &cfg.API.Email)
	str("user-agent", &cfg.API.UserAgent)
	str("redis", &cfg.Cache.RedisAddr)
	str("metrics-addr", &cfg.Metrics.Addr)
	str("log-level", &cfg.Log.Level)

	num("proximity", &cfg.API.Proximity)
	num("retmax", &cfg.API.RetMax)
	num("batch-size", &cfg.Batch.BatchSize)
	num("workers", &cfg.Batch.Workers)
	num("rps", &cfg.Batch.RequestsPerSecond)
	num("max-attempts", &cfg.Retry.MaxAttempts)

	if fs.Changed("timeout") {
		cfg.API.Timeout, _ = fs.GetDuration("timeout")
	}
	if fs.Changed("retry-delay") {
		cfg.Retry.Delay, _ = fs.GetDuration("retry-delay")
	}
	if fs.Changed("cache-ttl") {
		cfg.Cache.TTL, _ = fs.GetDuration("cache-ttl")
	}
	if fs.Changed("cache") {
		cfg.Cache.Enabled, _ = fs.GetBool("cache")
	}
	if fs.Changed("pretty") {
		cfg.Log.Pretty, _ = fs.GetBool("pretty")
	}
}

func setupLogging(cmd *cobra.Command, cfg config.Config) zerolog.Logger {
	return logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})
}
