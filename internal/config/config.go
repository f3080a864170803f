// Package config loads resolver settings from defaults, an optional YAML
// file and the environment. CLI flags are applied on top by cmd/pmid-resolver.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/pmid-resolver/pkg/batch"
	"github.com/Sternrassler/pmid-resolver/pkg/client"
	"github.com/Sternrassler/pmid-resolver/pkg/query"
	"github.com/Sternrassler/pmid-resolver/pkg/sink"
	"github.com/Sternrassler/pmid-resolver/pkg/title"
)

const (
	// PathEnv names a YAML file loaded when no explicit path is given.
	PathEnv = "PMID_RESOLVER_CONFIG"

	APIKeyEnv   = "NCBI_API_KEY"
	RedisURLEnv = "REDIS_URL"
	LogLevelEnv = "LOG_LEVEL"

	DefaultUserAgent = "pmid-resolver/0.1.0"
)

// Config holds all resolver settings.
type Config struct {
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	API     APIConfig     `yaml:"api"`
	Batch   batch.Config  `yaml:"batch"`
	Retry   RetryConfig   `yaml:"retry"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// InputConfig locates the title document.
type InputConfig struct {
	Path string `yaml:"path"`
	// Format is "xml" or "lines"; empty infers from the extension.
	Format string `yaml:"format"`
}

// OutputConfig locates the result document.
type OutputConfig struct {
	Path string `yaml:"path"`
	// Format is "xml", "json" or "sqlite"; empty infers from the extension.
	Format string `yaml:"format"`
}

// APIConfig describes the search endpoint.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Database  string        `yaml:"database"`
	APIKey    string        `yaml:"api_key"`
	Field     string        `yaml:"field"`
	Proximity int           `yaml:"proximity"`
	RetMax    int           `yaml:"retmax"`
	Tool      string        `yaml:"tool"`
	Email     string        `yaml:"email"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RetryConfig controls retries of throttled requests.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// CacheConfig enables the Redis response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// RedisAddr is host:port or a redis:// URL.
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	q := query.DefaultConfig("")
	c := client.DefaultConfig(DefaultUserAgent)
	r := client.DefaultRetryConfig()
	return Config{
		Output: OutputConfig{Path: "output.xml"},
		API: APIConfig{
			BaseURL:   q.BaseURL,
			Database:  q.Database,
			Field:     q.Field,
			Proximity: q.Proximity,
			UserAgent: c.UserAgent,
			Timeout:   c.Timeout,
		},
		Batch: batch.DefaultConfig(),
		Retry: RetryConfig{MaxAttempts: r.MaxAttempts, Delay: r.Delay},
		Cache: CacheConfig{
			RedisAddr: "localhost:6379",
			TTL:       client.DefaultCacheTTL,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load returns the defaults overlaid with the YAML file at path (or at
// $PMID_RESOLVER_CONFIG when path is empty) and then the environment.
// Fields absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(APIKeyEnv); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv(RedisURLEnv); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv(LogLevelEnv); v != "" {
		c.Log.Level = v
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if err := c.Batch.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry max attempts must be > 0 (got %d)", c.Retry.MaxAttempts))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must be >= 0 (got %v)", c.Retry.Delay))
	}
	if c.API.UserAgent == "" {
		errs = append(errs, errors.New("user-agent is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0 (got %v)", c.API.Timeout))
	}
	if c.API.Proximity < 0 {
		errs = append(errs, fmt.Errorf("proximity must be >= 0 (got %d)", c.API.Proximity))
	}
	if f := c.Input.Format; f != "" && f != string(title.FormatXML) && f != string(title.FormatLines) {
		errs = append(errs, fmt.Errorf("%w: input %q", title.ErrUnknownFormat, f))
	}
	if f := c.Output.Format; f != "" && !slices.Contains(sink.Formats(), f) {
		errs = append(errs, fmt.Errorf("%w: output %q", sink.ErrUnknownFormat, f))
	}
	if c.Cache.Enabled {
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache enabled but redis address is empty"))
		}
		if c.Cache.TTL <= 0 {
			errs = append(errs, fmt.Errorf("cache ttl must be > 0 (got %v)", c.Cache.TTL))
		}
	}

	return errors.Join(errs...)
}

// Query returns the query builder configuration.
func (c Config) Query() query.Config {
	return query.Config{
		BaseURL:   c.API.BaseURL,
		Database:  c.API.Database,
		Field:     c.API.Field,
		Proximity: c.API.Proximity,
		APIKey:    c.API.APIKey,
		RetMax:    c.API.RetMax,
		Tool:      c.API.Tool,
		Email:     c.API.Email,
	}
}

// Client returns the HTTP executor configuration.
func (c Config) Client() client.Config {
	return client.Config{UserAgent: c.API.UserAgent, Timeout: c.API.Timeout}
}

// RetryPolicy returns the retry controller configuration.
func (c Config) RetryPolicy() client.RetryConfig {
	return client.RetryConfig{MaxAttempts: c.Retry.MaxAttempts, Delay: c.Retry.Delay}
}
