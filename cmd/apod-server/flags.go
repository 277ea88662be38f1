package main

import (
	"context"
	"fmt"
	"math"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/krisalay/apod-cache/apod"
	"github.com/krisalay/apod-cache/config"
)

// settings is everything the server needs, resolved from flags, environment,
// the config file and defaults, in that order.
type settings struct {
	maxItems      int
	ttl           time.Duration
	sweepInterval time.Duration
	coalesce      bool

	port int

	apiKey          string
	baseURL         string
	upstreamTimeout time.Duration
	upstreamRPS     float64

	logLevel  string
	logFormat string
}

// source chains an environment variable with a key in the config file.
func source(env, key string, cfg config.Type) cli.ValueSourceChain {
	return cli.NewValueSourceChain(
		cli.EnvVar(env),
		yaml.YAML(key, altsrc.StringSourcer(cfg.Source)),
	)
}

func newFlags(cfg config.Type) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "cache-max-items",
			Usage:   "maximum number of cached responses",
			Sources: source("CACHE_MAX_ITEMS", "cache.max_items", cfg),
			Value:   200,
		},
		&cli.IntFlag{
			Name:    "cache-ttl-ms",
			Usage:   "how long a cached response stays fresh, in milliseconds (0 disables expiry)",
			Sources: source("CACHE_TTL_MS", "cache.ttl_ms", cfg),
			Value:   int((24 * time.Hour).Milliseconds()),
		},
		&cli.DurationFlag{
			Name:    "cache-sweep-interval",
			Usage:   "how often expired entries are purged in the background (0 disables)",
			Sources: source("CACHE_SWEEP_INTERVAL", "cache.sweep_interval", cfg),
			Value:   10 * time.Minute,
		},
		&cli.BoolFlag{
			Name:    "cache-coalesce",
			Usage:   "share one upstream call between concurrent misses on the same key",
			Sources: source("CACHE_COALESCE", "cache.coalesce", cfg),
			Value:   false,
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "port to listen on",
			Sources: source("PORT", "server.port", cfg),
			Value:   4000,
		},
		&cli.StringFlag{
			Name:    "nasa-api-key",
			Usage:   "NASA API key",
			Sources: source("NASA_API_KEY", "nasa.api_key", cfg),
			Value:   apod.DefaultAPIKey,
		},
		&cli.StringFlag{
			Name:    "nasa-base-url",
			Usage:   "APOD endpoint",
			Sources: source("NASA_BASE_URL", "nasa.base_url", cfg),
			Value:   apod.DefaultBaseURL,
		},
		&cli.DurationFlag{
			Name:    "upstream-timeout",
			Usage:   "timeout for one upstream call",
			Sources: source("UPSTREAM_TIMEOUT", "nasa.timeout", cfg),
			Value:   apod.DefaultTimeout,
		},
		&cli.FloatFlag{
			Name:    "upstream-rps",
			Usage:   "maximum upstream calls per second (0 is unlimited)",
			Sources: source("UPSTREAM_RPS", "nasa.rps", cfg),
			Value:   0,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn, error or fatal",
			Sources: source("APOD_LOG", "log.level", cfg),
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "text or json",
			Sources: source("APOD_LOG_FORMAT", "log.format", cfg),
			Value:   "text",
		},
	}
}

// maxTTLMillis is the largest millisecond TTL a time.Duration can hold.
const maxTTLMillis = math.MaxInt64 / int64(time.Millisecond)

func settingsFrom(cmd *cli.Command) (settings, error) {
	ttlMillis := int64(cmd.Int("cache-ttl-ms"))
	if ttlMillis > maxTTLMillis {
		return settings{}, fmt.Errorf("cache-ttl-ms %d is too large, the maximum is %d", ttlMillis, maxTTLMillis)
	}

	return settings{
		maxItems:      cmd.Int("cache-max-items"),
		ttl:           time.Duration(ttlMillis) * time.Millisecond,
		sweepInterval: cmd.Duration("cache-sweep-interval"),
		coalesce:      cmd.Bool("cache-coalesce"),

		port: cmd.Int("port"),

		apiKey:          cmd.String("nasa-api-key"),
		baseURL:         cmd.String("nasa-base-url"),
		upstreamTimeout: cmd.Duration("upstream-timeout"),
		upstreamRPS:     cmd.Float("upstream-rps"),

		logLevel:  cmd.String("log-level"),
		logFormat: cmd.String("log-format"),
	}, nil
}

// newApp builds the command. run receives the resolved settings.
func newApp(cfg config.Type, run func(context.Context, settings) error) *cli.Command {
	return &cli.Command{
		Name:  "apod-server",
		Usage: "caching proxy for NASA's Astronomy Picture of the Day API",
		Flags: newFlags(cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := settingsFrom(cmd)
			if err != nil {
				return err
			}
			return run(ctx, s)
		},
	}
}
