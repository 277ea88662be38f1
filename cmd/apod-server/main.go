package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"

	cache "github.com/krisalay/apod-cache"
	"github.com/krisalay/apod-cache/apod"
	"github.com/krisalay/apod-cache/config"
	"github.com/krisalay/apod-cache/engine"
	"github.com/krisalay/apod-cache/expiration"
	mylog "github.com/krisalay/apod-cache/log"
	"github.com/krisalay/apod-cache/metrics"
	"github.com/krisalay/apod-cache/server"
)

const (
	namespace       = "apod"
	shutdownTimeout = 30 * time.Second
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	// Bootstrap logging so config discovery is visible; serve reconfigures it.
	_ = mylog.InitLogger(os.Getenv("APOD_LOG"), os.Getenv("APOD_LOG_FORMAT"), os.Stderr)

	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrNoConfig) {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	app := newApp(cfg, serve)
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	return 0
}

func serve(ctx context.Context, s settings) error {
	if err := mylog.InitLogger(s.logLevel, s.logFormat, os.Stderr); err != nil {
		return err
	}

	m := metrics.NewMetrics(namespace)

	eng := engine.NewCacheEngine(&expiration.ExpireAfterWrite{TTL: s.ttl}, m)
	opts := []cache.Option{cache.WithSweep(s.sweepInterval)}
	if s.coalesce {
		opts = append(opts, cache.WithCoalescing())
	}
	c := cache.NewLRUCache(s.maxItems, eng, opts...)
	defer c.Close()
	m.WatchCacheSize(namespace, c.Len)

	burst := int(s.upstreamRPS)
	client := apod.NewClient(s.baseURL, s.apiKey, s.upstreamTimeout,
		apod.WithObserver(m.RecordUpstream),
		apod.WithRateLimit(s.upstreamRPS, burst),
	)
	if s.apiKey == apod.DefaultAPIKey {
		log.Warn("using NASA's DEMO_KEY; set NASA_API_KEY for a real rate limit")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           server.New(c, client, server.WithMetrics(m)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	errChan := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"port":      s.port,
			"capacity":  humanize.Comma(int64(c.Capacity())),
			"ttl":       s.ttl,
			"sweep":     s.sweepInterval,
			"coalesce":  s.coalesce,
			"upstream":  s.baseURL,
			"rate_rps":  s.upstreamRPS,
			"log_level": s.logLevel,
		}).Info("starting apod server")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
			cancel()
		}
	}()

	select {
	case sig := <-signalChan:
		log.WithField("signal", sig.String()).Info("shutdown signal received")
	case <-ctx.Done():
		log.Info("shutdown initiated")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("error shutting down server")
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	default:
	}

	log.WithField("entries", c.Len()).Info("shutdown complete")
	return nil
}
