package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mastodon-exporter/mastodon-exporter/internal/api"
	"github.com/mastodon-exporter/mastodon-exporter/internal/collector"
	"github.com/mastodon-exporter/mastodon-exporter/internal/config"
	"github.com/mastodon-exporter/mastodon-exporter/internal/metrics"
	"github.com/mastodon-exporter/mastodon-exporter/internal/scraper"
)

func main() {
	configPath := flag.String("config", config.DefaultFileName, "path to config file; a default is written if it does not exist")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("invalid -log-level", "value", *logLevel, "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("mastodon-exporter starting", "config", *configPath)

	cfg, created, err := config.LoadOrCreate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if created {
		slog.Info("wrote default config", "path", *configPath)
	}
	targets := cfg.Targets()
	slog.Info("config loaded",
		"listen", cfg.Server.ListenAddr(),
		"instances", len(targets.Instances),
		"accounts", len(targets.Accounts),
		"scrape_timeout", cfg.Scrape.Timeout,
		"max_concurrency", cfg.Scrape.MaxConcurrency,
	)
	if targets.Len() == 0 {
		slog.Warn("no instances or accounts configured: /metrics will only expose exporter metrics")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := metrics.New(metrics.Options{RuntimeMetrics: cfg.Server.RuntimeMetrics})

	client, err := scraper.New(cfg.Scrape, scraper.WithRequestCounter(reg.RequestCounter()))
	if err != nil {
		slog.Error("failed to build scraper", "err", err)
		os.Exit(1)
	}
	coll := collector.New(client, reg, cfg.Scrape.MaxConcurrency)

	// Targets are fixed for the process lifetime; edits only take effect
	// after a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			next := updated.Targets()
			slog.Warn("config changed on disk: restart to apply",
				"instances", len(next.Instances), "accounts", len(next.Accounts))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr())
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.Server.ListenAddr(), "err", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Handler:           api.New(coll, reg, targets),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("mastodon-exporter shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Scrape.Timeout+5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
