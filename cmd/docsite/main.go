// Package main provides the docs dev server: it builds the content
// directory, serves it with live reload and rebuilds on change.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/sirily11/msbd5017-docs/internal/buildinfo"
	"github.com/sirily11/msbd5017-docs/internal/config"
	"github.com/sirily11/msbd5017-docs/internal/content"
	"github.com/sirily11/msbd5017-docs/internal/exporter"
	"github.com/sirily11/msbd5017-docs/internal/metrics"
	"github.com/sirily11/msbd5017-docs/internal/renderer/d2"
	"github.com/sirily11/msbd5017-docs/internal/server"
	"github.com/sirily11/msbd5017-docs/internal/site"
)

func main() {
	flags := pflag.NewFlagSet("docsite", pflag.ExitOnError)
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	cfg, err := config.Load(flags, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.Summary())
		os.Exit(0)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "docsite")
	slog.SetDefault(logger)
	logger.Log(context.Background(), slog.LevelInfo-1, "starting docsite", slog.String("version", buildinfo.Summary()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		recorder       metrics.Recorder
		metricsHandler http.Handler
	)
	if cfg.Metrics {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = metrics.HTTPHandler(reg)
	}

	diagrams := d2.New(logger, &d2.Options{Timeout: cfg.D2Timeout, ThemeID: cfg.DiagramTheme})
	builder, err := site.New(site.Config{
		Logger:   logger,
		Recorder: recorder,
		Diagrams: diagrams,
		BasePath: cfg.BasePath,
	})
	if err != nil {
		cancel()
		logger.Error("site builder init failed", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}

	contentSvc, err := content.NewService(ctx, cfg.ContentDir, builder, logger, content.Options{Debounce: cfg.Debounce})
	if err != nil {
		cancel()
		logger.Error("content service init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := contentSvc.Close(); err != nil {
			logger.Error("close content service", slog.Any("err", err))
		}
	}()

	exp := exporter.New(logger, exporter.Options{
		Renderer:  builder.Renderer(),
		D2:        diagrams,
		CodeStyle: "github",
	})

	srv, err := server.New(cfg, logger, server.Deps{
		Content:  contentSvc,
		Builder:  builder,
		Exporter: exp,
		Metrics:  metricsHandler,
	})
	if err != nil {
		cancel()
		logger.Error("server init failed", slog.Any("err", err))
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown complete")
			return
		}
		logger.Error("server error", slog.Any("err", err))
		os.Exit(1)
	}
}
