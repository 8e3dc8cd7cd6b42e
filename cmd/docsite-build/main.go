// Package main provides the static site build CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sirily11/msbd5017-docs/internal/buildinfo"
	"github.com/sirily11/msbd5017-docs/internal/config"
	"github.com/sirily11/msbd5017-docs/internal/renderer/d2"
	"github.com/sirily11/msbd5017-docs/internal/site"
)

func main() {
	flags := pflag.NewFlagSet("docsite-build", pflag.ExitOnError)
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
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	logger = logger.With("app", "docsite-build")
	slog.SetDefault(logger)
	logger.Info("starting docsite-build", slog.String("version", buildinfo.Summary()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	builder, err := site.New(site.Config{
		Logger:   logger,
		Diagrams: d2.New(logger, &d2.Options{Timeout: cfg.D2Timeout, ThemeID: cfg.DiagramTheme}),
		BasePath: cfg.BasePath,
	})
	if err != nil {
		cancel()
		logger.Error("site builder init failed", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}

	res, err := builder.Build(ctx, site.Options{
		ContentDir:    cfg.ContentDir,
		OutputDir:     cfg.OutputDir,
		AssetsDir:     cfg.AssetsDir,
		SiteTitle:     cfg.SiteTitle,
		BaseURL:       cfg.BaseURL,
		ThemeStyle:    cfg.CodeTheme,
		DarkModeFirst: cfg.DarkModeFirst,
		SearchIndex:   cfg.SearchIndex,
		CleanOutput:   cfg.CleanOutput,
	})
	if err != nil {
		cancel()
		logger.Error("build failed", slog.Any("err", err))
		os.Exit(1)
	}

	fmt.Printf("built %d pages into %s in %s (build %s)\n", res.Documents, res.OutputDir, res.Duration.Round(time.Millisecond), res.BuildID)
}
