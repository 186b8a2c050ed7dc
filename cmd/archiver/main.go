package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/config"
	"github.com/JakeFAU/media-archiver/internal/logging"
	"github.com/JakeFAU/media-archiver/internal/server"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "download" {
		os.Exit(download(os.Args[2:]))
	}

	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, &cfg, logger, nil)
	if err != nil {
		logger.Error("build failed", zap.Error(err))
		return
	}
	if err := app.Run(ctx); err != nil {
		logger.Error("archiver stopped with error", zap.Error(err))
	}
}

// download runs without a config file; the service settings do not apply.
func download(args []string) int {
	logger, err := logging.New(true, "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDownload(ctx, args, os.Stderr, logger, newYTDLP); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		logger.Error("download failed", zap.Error(err))
		return 1
	}
	return 0
}
