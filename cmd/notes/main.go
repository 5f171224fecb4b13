package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/notes-service/internal/config"
	"github.com/JakeFAU/notes-service/internal/logging"
	"github.com/JakeFAU/notes-service/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	app, err := server.Build(ctx, &cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	if err := app.Run(ctx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
		return 1
	}
	return 0
}
