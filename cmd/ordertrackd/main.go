// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command ordertrackd runs the order tracking sync engine with its ops HTTP
// surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/ordertrack/internal/config"
	"github.com/ManuGH/ordertrack/internal/daemon"
	"github.com/ManuGH/ordertrack/internal/log"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(strings.TrimSpace(*configPath)); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	log.Configure(log.Config{Service: "ordertrack"})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Precedence: ENV > file > defaults.
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str(log.FieldPath, configPath).
			Msg("failed to load configuration")
		return err
	}
	if !log.SetLevel(cfg.Log.Level) {
		logger.Warn().Str("level", cfg.Log.Level).Msg("ignoring unparseable log level")
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str(log.FieldPath, configPath).
		Str("version", version).
		Msg("configuration loaded")

	rt, err := daemon.Build(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "bootstrap.failed").Msg("failed to wire runtime")
		return err
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:     logger,
		APIHandler: rt.Handler(cfg),
	})
	if err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		logger.Error().Err(err).Msg("failed to create daemon manager")
		return err
	}
	rt.RegisterHooks(mgr)

	if err := rt.Start(ctx, cfg.Watch); err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		logger.Error().Err(err).Str(log.FieldEvent, "startup.failed").Msg("failed to open watches")
		return err
	}

	app := daemon.NewApp(logger, mgr, config.NewHolder(cfg, loader))
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
		return err
	}
	logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return nil
}
