package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"dfund/internal/adapter"
	"dfund/internal/infra"
	"dfund/internal/ledger"
	"dfund/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit (for cron)")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.SetupTracing(ctx, cfg, "worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: tracing setup failed")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := adapter.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: store open failed")
	}
	defer store.Close()

	svc := ledger.New(store, ledger.Config{
		Logger:        logger.With().Str("component", "ledger").Logger(),
		FinalizeGrace: cfg.FinalizeGrace,
		ReviewPanel:   cfg.ReviewPanel,
	})
	sweeper := worker.NewSweeper(svc, logger, cfg.WorkerPollInterval, cfg.WorkerBatchSize)
	if *once {
		n := sweeper.Sweep(ctx)
		logger.Info().Int("finalized", n).Msg("worker: single sweep done")
		return
	}
	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("worker: stopped")
}
