package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dfund/internal/adapter"
	"dfund/internal/http/handlers"
	httpapi "dfund/internal/http/httpapi"
	"dfund/internal/i18n"
	"dfund/internal/infra"
	"dfund/internal/infra/geoip"
	"dfund/internal/ledger"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.SetupTracing(ctx, cfg, "api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	store, err := adapter.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to open store")
	}

	countries, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}

	messages, err := i18n.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build message catalog")
	}

	svc := ledger.New(store, ledger.Config{
		Logger:        logger.With().Str("component", "ledger").Logger(),
		FinalizeGrace: cfg.FinalizeGrace,
		ReviewPanel:   cfg.ReviewPanel,
	})
	app := handlers.NewApp(svc, logger, messages)
	app.Ping = func(ctx context.Context) error { return adapter.Ping(ctx, store) }

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:             logger,
		JWTSecret:          cfg.JWTSecret,
		JWTIssuer:          cfg.JWTIssuer,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		DonationsPerMinute: cfg.RateLimitPerMin,
		CountryLookup:      countries.Lookup(),
		TrustedProxies:     cfg.TrustedProxies,
	})
	server := infra.NewHTTPServer(cfg, router)
	if err := server.Listen(); err != nil {
		logger.Fatal().Err(err).Msg("failed to bind http listener")
	}

	logger.Info().Str("addr", server.Addr()).Str("driver", cfg.StorageDriver).Msg("API listening")
	if err := server.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("http server stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close store")
	}
	if err := countries.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close geoip database")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to flush traces")
	}
	logger.Info().Msg("server stopped")
}
