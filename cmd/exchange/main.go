package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/quantumbands/exchange/internal/config"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/handler"
	"github.com/quantumbands/exchange/internal/metrics"
	"github.com/quantumbands/exchange/internal/scheduler"
	"github.com/quantumbands/exchange/internal/service"
	"github.com/quantumbands/exchange/internal/settlement"
	"github.com/quantumbands/exchange/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// A .env file is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	// Stores.
	accountStore := store.NewAccountStore()
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()
	portfolioStore := store.NewPortfolioStore()
	offeringStore := store.NewOfferingStore()
	walletStore := store.NewWalletStore()
	snapshotStore := store.NewSnapshotStore()
	feedStore := store.NewFeedStore()

	// Engine.
	locks := engine.NewAccountLocks()
	books := engine.NewBookManager()
	matcher := engine.NewMatcher(
		locks,
		books,
		accountStore,
		orderStore,
		tradeStore,
		portfolioStore,
		offeringStore,
		walletStore,
		cfg.TradingFeeRate,
		logger.With().Str("component", "matcher").Logger(),
	)
	offeringExpiry := engine.NewOfferingExpiry(
		cfg.OfferingExpiryInterval,
		offeringStore,
		logger.With().Str("component", "offering_expiry").Logger(),
	)

	// Settlement.
	settlementEngine := settlement.NewEngine(
		locks,
		accountStore,
		portfolioStore,
		walletStore,
		snapshotStore,
		feedStore,
		cfg.SettlementWorkers,
		cfg.SettlementAccountTimeout,
		logger.With().Str("component", "settlement").Logger(),
	)

	// Metrics and services.
	m := metrics.New()
	exchangeSvc := service.NewExchangeService(matcher, orderStore, tradeStore, m)
	marketSvc := service.NewMarketService(books, accountStore, tradeStore, portfolioStore, offeringStore, walletStore)
	offeringSvc := service.NewOfferingService(locks, accountStore, offeringStore, logger.With().Str("component", "offerings").Logger())
	settlementSvc := service.NewSettlementService(settlementEngine, snapshotStore, m, logger.With().Str("component", "settlement").Logger())
	feedSvc := service.NewFeedService(locks, accountStore, feedStore, logger.With().Str("component", "feed").Logger())

	// Router.
	router := handler.NewRouter(exchangeSvc, marketSvc, offeringSvc, settlementSvc, feedSvc, m,
		logger.With().Str("component", "http").Logger())

	// Background work: offering expiry sweep and the daily settlement cron.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	offeringExpiry.Start(ctx)

	sched := scheduler.New(logger.With().Str("component", "scheduler").Logger())
	if err := sched.Register(ctx, cfg.SettlementCron, scheduler.NewSettlementJob(settlementSvc)); err != nil {
		logger.Fatal().Err(err).Msg("failed to register settlement job")
	}
	sched.Start()

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	// Graceful shutdown: stop HTTP server, cron, and the expiry goroutine.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	sched.Stop()
	cancel()

	logger.Info().Msg("server stopped")
}
