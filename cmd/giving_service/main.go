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

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/givebridge/giving_services/internal/platform/config"
	"github.com/givebridge/giving_services/internal/platform/database"
	"github.com/givebridge/giving_services/internal/platform/logger"
	"github.com/givebridge/giving_services/internal/platform/messagebroker"

	"github.com/givebridge/giving_services/internal/giving_service/adapters/catalog"
	adapterhttp "github.com/givebridge/giving_services/internal/giving_service/adapters/http"
	"github.com/givebridge/giving_services/internal/giving_service/adapters/momo"
	"github.com/givebridge/giving_services/internal/giving_service/app"
	"github.com/givebridge/giving_services/internal/giving_service/repository/postgres"
)

const (
	serviceName     = "giving-service"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("Starting service...")

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	var publisher app.EventPublisher
	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, log)
	if err != nil {
		// Events are best-effort; the store stays authoritative without them.
		log.Warn("NATS unavailable, status-change events disabled", "error", err)
	} else {
		defer natsClient.Close()
		publisher = natsClient
		log.Info("NATS connection initialized")
	}

	var provider momo.Client
	if cfg.UseMockProvider {
		log.Warn("Using simulated payment provider")
		provider = momo.NewMockClient(log, 0.2, 30*time.Second)
	} else {
		provider = momo.NewCollectionClient(log, cfg.MomoBaseURL, cfg.MomoSubscriptionKey,
			cfg.MomoAPIUser, cfg.MomoAPIKey, cfg.MomoTargetEnv,
			&http.Client{Timeout: cfg.ProviderTimeout})
	}

	txManager := postgres.NewPgTxManager(dbPool)
	contributionRepo := postgres.NewPgContributionRepository(log)
	aggregateRepo := postgres.NewPgAggregateRepository(log)
	retryRepo := postgres.NewPgRetryRepository(log)
	categoryRepo := catalog.NewStaticCatalog(catalog.DefaultCategories())

	engine := app.NewTransitionEngine(txManager, contributionRepo, aggregateRepo, publisher, log)
	contributionService := app.NewContributionService(
		txManager, dbPool, contributionRepo, aggregateRepo, retryRepo, categoryRepo,
		provider, engine, log, cfg.Currency, cfg.ProviderTimeout,
	)
	sweeper := app.NewRetrySweeper(retryRepo, dbPool, provider, log, app.SweeperConfig{
		SweepInterval: cfg.RetrySweepInterval,
		MaxAttempts:   cfg.RetryMaxAttempts,
		Cooldown:      cfg.RetryCooldown,
		BatchSize:     cfg.RetryBatchSize,
	})

	contributionHandler := adapterhttp.NewContributionHandler(contributionService, log)
	webhookHandler := adapterhttp.NewWebhookHandler(contributionService, log)

	router := chi.NewRouter()
	router.Use(chi_middleware.RequestID)
	router.Use(chi_middleware.RealIP)
	router.Use(chi_middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api/v1", func(r chi.Router) {
		contributionHandler.RegisterRoutes(r)
		r.Post("/webhooks/momo", webhookHandler.HandlePaymentWebhook)
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := sweeper.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Stop accepting requests first; only then can no new submissions
		// start while we wait out the in-flight ones.
		err := httpServer.Shutdown(shutdownCtx)
		contributionService.WaitForSubmissions()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Service stopped gracefully")
}
