package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/maltedev/dealer-portal-scraper/internal/api"
	"github.com/maltedev/dealer-portal-scraper/internal/config"
	"github.com/maltedev/dealer-portal-scraper/internal/database"
	"github.com/maltedev/dealer-portal-scraper/internal/engine"
	"github.com/maltedev/dealer-portal-scraper/internal/jobs"
	"github.com/maltedev/dealer-portal-scraper/internal/metrics"
	"github.com/maltedev/dealer-portal-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log = log.With("service", "portal-server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !cfg.Database.Enabled() {
		log.Error("the server needs a database, set DATABASE_URL or DB_HOST")
		os.Exit(1)
	}
	db, err := database.New(ctx, database.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	outbox := database.NewOutboxRepository(db, cfg.Redis.Stream)

	relay := database.NewRelay(outbox, redisClient, log, database.RelayConfig{
		PollInterval: cfg.Worker.RelayPollInterval,
		BatchSize:    cfg.Worker.RelayBatchSize,
		Observer:     m,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("relay stopped with error", "error", err)
		}
	}()
	go reportBacklog(ctx, relay, m, cfg.Worker.RelayPollInterval)

	runner := jobs.NewRunner(cfg, jobs.PlaywrightLauncher(cfg.Browser), m, log)
	jobManager := jobs.NewManager(
		database.NewJobRepository(db, outbox),
		runner,
		func(portal string) jobs.Catalog { return database.NewCatalogStore(db, portal, outbox) },
		func(jobID string) engine.Sink { return database.NewJobLog(db, jobID) },
		m,
		log,
	)
	jobManager.PollInterval = cfg.Worker.PollInterval

	go jobManager.StartWorker(ctx)

	handlers := api.NewHandlers(jobManager, log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.Health(map[string]api.Pinger{
		"database": db.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, relay))
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", handlers.Routes)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting", "addr", server.Addr, "portals", cfg.PortalNames())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func reportBacklog(ctx context.Context, relay *database.Relay, m *metrics.Metrics, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, dead, err := relay.Backlog(ctx)
			if err != nil {
				continue
			}
			m.SetOutboxBacklog(pending, dead)
		}
	}
}
