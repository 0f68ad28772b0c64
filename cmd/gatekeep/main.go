package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatekeep/gatekeep/internal/acl"
	"github.com/gatekeep/gatekeep/internal/app"
	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/identity"
	"github.com/gatekeep/gatekeep/internal/observability"
	"github.com/gatekeep/gatekeep/internal/platform/cache"
	"github.com/gatekeep/gatekeep/internal/platform/db"
	"github.com/gatekeep/gatekeep/internal/shared"
	"github.com/gatekeep/gatekeep/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Sessions live in Redis; without it every request resolves
	// anonymous, so refuse to start instead of serving a dead gateway.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "gatekeep_session", cfg.SessionTTL, cfg.IsProduction())

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo)
	userDirectory := users.NewDirectory(userRepo)

	graph := acl.NewGraph(cfg.ACLPublicRole)
	importer := acl.NewImporter(graph, acl.NewDatasetRepository(pool), logger)
	if cfg.ACLImportRun {
		if _, err := importer.ImportFrom(ctx, cfg.ACLImportFile); err != nil {
			logger.Error("acl import", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		if _, err := importer.LoadPersisted(ctx); err != nil {
			logger.Error("load persisted acl dataset", slog.Any("error", err))
			os.Exit(1)
		}
	}

	resolver := identity.NewResolver(userDirectory, graph, logger)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(userService, authRepo)
	authHandler := auth.NewHandler(logger, authService, userService, sessionManager)
	aclHandler := acl.NewHandler(logger, graph, importer, cfg.ACLImportFile)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		Access: acl.Middleware{
			Resolver: resolver,
			Graph:    graph,
			Logger:   logger,
			Metrics:  metrics,
		},
		AuthHandler: authHandler,
		ACLHandler:  aclHandler,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
