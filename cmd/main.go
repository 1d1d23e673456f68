/*
Package main is the entry point for the Echochat server.

It is responsible for loading configuration, initializing the global logging
system, connecting to PostgreSQL and running migrations, wiring the presence
coordinator and HTTP routes, and gracefully handling operating system
interrupt signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"echochat/internal/app/chat"
	"echochat/internal/app/db"
	"echochat/internal/app/storage"
	"echochat/internal/app/store"
	"echochat/internal/configs"
	"echochat/internal/handler"
	"echochat/internal/pkg/logx"
	"echochat/internal/pkg/pow"
)

func main() {
	// Load .env in development; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Bool("storage_configured", cfg.StorageConfigured()).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}
	defer pool.Close()

	users := store.NewPgUserStore(pool)
	messages := store.NewPgMessageStore(pool)

	coordinator := chat.NewCoordinator(messages, users)

	// Persisted online flags are stale after a restart: nobody is connected yet.
	if err := coordinator.Reset(context.Background()); err != nil {
		logx.Fatal(err, "Failed to reset presence state")
	}

	deps := &handler.AppDeps{
		Coordinator: coordinator,
		Config:      cfg,
		Users:       users,
		Pow:         pow.NewManager(cfg.PowDifficulty),
	}

	if cfg.StorageConfigured() {
		storageService, err := storage.NewStorageService(storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize storage service")
		}
		deps.Storage = storageService
	} else {
		logx.Warn("S3 storage not configured, avatar endpoints disabled")
	}

	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Echochat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
