package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theace26/IP2A-Database-v2-sub006/config"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/api"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/clock"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/db"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/enforcement"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "halld ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hallStore := store.NewGormStore(gormDB, &cfg.Referral, clock.Real())
	logger.Println("referral store initialized")

	runner := enforcement.NewRunner(hallStore, cfg.Enforcement.Schedule)
	if cfg.Enforcement.Enabled {
		go func() {
			if err := runner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("enforcement runner: %v", err)
			}
		}()
	} else {
		logger.Println("scheduled enforcement is disabled; sweeps run on demand only")
	}

	router := api.NewRouter(hallStore, runner, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
