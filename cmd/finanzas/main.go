package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/cache"
	"finanzas/internal/cli"
	"finanzas/internal/core"
	apphttp "finanzas/internal/http"
	"finanzas/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("server")
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Idempotent bootstrap: the engine itself never assumes this
	// identity exists, so seed it here at the edge.
	if cfg.AdminPass != "" {
		if err := repo.EnsureAdminUser(context.Background(), cfg.AdminUser, cfg.AdminPass); err != nil {
			logger.Error("Failed to seed admin user", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("ADMIN_PASS not set, skipping admin bootstrap")
	}

	// Movement events are optional: without a broker the ledger still
	// works, only the reconciliation worker goes blind until its sweep.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, movement events disabled", "error", err)
		} else {
			defer events.Close()
		}
	}

	scopeCache := cache.NewLRUCache[core.Scope](256, cfg.ScopeCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(scopeCache)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	ledger := services.NewLedger(repo, events)
	scopes := services.NewScopes(repo, scopeCache)
	reports := services.NewReports(repo, scopes)

	srv := apphttp.NewServer(":"+cfg.Port, repo, ledger, scopes, reports)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting finanzas server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
