package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/amqp"
	"finanzas/internal/cli"
	"finanzas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("worker")
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the reconciliation worker")
		os.Exit(1)
	}

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	events, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	reconciler := worker.NewReconcileWorker(repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catch anything posted while the worker was down.
	if err := reconciler.Sweep(ctx); err != nil {
		logger.Error("Startup sweep failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.ConsumeMessages(ctx, reconciler.HandleMovementPosted)
	})
	g.Go(func() error {
		return reconciler.Run(ctx, cfg.ReconcileInterval)
	})

	logger.Info("Reconciliation worker started",
		"queue", cfg.AMQPQueue, "interval", cfg.ReconcileInterval.String())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
