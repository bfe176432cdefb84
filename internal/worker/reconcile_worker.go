// Package worker verifies that cached balances still reconcile with
// movement history. It observes and reports; it never mutates state.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/storage"
)

type ReconcileWorker struct {
	storage *storage.SQLiteRepository
}

func NewReconcileWorker(storage *storage.SQLiteRepository) *ReconcileWorker {
	return &ReconcileWorker{storage: storage}
}

// HandleMovementPosted re-checks the account (and project) touched by a
// freshly posted movement.
func (w *ReconcileWorker) HandleMovementPosted(ctx context.Context, msg *amqp.MovementPostedMessage) error {
	slog.DebugContext(ctx, "Checking movement event",
		"movement_id", msg.MovementID, "account_id", msg.AccountID)

	if err := w.CheckAccount(ctx, msg.AccountID); err != nil {
		return fmt.Errorf("check account %s: %w", msg.AccountID, err)
	}
	if msg.ProjectID != "" {
		if err := w.CheckProject(ctx, msg.ProjectID); err != nil {
			return fmt.Errorf("check project %s: %w", msg.ProjectID, err)
		}
	}
	return nil
}

// CheckAccount compares the cached account balance against the sum of
// its movements and logs any drift.
func (w *ReconcileWorker) CheckAccount(ctx context.Context, accountID string) error {
	account, err := w.storage.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	sum, err := w.storage.SumAccountMovements(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Balance != sum {
		slog.ErrorContext(ctx, "Account balance drift detected",
			"account_id", accountID, "account_name", account.Name,
			"cached_cents", account.Balance.Cents, "computed_cents", sum.Cents)
	}
	return nil
}

// CheckProject compares the cached project balance against the sum of
// the income/expense movements tagged to it.
func (w *ReconcileWorker) CheckProject(ctx context.Context, projectID string) error {
	project, err := w.storage.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	sum, err := w.storage.SumProjectMovements(ctx, projectID)
	if err != nil {
		return err
	}
	if project.BalanceTotal != sum {
		slog.ErrorContext(ctx, "Project balance drift detected",
			"project_id", projectID, "project_name", project.Name,
			"cached_cents", project.BalanceTotal.Cents, "computed_cents", sum.Cents)
	}
	return nil
}

// Sweep checks every account and project once.
func (w *ReconcileWorker) Sweep(ctx context.Context) error {
	accounts, err := w.storage.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range accounts {
		if err := w.CheckAccount(ctx, a.ID); err != nil {
			return err
		}
	}

	projects, err := w.storage.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		if err := w.CheckProject(ctx, p.ID); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "Reconciliation sweep completed",
		"accounts", len(accounts), "projects", len(projects))
	return nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "Reconciliation sweep failed", "error", err)
			}
		}
	}
}
