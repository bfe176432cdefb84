package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/storage"
)

func newTestWorker(t *testing.T) (*ReconcileWorker, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewReconcileWorker(repo), repo
}

func TestHandleMovementPosted(t *testing.T) {
	w, repo := newTestWorker(t)
	ctx := context.Background()

	acc, _ := repo.CreateAccount(ctx, core.Account{Name: "Caja", Balance: core.Money{Cents: 500}})
	proj, _ := repo.CreateProject(ctx, core.Project{Name: "Obra"})

	err := repo.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.InsertMovement(ctx, core.Movement{
			ID: "m1", AccountID: acc.ID, ProjectID: proj.ID,
			Kind: core.KindIncome, Status: core.StatusFinalized,
			Amount: core.Money{Cents: 500},
		})
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Consistent or not, a check only errors when a lookup fails.
	err = w.HandleMovementPosted(ctx, &amqp.MovementPostedMessage{
		MovementID: "m1", AccountID: acc.ID, ProjectID: proj.ID,
	})
	if err != nil {
		t.Errorf("HandleMovementPosted failed: %v", err)
	}

	err = w.HandleMovementPosted(ctx, &amqp.MovementPostedMessage{
		MovementID: "m1", AccountID: "missing",
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSweep(t *testing.T) {
	w, repo := newTestWorker(t)
	ctx := context.Background()

	if _, err := repo.CreateAccount(ctx, core.Account{Name: "Caja"}); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if _, err := repo.CreateProject(ctx, core.Project{Name: "Obra"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	if err := w.Sweep(ctx); err != nil {
		t.Errorf("Sweep failed: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w, _ := newTestWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Run(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
