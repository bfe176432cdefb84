package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finanzas/internal/core"
)

// Tx is the transactional scope handed to WithTx callbacks. It exposes
// exactly the operations the transaction coordinator needs; balance
// columns are only ever written through it.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a single SQLite transaction. Every exit path
// releases the transaction: commit on success, rollback on error or
// panic. Commit failures surface as core.ErrTransaction.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrTransaction, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrTransaction, err)
	}
	return nil
}

func (t *Tx) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return getAccount(ctx, t.tx, id)
}

func (t *Tx) GetProject(ctx context.Context, id string) (core.Project, error) {
	return getProject(ctx, t.tx, id)
}

func (t *Tx) GetMovement(ctx context.Context, id string) (core.Movement, error) {
	return getMovement(ctx, t.tx, id)
}

func (t *Tx) InsertMovement(ctx context.Context, m core.Movement) error {
	occurredAt := m.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO movements (id, occurred_at, description, category, amount_cents,
			account_id, project_id, kind, status, transfer_id, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, occurredAt.Unix(), m.Description, m.Category, m.Amount.Cents,
		m.AccountID, m.ProjectID, string(m.Kind), string(m.Status), m.TransferID, m.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// UpdateMovementStatus applies the from -> to transition. The guard is
// part of the statement itself so a concurrent confirmation cannot slip
// between read and write: zero affected rows means the movement was not
// in the expected state.
func (t *Tx) UpdateMovementStatus(ctx context.Context, id string, from, to core.MovementStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE movements SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("update movement status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update movement status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: movement %s is not %s", core.ErrState, id, from)
	}
	return nil
}

// IncrementAccountBalance adds cents to the cached account balance as a
// single in-place update.
func (t *Tx) IncrementAccountBalance(ctx context.Context, id string, cents int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`, cents, id)
	if err != nil {
		return fmt.Errorf("increment account balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment account balance: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: account %s", core.ErrNotFound, id)
	}
	return nil
}

// IncrementProjectBalance adds cents to the cached project balance.
func (t *Tx) IncrementProjectBalance(ctx context.Context, id string, cents int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE projects SET balance_total_cents = balance_total_cents + ? WHERE id = ?`, cents, id)
	if err != nil {
		return fmt.Errorf("increment project balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment project balance: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: project %s", core.ErrNotFound, id)
	}
	return nil
}
