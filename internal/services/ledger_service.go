// Package services contains the ledger engine: the transaction
// coordinator, the access scope resolver and the reporting aggregator.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/storage"
)

// Ledger coordinates the only three ledger-mutating operations. Each
// runs as a single all-or-nothing transaction: the movement rows and
// their balance side-effects commit together or not at all.
type Ledger struct {
	storage *storage.SQLiteRepository
	events  *amqp.Client // optional, best-effort notifications
}

func NewLedger(storage *storage.SQLiteRepository, events *amqp.Client) *Ledger {
	return &Ledger{storage: storage, events: events}
}

// PostMovementParams carries one income or expense posting. Amount is
// an unsigned magnitude; the sign convention of the kind is applied
// internally. PendingRefund is only meaningful for expenses.
type PostMovementParams struct {
	Description   string
	Amount        core.Money
	AccountID     string
	ProjectID     string
	Kind          core.MovementKind
	Category      string
	PendingRefund bool
	Actor         string
	OccurredAt    time.Time // zero = now
}

// PostTransferParams moves funds between two accounts. A project id may
// be attached for description purposes but project balances are never
// touched by a transfer.
type PostTransferParams struct {
	SourceAccountID string
	DestAccountID   string
	Amount          core.Money
	Description     string
	ProjectID       string
	Actor           string
	OccurredAt      time.Time
}

// PostMovement creates one movement and increments the referenced
// account balance, plus the project balance when a project is given.
func (l *Ledger) PostMovement(ctx context.Context, p PostMovementParams) (core.Movement, error) {
	if !p.Amount.IsPositive() {
		return core.Movement{}, fmt.Errorf("%w: amount must be positive", core.ErrValidation)
	}
	if p.AccountID == "" {
		return core.Movement{}, fmt.Errorf("%w: missing account", core.ErrValidation)
	}
	if !p.Kind.Postable() {
		return core.Movement{}, fmt.Errorf("%w: kind %q cannot be posted directly", core.ErrValidation, p.Kind)
	}
	if p.PendingRefund && p.Kind != core.KindExpense {
		return core.Movement{}, fmt.Errorf("%w: only expenses can be pending refund", core.ErrValidation)
	}

	status := core.StatusFinalized
	if p.PendingRefund {
		status = core.StatusPendingRefund
	}
	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	m := core.Movement{
		ID:          uuid.NewString(),
		OccurredAt:  occurredAt,
		Description: p.Description,
		Category:    p.Category,
		Amount:      p.Amount.Signed(p.Kind),
		AccountID:   p.AccountID,
		ProjectID:   p.ProjectID,
		Kind:        p.Kind,
		Status:      status,
		CreatedBy:   p.Actor,
	}

	err := l.storage.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetAccount(ctx, p.AccountID); err != nil {
			return err
		}
		if p.ProjectID != "" {
			if _, err := tx.GetProject(ctx, p.ProjectID); err != nil {
				return err
			}
		}
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		if err := tx.IncrementAccountBalance(ctx, p.AccountID, m.Amount.Cents); err != nil {
			return err
		}
		if p.ProjectID != "" {
			if err := tx.IncrementProjectBalance(ctx, p.ProjectID, m.Amount.Cents); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.Movement{}, err
	}

	slog.InfoContext(ctx, "Movement posted",
		"id", m.ID, "kind", m.Kind, "amount_cents", m.Amount.Cents,
		"account_id", m.AccountID, "project_id", m.ProjectID, "actor", p.Actor)
	l.publishPosted(ctx, m)
	return m, nil
}

// PostTransfer creates the two linked legs of a transfer and moves the
// magnitude from source to destination atomically.
func (l *Ledger) PostTransfer(ctx context.Context, p PostTransferParams) (core.Movement, core.Movement, error) {
	var none core.Movement
	if p.SourceAccountID == "" || p.DestAccountID == "" {
		return none, none, fmt.Errorf("%w: missing account", core.ErrValidation)
	}
	if p.SourceAccountID == p.DestAccountID {
		return none, none, fmt.Errorf("%w: source and destination are the same account", core.ErrValidation)
	}
	if !p.Amount.IsPositive() {
		return none, none, fmt.Errorf("%w: amount must be positive", core.ErrValidation)
	}

	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	transferID := uuid.NewString()
	magnitude := p.Amount.Abs()

	out := core.Movement{
		ID:          uuid.NewString(),
		OccurredAt:  occurredAt,
		Description: p.Description,
		Amount:      magnitude.Signed(core.KindTransferOut),
		AccountID:   p.SourceAccountID,
		ProjectID:   p.ProjectID,
		Kind:        core.KindTransferOut,
		Status:      core.StatusFinalized,
		TransferID:  transferID,
		CreatedBy:   p.Actor,
	}
	in := core.Movement{
		ID:          uuid.NewString(),
		OccurredAt:  occurredAt,
		Description: p.Description,
		Amount:      magnitude.Signed(core.KindTransferIn),
		AccountID:   p.DestAccountID,
		ProjectID:   p.ProjectID,
		Kind:        core.KindTransferIn,
		Status:      core.StatusFinalized,
		TransferID:  transferID,
		CreatedBy:   p.Actor,
	}

	err := l.storage.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetAccount(ctx, p.SourceAccountID); err != nil {
			return err
		}
		if _, err := tx.GetAccount(ctx, p.DestAccountID); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, out); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, in); err != nil {
			return err
		}
		if err := tx.IncrementAccountBalance(ctx, p.SourceAccountID, out.Amount.Cents); err != nil {
			return err
		}
		return tx.IncrementAccountBalance(ctx, p.DestAccountID, in.Amount.Cents)
	})
	if err != nil {
		return none, none, err
	}

	slog.InfoContext(ctx, "Transfer posted",
		"transfer_id", transferID, "amount_cents", magnitude.Cents,
		"source", p.SourceAccountID, "dest", p.DestAccountID, "actor", p.Actor)
	l.publishPosted(ctx, out)
	l.publishPosted(ctx, in)
	return out, in, nil
}

// ConfirmReimbursement closes a pending-refund expense: the original
// movement becomes refunded and its magnitude is credited back to the
// same account (and project) as a new income movement. Confirming a
// movement in any other state fails with core.ErrState and leaves the
// ledger untouched.
func (l *Ledger) ConfirmReimbursement(ctx context.Context, movementID, actor string) (core.Movement, error) {
	if movementID == "" {
		return core.Movement{}, fmt.Errorf("%w: missing movement id", core.ErrValidation)
	}

	var refund core.Movement
	err := l.storage.WithTx(ctx, func(tx *storage.Tx) error {
		original, err := tx.GetMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if original.Kind != core.KindExpense {
			return fmt.Errorf("%w: movement %s is not an expense", core.ErrState, movementID)
		}
		if !original.Status.CanBecome(core.StatusRefunded) {
			return fmt.Errorf("%w: movement %s is %s", core.ErrState, movementID, original.Status)
		}
		if err := tx.UpdateMovementStatus(ctx, movementID, core.StatusPendingRefund, core.StatusRefunded); err != nil {
			return err
		}

		credit := original.Amount.Abs()
		refund = core.Movement{
			ID:          uuid.NewString(),
			OccurredAt:  time.Now().UTC(),
			Description: "Reimbursement: " + original.Description,
			Category:    core.ReimbursementCategory,
			Amount:      credit,
			AccountID:   original.AccountID,
			ProjectID:   original.ProjectID,
			Kind:        core.KindIncome,
			Status:      core.StatusFinalized,
			CreatedBy:   actor,
		}
		if err := tx.InsertMovement(ctx, refund); err != nil {
			return err
		}
		if err := tx.IncrementAccountBalance(ctx, original.AccountID, credit.Cents); err != nil {
			return err
		}
		if original.ProjectID != "" {
			return tx.IncrementProjectBalance(ctx, original.ProjectID, credit.Cents)
		}
		return nil
	})
	if err != nil {
		return core.Movement{}, err
	}

	slog.InfoContext(ctx, "Reimbursement confirmed",
		"movement_id", movementID, "refund_id", refund.ID,
		"amount_cents", refund.Amount.Cents, "actor", actor)
	l.publishPosted(ctx, refund)
	return refund, nil
}

// publishPosted emits a movement event after the commit. Failures are
// logged, never surfaced: the ledger write already succeeded and the
// reconciliation worker will catch up on its next sweep.
func (l *Ledger) publishPosted(ctx context.Context, m core.Movement) {
	if l.events == nil {
		return
	}
	msg := &amqp.MovementPostedMessage{
		MovementID:  m.ID,
		AccountID:   m.AccountID,
		ProjectID:   m.ProjectID,
		Kind:        string(m.Kind),
		AmountCents: m.Amount.Cents,
		Timestamp:   time.Now().UTC(),
	}
	if err := l.events.PublishMovementPosted(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish movement event",
			"movement_id", m.ID, "error", err)
	}
}
