package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindIncome      MovementKind = "income"
	KindExpense     MovementKind = "expense"
	KindTransferOut MovementKind = "transfer_out"
	KindTransferIn  MovementKind = "transfer_in"
)

const (
	StatusFinalized     MovementStatus = "finalized"
	StatusPendingRefund MovementStatus = "pending_refund"
	StatusRefunded      MovementStatus = "refunded"
)

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
)

// ReimbursementCategory labels the income movement created when a
// pending-refund expense is confirmed.
const ReimbursementCategory = "Reimbursement"

type (
	MovementKind   string
	MovementStatus string
	CategoryKind   string

	// Account is a cash-holding bucket. Balance is cached and must always
	// equal the sum of signed amounts of the movements referencing it.
	Account struct {
		ID      string
		Name    string
		Balance Money
		Icon    string
	}

	// Project is a cost-center whose aggregate balance sums the movements
	// tagged to it, independent of which accounts funded them. It owns the
	// many-to-many association with accounts.
	Project struct {
		ID           string
		Name         string
		BalanceTotal Money
		Icon         string
		AccountIDs   []string
	}

	// Category is a classification tag with a polarity, no behavior.
	Category struct {
		ID   string
		Name string
		Kind CategoryKind
	}

	// Movement is one signed ledger entry affecting exactly one account and
	// optionally one project. Immutable once created except for the single
	// pending_refund -> refunded status transition.
	Movement struct {
		ID          string
		OccurredAt  time.Time
		Description string
		Category    string
		Amount      Money // signed: income positive, expense negative
		AccountID   string
		ProjectID   string // optional
		Kind        MovementKind
		Status      MovementStatus
		TransferID  string // links the two legs of a transfer, empty otherwise
		CreatedBy   string
	}

	User struct {
		ID         string
		Name       string
		Credential string
		Admin      bool
		ProjectIDs []string // projects a non-admin user may access
	}
)

var (
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyDescription = errors.New("empty description")
)

// Valid reports whether k is one of the four closed movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindTransferOut, KindTransferIn:
		return true
	default:
		return false
	}
}

// Sign returns the sign applied to an unsigned magnitude for this kind.
func (k MovementKind) Sign() int64 {
	switch k {
	case KindExpense, KindTransferOut:
		return -1
	default:
		return 1
	}
}

// Postable reports whether the kind may be supplied to PostMovement.
// Transfer legs are only ever created in pairs by PostTransfer.
func (k MovementKind) Postable() bool {
	return k == KindIncome || k == KindExpense
}

func (s MovementStatus) Valid() bool {
	switch s {
	case StatusFinalized, StatusPendingRefund, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanBecome reports whether the transition s -> next is legal.
// pending_refund -> refunded is the only one; finalized and refunded
// are terminal.
func (s MovementStatus) CanBecome(next MovementStatus) bool {
	return s == StatusPendingRefund && next == StatusRefunded
}

func (k CategoryKind) Valid() bool {
	return k == CategoryIncome || k == CategoryExpense
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Kind.Valid() {
		return errors.New("invalid category kind")
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(u.Credential) == "" {
		return errors.New("empty credential")
	}
	return nil
}

// IsTransfer reports whether the movement is one leg of a transfer pair.
func (m Movement) IsTransfer() bool {
	return m.Kind == KindTransferOut || m.Kind == KindTransferIn
}
