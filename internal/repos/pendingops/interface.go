package pendingops

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyResolved is returned when Confirm or Cancel targets an operation
// that already left the pending state. The call has no effect.
var ErrAlreadyResolved = errors.New("operation already resolved")

var ErrNotFound = errors.New("operation not found")

type Kind string

const (
	KindDebit  Kind = "debit"
	KindCredit Kind = "credit"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// TerminalState refines a cancelled status: cancelled by the normal flow vs
// failed by a timeout sweep.
type TerminalState string

const (
	TerminalPending   TerminalState = "pending"
	TerminalConfirmed TerminalState = "confirmed"
	TerminalCancelled TerminalState = "cancelled"
	TerminalFailed    TerminalState = "failed"
)

type Operation struct {
	ID            string
	WalletAddress string
	AmountMinor   int64
	Kind          Kind
	GameMode      string
	GameID        string
	Status        Status
	TerminalState TerminalState
	LedgerRef     string
	FailureReason string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

type PendingOps interface {
	Open(ctx context.Context, wallet string, amount int64, kind Kind, mode, gameID string) (*Operation, error)
	Confirm(ctx context.Context, id, ledgerRef string) error
	Cancel(ctx context.Context, id, reason string) error
	Get(ctx context.Context, id string) (*Operation, error)
	TotalPendingDebits(ctx context.Context, wallet string) (int64, error)
	ExpireOlderThan(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
