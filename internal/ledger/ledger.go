// Package ledger abstracts the on-chain escrow program the custody service
// fronts. The chain holds real custody of funds; everything here is typed
// plumbing around three calls that can time out or fail at any point.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrInsufficientFunds is the ledger's authoritative verdict that a wallet
// cannot cover a lock. It is the only place insufficiency is detected; the
// coordinator never trusts a cached balance for that decision.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// TransientError wraps network errors, timeouts and 5xx gateway responses.
// Callers may retry the same call verbatim, with backoff, reusing the same
// idempotency key.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("ledger: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err (anywhere in its chain) is retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// Client is the escrow program surface. Every mutating call carries an
// idempotency key: the logical operation id. A retry with the same key must
// be detected by the ledger side, not double-applied — a call that timed out
// locally may still land on chain later.
type Client interface {
	// ReadBalance returns the wallet's vault balance in minor units.
	// Best effort; may be stale.
	ReadBalance(ctx context.Context, wallet string) (int64, error)

	// LockToEscrow atomically checks the balance and moves amount from the
	// wallet's vault into the global escrow vault. Returns the chain
	// transaction reference.
	LockToEscrow(ctx context.Context, wallet string, amount int64, mode, idempotencyKey string) (string, error)

	// CreditFromEscrow moves amount from the global escrow vault back to
	// the wallet's vault (winnings or refunds).
	CreditFromEscrow(ctx context.Context, wallet string, amount int64, mode, gameID, idempotencyKey string) (string, error)

	// ReadEscrowTotal returns the global escrow vault balance, for
	// cross-mode solvency reconciliation.
	ReadEscrowTotal(ctx context.Context) (int64, error)
}
