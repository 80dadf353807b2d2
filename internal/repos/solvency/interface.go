package solvency

import (
	"context"
	"errors"
)

// ErrSolvencyExceeded is returned by ReservePayout when the requested amount
// is larger than what the game mode still has available. Counters are left
// untouched.
var ErrSolvencyExceeded = errors.New("payout exceeds game mode solvency")

// Snapshot is the read-only projection of one game mode's counters.
// Available is max(0, Locked-PaidOut): the only amount the mode may still
// disburse as winnings.
type Snapshot struct {
	GameMode    string
	Locked      int64
	PaidOut     int64
	Available   int64
	ActiveGames int64
}

type Solvency interface {
	// RecordLock adds confirmed escrow reservations to the mode's locked total.
	RecordLock(ctx context.Context, mode string, amount int64) error

	// ReservePayout checks the solvency gate and commits the amount to
	// paidOut as one atomic step. It fails with ErrSolvencyExceeded and
	// changes nothing when amount > locked-paidOut.
	ReservePayout(ctx context.Context, mode string, amount int64) error

	// CanPayout is the read-only form of the gate, for projections and
	// pre-flight checks. Callers must still act on ReservePayout.
	CanPayout(ctx context.Context, mode string, amount int64) (bool, error)

	// RecordRefund returns stake from the locked pool. The subtraction is
	// floored at paidOut so both counters stay non-negative and
	// paidOut <= locked holds; the clamped-off remainder is returned for
	// the caller to log and alert on.
	RecordRefund(ctx context.Context, mode string, amount int64) (clamped int64, err error)

	Snapshot(ctx context.Context, mode string) (*Snapshot, error)
	AllBalances(ctx context.Context) ([]Snapshot, error)

	// RegisterGame marks a (mode, gameID) as holding a reservation,
	// incrementing activeGames the first time only. Reports whether this
	// call was the first.
	RegisterGame(ctx context.Context, mode, gameID string) (bool, error)

	// UnregisterGame removes the registration and decrements activeGames.
	// Reports whether the game was registered.
	UnregisterGame(ctx context.Context, mode, gameID string) (bool, error)
}
