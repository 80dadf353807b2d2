package failedops

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("failed operation not found")

type OperationType string

const (
	TypePayout OperationType = "payout"
	TypeRefund OperationType = "refund"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusRetrying         Status = "retrying"
	StatusRecovered        Status = "recovered"
	StatusPermanentFailure Status = "permanently_failed"
)

// Record is a fund movement the coordinator could not complete. It is never
// silently discarded: it leaves the queue only as recovered or
// permanently_failed (manual reconciliation).
type Record struct {
	ID            string
	GameMode      string
	GameID        string
	WalletAddress string
	AmountMinor   int64
	OperationType OperationType
	Reason        string
	Status        Status
	RetryCount    int
	RecoveryRef   string
	NextRetryAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type FailedOps interface {
	// Enqueue stores a new record under the given id, which doubles as the
	// idempotency key for every later retry of the external call.
	Enqueue(ctx context.Context, id, mode, gameID, wallet string, amount int64, opType OperationType, reason string) (*Record, error)

	// MarkRetrying increments the retry counter and schedules the next
	// attempt, returning the updated record.
	MarkRetrying(ctx context.Context, id string, nextRetryAt time.Time) (*Record, error)

	MarkRecovered(ctx context.Context, id, recoveryRef string) error
	MarkPermanentFailure(ctx context.Context, id string) error

	// ListDue returns open records whose next attempt is due, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Record, error)

	ListByStatus(ctx context.Context, status Status, limit int) ([]Record, error)

	// CountOpen counts records still awaiting recovery (pending or retrying).
	CountOpen(ctx context.Context) (int64, error)
}
