package pendingops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solwager/custody/internal/repos/pendingops"
)

var _ pendingops.PendingOps = (*pendingOpsRepo)(nil)

type pendingOpsRepo struct{ db *sql.DB }

func New(db *sql.DB) *pendingOpsRepo {
	return &pendingOpsRepo{db: db}
}

func (r *pendingOpsRepo) Open(ctx context.Context, wallet string, amount int64, kind pendingops.Kind, mode, gameID string) (*pendingops.Operation, error) {
	op := &pendingops.Operation{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		AmountMinor:   amount,
		Kind:          kind,
		GameMode:      mode,
		GameID:        gameID,
		Status:        pendingops.StatusPending,
		TerminalState: pendingops.TerminalPending,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO pending_operations (id, wallet_address, amount, kind, game_mode, game_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, op.ID, wallet, amount, kind, mode, gameID).Scan(&op.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert pending operation: %w", err)
	}

	return op, nil
}

// Confirm moves a pending operation to confirmed, exactly once. A second
// resolution attempt affects zero rows and reports ErrAlreadyResolved.
func (r *pendingOpsRepo) Confirm(ctx context.Context, id, ledgerRef string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_operations
		SET status = 'confirmed',
		    terminal_state = 'confirmed',
		    ledger_ref = $2,
		    resolved_at = now()
		WHERE id = $1
		  AND status = 'pending'
	`, id, ledgerRef)
	if err != nil {
		return fmt.Errorf("confirm operation: %w", err)
	}

	return resolvedExactlyOnce(res)
}

func (r *pendingOpsRepo) Cancel(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_operations
		SET status = 'cancelled',
		    terminal_state = 'cancelled',
		    failure_reason = $2,
		    resolved_at = now()
		WHERE id = $1
		  AND status = 'pending'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("cancel operation: %w", err)
	}

	return resolvedExactlyOnce(res)
}

func (r *pendingOpsRepo) Get(ctx context.Context, id string) (*pendingops.Operation, error) {
	op := new(pendingops.Operation)

	var (
		ledgerRef  sql.NullString
		failReason sql.NullString
		resolvedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, wallet_address, amount, kind, game_mode, game_id,
		       status, terminal_state, ledger_ref, failure_reason,
		       created_at, resolved_at
		FROM pending_operations
		WHERE id = $1
	`, id).Scan(
		&op.ID, &op.WalletAddress, &op.AmountMinor, &op.Kind, &op.GameMode, &op.GameID,
		&op.Status, &op.TerminalState, &ledgerRef, &failReason,
		&op.CreatedAt, &resolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pendingops.ErrNotFound
		}

		return nil, fmt.Errorf("get operation: %w", err)
	}

	op.LedgerRef = ledgerRef.String
	op.FailureReason = failReason.String
	if resolvedAt.Valid {
		op.ResolvedAt = &resolvedAt.Time
	}

	return op, nil
}

// TotalPendingDebits sums live debit reservations for a wallet. Confirmed and
// cancelled operations never count; the sum is the conservative amount to
// subtract from the externally reported balance.
func (r *pendingOpsRepo) TotalPendingDebits(ctx context.Context, wallet string) (int64, error) {
	var total int64

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM pending_operations
		WHERE wallet_address = $1
		  AND kind = 'debit'
		  AND status = 'pending'
	`, wallet).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum pending debits: %w", err)
	}

	return total, nil
}

// ExpireOlderThan resolves every operation still pending at the cutoff as
// cancelled with terminal state failed. Idempotent: a second sweep over the
// same cutoff matches nothing.
func (r *pendingOpsRepo) ExpireOlderThan(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_operations
		SET status = 'cancelled',
		    terminal_state = 'failed',
		    failure_reason = $2,
		    resolved_at = now()
		WHERE status = 'pending'
		  AND created_at < $1
	`, cutoff, reason)
	if err != nil {
		return 0, fmt.Errorf("expire stale operations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return n, nil
}

func (r *pendingOpsRepo) PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM pending_operations
		WHERE status <> 'pending'
		  AND resolved_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge resolved operations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return n, nil
}

func resolvedExactlyOnce(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return pendingops.ErrAlreadyResolved
	}

	return nil
}
