package failedops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solwager/custody/internal/repos/failedops"
)

var _ failedops.FailedOps = (*failedOpsRepo)(nil)

type failedOpsRepo struct{ db *sql.DB }

func New(db *sql.DB) *failedOpsRepo {
	return &failedOpsRepo{db: db}
}

const recordColumns = `
	id, game_mode, game_id, wallet_address, amount, operation_type,
	reason, status, retry_count, recovery_ref, next_retry_at,
	created_at, updated_at
`

func (r *failedOpsRepo) Enqueue(ctx context.Context, id, mode, gameID, wallet string, amount int64, opType failedops.OperationType, reason string) (*failedops.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO failed_operations
			(id, game_mode, game_id, wallet_address, amount, operation_type, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING`+recordColumns,
		id, mode, gameID, wallet, amount, opType, reason)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue failed operation: %w", err)
	}

	return rec, nil
}

func (r *failedOpsRepo) MarkRetrying(ctx context.Context, id string, nextRetryAt time.Time) (*failedops.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE failed_operations
		SET status = 'retrying',
		    retry_count = retry_count + 1,
		    next_retry_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'retrying')
		RETURNING`+recordColumns,
		id, nextRetryAt)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, failedops.ErrNotFound
		}

		return nil, fmt.Errorf("mark retrying: %w", err)
	}

	return rec, nil
}

func (r *failedOpsRepo) MarkRecovered(ctx context.Context, id, recoveryRef string) error {
	return r.resolve(ctx, id, `
		UPDATE failed_operations
		SET status = 'recovered',
		    recovery_ref = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'retrying')
	`, recoveryRef)
}

func (r *failedOpsRepo) MarkPermanentFailure(ctx context.Context, id string) error {
	return r.resolve(ctx, id, `
		UPDATE failed_operations
		SET status = 'permanently_failed',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'retrying')
	`)
}

func (r *failedOpsRepo) resolve(ctx context.Context, id, query string, extra ...any) error {
	args := append([]any{id}, extra...)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("resolve failed operation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return failedops.ErrNotFound
	}

	return nil
}

func (r *failedOpsRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]failedops.Record, error) {
	return r.list(ctx, `
		SELECT`+recordColumns+`
		FROM failed_operations
		WHERE status IN ('pending', 'retrying')
		  AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2
	`, now, limit)
}

func (r *failedOpsRepo) ListByStatus(ctx context.Context, status failedops.Status, limit int) ([]failedops.Record, error) {
	return r.list(ctx, `
		SELECT`+recordColumns+`
		FROM failed_operations
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`, status, limit)
}

func (r *failedOpsRepo) CountOpen(ctx context.Context) (int64, error) {
	var n int64

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM failed_operations
		WHERE status IN ('pending', 'retrying')
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open failed operations: %w", err)
	}

	return n, nil
}

func (r *failedOpsRepo) list(ctx context.Context, query string, args ...any) ([]failedops.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failed operations: %w", err)
	}
	defer rows.Close()

	var recs []failedops.Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed operation: %w", err)
		}

		recs = append(recs, *rec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate failed operations: %w", err)
	}

	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*failedops.Record, error) {
	rec := new(failedops.Record)

	var recoveryRef sql.NullString

	err := row.Scan(
		&rec.ID, &rec.GameMode, &rec.GameID, &rec.WalletAddress, &rec.AmountMinor,
		&rec.OperationType, &rec.Reason, &rec.Status, &rec.RetryCount, &recoveryRef,
		&rec.NextRetryAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.RecoveryRef = recoveryRef.String

	return rec, nil
}
