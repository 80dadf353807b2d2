package solvency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/solwager/custody/internal/infra/pgutils"
	"github.com/solwager/custody/internal/repos/solvency"
)

var _ solvency.Solvency = (*solvencyRepo)(nil)

type solvencyRepo struct{ db *sql.DB }

func New(db *sql.DB) *solvencyRepo {
	return &solvencyRepo{db: db}
}

func (r *solvencyRepo) RecordLock(ctx context.Context, mode string, amount int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO solvency_records (game_mode, locked)
		VALUES ($1, $2)
		ON CONFLICT (game_mode)
		DO UPDATE SET locked = solvency_records.locked + EXCLUDED.locked
	`, mode, amount)
	if err != nil {
		return fmt.Errorf("record lock: %w", err)
	}

	return nil
}

// ReservePayout is a single conditional update, so two concurrent payouts can
// never both pass the gate and jointly overpay.
func (r *solvencyRepo) ReservePayout(ctx context.Context, mode string, amount int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE solvency_records
		SET paid_out = paid_out + $2
		WHERE game_mode = $1
		  AND paid_out + $2 <= locked
	`, mode, amount)
	if err != nil {
		return fmt.Errorf("reserve payout: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return solvency.ErrSolvencyExceeded
	}

	return nil
}

func (r *solvencyRepo) CanPayout(ctx context.Context, mode string, amount int64) (bool, error) {
	snap, err := r.Snapshot(ctx, mode)
	if err != nil {
		return false, err
	}

	return amount <= snap.Available, nil
}

func (r *solvencyRepo) RecordRefund(ctx context.Context, mode string, amount int64) (int64, error) {
	var before, paidOut int64

	// Old values come from the CTE; RETURNING alone would only see the new row.
	err := r.db.QueryRowContext(ctx, `
		WITH before AS (
			SELECT locked, paid_out
			FROM solvency_records
			WHERE game_mode = $1
			FOR UPDATE
		)
		UPDATE solvency_records s
		SET locked = GREATEST(s.locked - $2, before.paid_out)
		FROM before
		WHERE s.game_mode = $1
		RETURNING before.locked, before.paid_out
	`, mode, amount).Scan(&before, &paidOut)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Nothing was ever locked for this mode: the whole amount is clamped.
			return amount, nil
		}

		return 0, fmt.Errorf("record refund: %w", err)
	}

	refundable := before - paidOut
	if amount <= refundable {
		return 0, nil
	}

	return amount - refundable, nil
}

func (r *solvencyRepo) Snapshot(ctx context.Context, mode string) (*solvency.Snapshot, error) {
	snap := &solvency.Snapshot{GameMode: mode}

	err := r.db.QueryRowContext(ctx, `
		SELECT locked, paid_out, active_games
		FROM solvency_records
		WHERE game_mode = $1
	`, mode).Scan(&snap.Locked, &snap.PaidOut, &snap.ActiveGames)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A mode that never locked anything has zero everything.
			return snap, nil
		}

		return nil, fmt.Errorf("solvency snapshot: %w", err)
	}

	snap.Available = available(snap.Locked, snap.PaidOut)

	return snap, nil
}

func (r *solvencyRepo) AllBalances(ctx context.Context) ([]solvency.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT game_mode, locked, paid_out, active_games
		FROM solvency_records
		ORDER BY game_mode
	`)
	if err != nil {
		return nil, fmt.Errorf("all balances: %w", err)
	}
	defer rows.Close()

	var snaps []solvency.Snapshot

	for rows.Next() {
		var snap solvency.Snapshot

		err = rows.Scan(&snap.GameMode, &snap.Locked, &snap.PaidOut, &snap.ActiveGames)
		if err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}

		snap.Available = available(snap.Locked, snap.PaidOut)
		snaps = append(snaps, snap)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}

	return snaps, nil
}

func (r *solvencyRepo) RegisterGame(ctx context.Context, mode, gameID string) (bool, error) {
	var first bool

	err := pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO active_game_registry (game_mode, game_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, mode, gameID)
		if err != nil {
			return fmt.Errorf("register game: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		if affected == 0 {
			return nil
		}

		first = true

		_, err = tx.Exec(`
			INSERT INTO solvency_records (game_mode, active_games)
			VALUES ($1, 1)
			ON CONFLICT (game_mode)
			DO UPDATE SET active_games = solvency_records.active_games + 1
		`, mode)
		if err != nil {
			return fmt.Errorf("increment active games: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return first, nil
}

func (r *solvencyRepo) UnregisterGame(ctx context.Context, mode, gameID string) (bool, error) {
	var removed bool

	err := pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			DELETE FROM active_game_registry
			WHERE game_mode = $1 AND game_id = $2
		`, mode, gameID)
		if err != nil {
			return fmt.Errorf("unregister game: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		if affected == 0 {
			return nil
		}

		removed = true

		_, err = tx.Exec(`
			UPDATE solvency_records
			SET active_games = GREATEST(active_games - 1, 0)
			WHERE game_mode = $1
		`, mode)
		if err != nil {
			return fmt.Errorf("decrement active games: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return removed, nil
}

func available(locked, paidOut int64) int64 {
	if paidOut >= locked {
		return 0
	}

	return locked - paidOut
}
