package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/solwager/custody/internal/alert"
	"github.com/solwager/custody/internal/backoff"
	"github.com/solwager/custody/internal/metrics"
	"github.com/solwager/custody/internal/repos/failedops"
	"github.com/solwager/custody/internal/repos/pendingops"
	"github.com/solwager/custody/internal/repos/solvency"
)

// Payout credits winnings from escrow. The solvency gate runs before any
// external call: a payout beyond what the mode collected means a bug
// elsewhere tried to overdraw the mode's pool, so the transfer is never
// attempted and an alert is raised. The gate and the paidOut commit are one
// atomic update, so concurrent payouts cannot jointly overpay; a later
// external failure does not roll the commit back — the debt moves to the
// recovery queue, which owns it until recovered or written off manually.
func (c *Coordinator) Payout(ctx context.Context, wallet string, amount int64, mode, gameID string) (*PayoutResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	err := c.solvency.ReservePayout(ctx, mode, amount)
	if err != nil {
		if errors.Is(err, solvency.ErrSolvencyExceeded) {
			metrics.RecordSolvencyViolation(mode)
			metrics.RecordPayout(mode, metrics.ResultRejected)

			c.notifier.Notify(ctx, alert.Alert{
				Severity:    alert.SeverityCritical,
				Kind:        alert.KindSolvencyViolation,
				GameMode:    mode,
				GameID:      gameID,
				Wallet:      wallet,
				AmountMinor: amount,
				Detail:      "payout rejected: amount exceeds mode's locked minus paid out",
			})

			return nil, fmt.Errorf("payout %d for %s/%s: %w", amount, mode, gameID, ErrSolvencyViolation)
		}

		return nil, fmt.Errorf("reserve payout: %w", err)
	}

	res, err := c.disburse(ctx, wallet, amount, mode, gameID, failedops.TypePayout, "payout")
	if err != nil {
		return nil, err
	}

	if res.Queued {
		metrics.RecordPayout(mode, metrics.ResultQueued)
	} else {
		metrics.RecordPayout(mode, metrics.ResultOK)
	}

	return res, nil
}

// Refund returns a stake from escrow to the user. It uses the same external
// transfer as a payout but the accounting is recordRefund, never
// recordPayout: returned stakes are not competitive winnings and must not
// inflate paidOut. Counters are updated once the external call has been
// attempted, success or not.
func (c *Coordinator) Refund(ctx context.Context, wallet string, amount int64, mode, gameID, reason string) (*PayoutResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	res, err := c.disburse(ctx, wallet, amount, mode, gameID, failedops.TypeRefund, reason)
	if err != nil {
		return nil, err
	}

	c.recordRefund(ctx, wallet, amount, mode, gameID)

	if res.Queued {
		metrics.RecordRefund(mode, metrics.ResultQueued)
	} else {
		metrics.RecordRefund(mode, metrics.ResultOK)
	}

	return res, nil
}

// disburse runs the bounded retry loop around the escrow credit call. Every
// attempt reuses the pending operation id as idempotency key, so a transfer
// that landed despite a local timeout is detected by the gateway instead of
// paid twice. Exhaustion never drops the operation: it is enqueued for
// recovery under the same id.
func (c *Coordinator) disburse(ctx context.Context, wallet string, amount int64, mode, gameID string, opType failedops.OperationType, reason string) (*PayoutResult, error) {
	op, err := c.pending.Open(ctx, wallet, amount, pendingops.KindCredit, mode, gameID)
	if err != nil {
		// For payouts the solvency reservation is already committed; a plain
		// error here would leave that debt riding on a client retry. Hand it
		// to the recovery queue under a fresh id instead.
		return c.queueForRecovery(ctx, uuid.NewString(), wallet, amount, mode, gameID, opType,
			fmt.Sprintf("%s: open pending credit: %v", reason, err))
	}

	var lastErr error

	for attempt := 1; attempt <= c.cfg.PayoutRetryAttempts; attempt++ {
		if attempt > 1 {
			delay := backoff.Delay(c.cfg.PayoutRetryBaseDelay, c.cfg.PayoutRetryMaxDelay, attempt-1)

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(delay):
			}

			if ctx.Err() != nil {
				break
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.LedgerTimeout)
		ref, err := c.ledger.CreditFromEscrow(callCtx, wallet, amount, mode, gameID, op.ID)
		cancel()

		if err == nil {
			cerr := c.pending.Confirm(ctx, op.ID, ref)
			if cerr != nil && !errors.Is(cerr, pendingops.ErrAlreadyResolved) {
				slog.Error("confirm credit operation failed", "operation_id", op.ID, "error", cerr)
			}

			slog.Info("escrow credit completed",
				"type", opType,
				"wallet", wallet,
				"amount", amount,
				"mode", mode,
				"game_id", gameID,
				"ledger_ref", ref,
				"attempt", attempt,
			)

			return &PayoutResult{LedgerRef: ref}, nil
		}

		lastErr = err

		slog.Warn("escrow credit attempt failed",
			"type", opType,
			"wallet", wallet,
			"amount", amount,
			"mode", mode,
			"game_id", gameID,
			"attempt", attempt,
			"error", err,
		)
	}

	c.cancelPending(ctx, op.ID, lastErr.Error())

	return c.queueForRecovery(ctx, op.ID, wallet, amount, mode, gameID, opType,
		fmt.Sprintf("%s: %v", reason, lastErr))
}

// queueForRecovery records an escrow credit the coordinator could not
// complete. "Never lose track of a debt": the enqueue must land even when the
// caller's context already expired.
func (c *Coordinator) queueForRecovery(ctx context.Context, id, wallet string, amount int64, mode, gameID string, opType failedops.OperationType, reason string) (*PayoutResult, error) {
	bgCtx := context.WithoutCancel(ctx)

	rec, err := c.failed.Enqueue(bgCtx, id, mode, gameID, wallet, amount, opType, reason)
	if err != nil {
		c.notifier.Notify(bgCtx, alert.Alert{
			Severity:    alert.SeverityCritical,
			Kind:        alert.KindReconcileRequired,
			GameMode:    mode,
			GameID:      gameID,
			Wallet:      wallet,
			AmountMinor: amount,
			Detail:      fmt.Sprintf("failed %s could not be enqueued for recovery (op %s): %v", opType, id, err),
		})

		return nil, fmt.Errorf("enqueue failed %s: %w", opType, err)
	}

	slog.Warn("escrow credit queued for recovery",
		"type", opType,
		"wallet", wallet,
		"amount", amount,
		"mode", mode,
		"game_id", gameID,
		"failed_op_id", rec.ID,
		"reason", reason,
	)

	return &PayoutResult{Queued: true, FailedOpID: rec.ID}, nil
}

// recordRefund applies the refund to the mode's locked counter. A refund
// racing a payout for the same stake can exceed what remains refundable; the
// repo clamps the subtraction and the clamp is logged, counted and alerted —
// audit-worthy but not a reason to block returning user funds.
func (c *Coordinator) recordRefund(ctx context.Context, wallet string, amount int64, mode, gameID string) {
	bgCtx := context.WithoutCancel(ctx)

	clamped, err := c.solvency.RecordRefund(bgCtx, mode, amount)
	if err != nil {
		slog.Error("record refund failed", "mode", mode, "amount", amount, "error", err)

		c.notifier.Notify(bgCtx, alert.Alert{
			Severity:    alert.SeverityCritical,
			Kind:        alert.KindReconcileRequired,
			GameMode:    mode,
			GameID:      gameID,
			Wallet:      wallet,
			AmountMinor: amount,
			Detail:      fmt.Sprintf("refund accounting not recorded: %v", err),
		})

		return
	}

	if clamped > 0 {
		metrics.RecordRefundClamp(mode)

		slog.Warn("refund clamped",
			"mode", mode,
			"game_id", gameID,
			"wallet", wallet,
			"amount", amount,
			"clamped", clamped,
		)

		c.notifier.Notify(bgCtx, alert.Alert{
			Severity:    alert.SeverityWarning,
			Kind:        alert.KindRefundClamp,
			GameMode:    mode,
			GameID:      gameID,
			Wallet:      wallet,
			AmountMinor: clamped,
			Detail:      "refund exceeded the mode's remaining locked funds; subtraction clamped",
		})
	}
}
