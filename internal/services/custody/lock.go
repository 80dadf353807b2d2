package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/solwager/custody/internal/alert"
	"github.com/solwager/custody/internal/ledger"
	"github.com/solwager/custody/internal/metrics"
	"github.com/solwager/custody/internal/repos/pendingops"
)

// AvailableBalance is the ledger-reported balance minus the wallet's pending
// debits. The subtraction over-reserves on purpose: when state is ambiguous
// the figure fails safe toward the house, never toward the user.
func (c *Coordinator) AvailableBalance(ctx context.Context, wallet string) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.LedgerTimeout)
	defer cancel()

	balance, err := c.ledger.ReadBalance(callCtx, wallet)
	if err != nil {
		return 0, fmt.Errorf("read ledger balance: %w", errors.Join(ErrLedgerUnavailable, err))
	}

	pending, err := c.pending.TotalPendingDebits(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("total pending debits: %w", err)
	}

	if pending >= balance {
		return 0, nil
	}

	return balance - pending, nil
}

// LockFunds runs the atomic verify-and-lock protocol:
//
//  1. Open a pending debit — the optimistic lock that keeps our own
//     accounting consistent before the chain confirms anything.
//  2. Call the ledger's transfer-to-escrow, which checks the balance and
//     moves the funds as one indivisible action. Insufficiency is detected
//     here and only here.
//  3. On success confirm the operation and record the mode's lock.
//  4. On any failure cancel the operation, restoring the wallet's apparent
//     balance, and return a typed error.
func (c *Coordinator) LockFunds(ctx context.Context, wallet string, amount int64, mode, gameID string) (*LockResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	op, err := c.pending.Open(ctx, wallet, amount, pendingops.KindDebit, mode, gameID)
	if err != nil {
		return nil, fmt.Errorf("open pending debit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.LedgerTimeout)
	defer cancel()

	ref, err := c.ledger.LockToEscrow(callCtx, wallet, amount, mode, op.ID)
	if err != nil {
		c.cancelPending(ctx, op.ID, err.Error())

		if errors.Is(err, ledger.ErrInsufficientFunds) {
			metrics.RecordLock(mode, metrics.ResultInsufficient)
			return nil, fmt.Errorf("lock %d for %s: %w", amount, wallet, ErrInsufficientFunds)
		}

		metrics.RecordLock(mode, metrics.ResultTransient)

		return nil, fmt.Errorf("lock to escrow: %w", errors.Join(ErrLedgerUnavailable, err))
	}

	err = c.finalizeLock(ctx, op, ref)
	if err != nil {
		metrics.RecordLock(mode, metrics.ResultError)
		return nil, err
	}

	metrics.RecordLock(mode, metrics.ResultOK)

	result := &LockResult{OperationID: op.ID, LedgerRef: ref}

	newBalance, err := c.AvailableBalance(ctx, wallet)
	if err != nil {
		slog.Warn("post-lock balance read failed", "wallet", wallet, "error", err)
	} else {
		result.NewBalance = newBalance
	}

	return result, nil
}

// ConfirmLock is the reconciliation entry point for locks whose ledger call
// succeeded after the local operation had already been given up on (late
// landing after a timeout). It applies the same accounting as the success
// path of LockFunds. Double resolution reports ErrAlreadyResolved and
// changes nothing.
func (c *Coordinator) ConfirmLock(ctx context.Context, opID, ledgerRef string) error {
	op, err := c.pending.Get(ctx, opID)
	if err != nil {
		if errors.Is(err, pendingops.ErrNotFound) {
			return ErrOperationNotFound
		}

		return fmt.Errorf("get operation: %w", err)
	}

	if op.Kind != pendingops.KindDebit {
		return fmt.Errorf("operation %s is not a debit", opID)
	}

	return c.finalizeLock(ctx, op, ledgerRef)
}

// CancelLock releases a pending debit without touching the ledger. Used when
// a game-mode client abandons a reservation before escrow confirmation.
func (c *Coordinator) CancelLock(ctx context.Context, opID, reason string) error {
	err := c.pending.Cancel(ctx, opID, reason)
	if err != nil {
		if errors.Is(err, pendingops.ErrAlreadyResolved) {
			return ErrAlreadyResolved
		}

		return fmt.Errorf("cancel operation: %w", err)
	}

	return nil
}

// GetOperation exposes a pending operation for audit and reconciliation.
func (c *Coordinator) GetOperation(ctx context.Context, opID string) (*pendingops.Operation, error) {
	op, err := c.pending.Get(ctx, opID)
	if err != nil {
		if errors.Is(err, pendingops.ErrNotFound) {
			return nil, ErrOperationNotFound
		}

		return nil, fmt.Errorf("get operation: %w", err)
	}

	return op, nil
}

// finalizeLock confirms the pending debit, then records the mode's lock and
// the game registration. The order matters: the solvency counter only ever
// reflects confirmed escrow transfers.
func (c *Coordinator) finalizeLock(ctx context.Context, op *pendingops.Operation, ledgerRef string) error {
	err := c.pending.Confirm(ctx, op.ID, ledgerRef)
	if err != nil {
		if errors.Is(err, pendingops.ErrAlreadyResolved) {
			return ErrAlreadyResolved
		}

		// Funds are escrowed on chain but the local record did not
		// confirm. Operator must reconcile via ConfirmLock.
		c.notifier.Notify(ctx, alert.Alert{
			Severity:    alert.SeverityCritical,
			Kind:        alert.KindReconcileRequired,
			GameMode:    op.GameMode,
			GameID:      op.GameID,
			Wallet:      op.WalletAddress,
			AmountMinor: op.AmountMinor,
			Detail:      fmt.Sprintf("escrow lock %s landed but confirming operation %s failed: %v", ledgerRef, op.ID, err),
		})

		return fmt.Errorf("confirm operation %s: %w", op.ID, err)
	}

	err = c.solvency.RecordLock(ctx, op.GameMode, op.AmountMinor)
	if err != nil {
		c.notifier.Notify(ctx, alert.Alert{
			Severity:    alert.SeverityCritical,
			Kind:        alert.KindReconcileRequired,
			GameMode:    op.GameMode,
			GameID:      op.GameID,
			Wallet:      op.WalletAddress,
			AmountMinor: op.AmountMinor,
			Detail:      fmt.Sprintf("operation %s confirmed but solvency lock not recorded: %v", op.ID, err),
		})

		return fmt.Errorf("record solvency lock: %w", err)
	}

	_, err = c.solvency.RegisterGame(ctx, op.GameMode, op.GameID)
	if err != nil {
		// Counter drift only; funds accounting is already consistent.
		slog.Error("register game failed", "mode", op.GameMode, "game_id", op.GameID, "error", err)
	}

	slog.Info("funds locked",
		"wallet", op.WalletAddress,
		"amount", op.AmountMinor,
		"mode", op.GameMode,
		"game_id", op.GameID,
		"operation_id", op.ID,
		"ledger_ref", ledgerRef,
	)

	return nil
}

// cancelPending must land even when the caller's context already expired:
// an uncancelled pending debit distorts the wallet's balance until the
// reaper catches it.
func (c *Coordinator) cancelPending(ctx context.Context, opID, reason string) {
	err := c.pending.Cancel(context.WithoutCancel(ctx), opID, reason)
	if err != nil && !errors.Is(err, pendingops.ErrAlreadyResolved) {
		slog.Error("cancel pending operation failed", "operation_id", opID, "error", err)
	}
}
