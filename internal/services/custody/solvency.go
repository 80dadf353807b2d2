package custody

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solwager/custody/internal/repos/solvency"
)

// SolvencySnapshot projects one game mode's counters for monitoring.
func (c *Coordinator) SolvencySnapshot(ctx context.Context, mode string) (*solvency.Snapshot, error) {
	snap, err := c.solvency.Snapshot(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("solvency snapshot: %w", err)
	}

	return snap, nil
}

// SolvencyReport lists every mode's counters next to the ledger's escrow
// total, so the cross-mode bound (sum of available must not exceed escrow)
// can be eyeballed or asserted by an external reconciliation job.
type SolvencyReport struct {
	Modes            []solvency.Snapshot
	EscrowTotal      int64
	EscrowTotalKnown bool
}

func (c *Coordinator) SolvencyReport(ctx context.Context) (*SolvencyReport, error) {
	snaps, err := c.solvency.AllBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("all balances: %w", err)
	}

	report := &SolvencyReport{Modes: snaps}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.LedgerTimeout)
	defer cancel()

	total, err := c.ledger.ReadEscrowTotal(callCtx)
	if err != nil {
		// Counters still stand on their own; the escrow total is advisory.
		slog.Warn("read escrow total failed", "error", err)
	} else {
		report.EscrowTotal = total
		report.EscrowTotalKnown = true
	}

	return report, nil
}

// CloseGame releases a game's registration once it has settled, keeping
// activeGames an accurate count of games still holding reservations.
// Reports whether the game was registered.
func (c *Coordinator) CloseGame(ctx context.Context, mode, gameID string) (bool, error) {
	removed, err := c.solvency.UnregisterGame(ctx, mode, gameID)
	if err != nil {
		return false, fmt.Errorf("unregister game: %w", err)
	}

	if removed {
		slog.Info("game closed", "mode", mode, "game_id", gameID)
	}

	return removed, nil
}
