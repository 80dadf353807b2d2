package solvency

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/solwager/custody/internal/infra/pgtestutil"
	"github.com/solwager/custody/internal/repos/solvency"
)

func TestSolvency_ReservePayoutGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		locked  int64
		paidOut int64
		amount  int64
		wantErr error
	}{
		{name: "fits_exactly", locked: 100, paidOut: 0, amount: 100},
		{name: "fits_partially_paid", locked: 100, paidOut: 40, amount: 60},
		{name: "exceeds_locked", locked: 100, paidOut: 0, amount: 150, wantErr: solvency.ErrSolvencyExceeded},
		{name: "exceeds_remaining", locked: 100, paidOut: 70, amount: 31, wantErr: solvency.ErrSolvencyExceeded},
		{name: "unknown_mode", locked: -1, amount: 10, wantErr: solvency.ErrSolvencyExceeded},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			if tt.locked >= 0 {
				pgtestutil.SeedSolvency(t, db, "oracle", tt.locked, tt.paidOut, 0)
			}

			repo := New(db)

			err := repo.ReservePayout(context.Background(), "oracle", tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReservePayout = %v, want %v", err, tt.wantErr)
			}

			if tt.locked < 0 {
				return
			}

			snap, err := repo.Snapshot(context.Background(), "oracle")
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}

			wantPaid := tt.paidOut
			if tt.wantErr == nil {
				wantPaid += tt.amount
			}

			// A rejected payout leaves the counters untouched.
			if snap.PaidOut != wantPaid {
				t.Errorf("paidOut = %d, want %d", snap.PaidOut, wantPaid)
			}
			if snap.Locked != tt.locked {
				t.Errorf("locked = %d, want %d", snap.Locked, tt.locked)
			}
		})
	}
}

// Concurrent payouts must never jointly overdraw the pool: each gate check
// and its paidOut commit are one conditional update, so exactly the
// affordable subset passes no matter how the attempts interleave.
func TestSolvency_ReservePayoutConcurrent(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	pgtestutil.SeedSolvency(t, db, "oracle", 100, 0, 0)

	repo := New(db)
	ctx := context.Background()

	const (
		attempts = 8
		amount   = 30 // locked 100 affords exactly three of these
	)

	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = repo.ReservePayout(ctx, "oracle", amount)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, solvency.ErrSolvencyExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != 3 {
		t.Fatalf("succeeded = %d, want exactly 3", succeeded)
	}

	snap, err := repo.Snapshot(context.Background(), "oracle")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PaidOut != 90 {
		t.Fatalf("paidOut = %d, want 90", snap.PaidOut)
	}
	if snap.PaidOut > snap.Locked {
		t.Fatalf("paidOut %d exceeds locked %d", snap.PaidOut, snap.Locked)
	}
}

func TestSolvency_RecordRefundClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		locked      int64
		paidOut     int64
		amount      int64
		wantClamped int64
		wantLocked  int64
	}{
		{name: "full_refund", locked: 100, paidOut: 0, amount: 100, wantClamped: 0, wantLocked: 0},
		{name: "partial_refund", locked: 100, paidOut: 0, amount: 30, wantClamped: 0, wantLocked: 70},
		{name: "clamped_at_paid_out", locked: 100, paidOut: 60, amount: 50, wantClamped: 10, wantLocked: 60},
		{name: "everything_paid_out", locked: 100, paidOut: 100, amount: 25, wantClamped: 25, wantLocked: 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			pgtestutil.SeedSolvency(t, db, "battle", tt.locked, tt.paidOut, 0)

			repo := New(db)

			clamped, err := repo.RecordRefund(context.Background(), "battle", tt.amount)
			if err != nil {
				t.Fatalf("RecordRefund: %v", err)
			}
			if clamped != tt.wantClamped {
				t.Errorf("clamped = %d, want %d", clamped, tt.wantClamped)
			}

			snap, err := repo.Snapshot(context.Background(), "battle")
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if snap.Locked != tt.wantLocked {
				t.Errorf("locked = %d, want %d", snap.Locked, tt.wantLocked)
			}
			// Refunds never touch paidOut, so locked >= paidOut stays true.
			if snap.PaidOut != tt.paidOut {
				t.Errorf("paidOut = %d, want %d", snap.PaidOut, tt.paidOut)
			}
		})
	}
}

func TestSolvency_RecordRefundUnknownMode(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	clamped, err := repo.RecordRefund(context.Background(), "draft", 40)
	if err != nil {
		t.Fatalf("RecordRefund: %v", err)
	}
	if clamped != 40 {
		t.Fatalf("clamped = %d, want 40 (nothing locked for this mode)", clamped)
	}
}

// Lock 100, pay out 60, refund the remaining 40: the mode ends drained with
// nothing refundable left.
func TestSolvency_LockPayoutRefundCycle(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()

	if err := repo.RecordLock(ctx, "oracle", 100); err != nil {
		t.Fatalf("RecordLock: %v", err)
	}

	if err := repo.ReservePayout(ctx, "oracle", 60); err != nil {
		t.Fatalf("ReservePayout: %v", err)
	}

	clamped, err := repo.RecordRefund(ctx, "oracle", 40)
	if err != nil {
		t.Fatalf("RecordRefund: %v", err)
	}
	if clamped != 0 {
		t.Fatalf("clamped = %d, want 0", clamped)
	}

	snap, err := repo.Snapshot(ctx, "oracle")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Locked != 60 || snap.PaidOut != 60 || snap.Available != 0 {
		t.Fatalf("snapshot = locked %d, paidOut %d, available %d; want 60/60/0",
			snap.Locked, snap.PaidOut, snap.Available)
	}

	// The mode is drained: any further payout must be rejected.
	err = repo.ReservePayout(ctx, "oracle", 1)
	if !errors.Is(err, solvency.ErrSolvencyExceeded) {
		t.Fatalf("payout after drain = %v, want ErrSolvencyExceeded", err)
	}
}

func TestSolvency_CanPayout(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	pgtestutil.SeedSolvency(t, db, "oracle", 100, 30, 0)

	repo := New(db)

	ok, err := repo.CanPayout(context.Background(), "oracle", 70)
	if err != nil {
		t.Fatalf("CanPayout: %v", err)
	}
	if !ok {
		t.Error("CanPayout(70) = false, want true")
	}

	ok, err = repo.CanPayout(context.Background(), "oracle", 71)
	if err != nil {
		t.Fatalf("CanPayout: %v", err)
	}
	if ok {
		t.Error("CanPayout(71) = true, want false")
	}

	// CanPayout is read-only: the gate itself must still pass afterwards.
	if err := repo.ReservePayout(context.Background(), "oracle", 70); err != nil {
		t.Fatalf("ReservePayout after CanPayout: %v", err)
	}
}

func TestSolvency_GameRegistry(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()

	first, err := repo.RegisterGame(ctx, "battle", "game-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !first {
		t.Error("first register reported as duplicate")
	}

	// Re-registering the same game (every lock in the game repeats it) must
	// not inflate the counter.
	first, err = repo.RegisterGame(ctx, "battle", "game-1")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if first {
		t.Error("duplicate register reported as first")
	}

	_, err = repo.RegisterGame(ctx, "battle", "game-2")
	if err != nil {
		t.Fatalf("register second game: %v", err)
	}

	snap, err := repo.Snapshot(ctx, "battle")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ActiveGames != 2 {
		t.Fatalf("activeGames = %d, want 2", snap.ActiveGames)
	}

	removed, err := repo.UnregisterGame(ctx, "battle", "game-1")
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if !removed {
		t.Error("unregister of live game reported as no-op")
	}

	removed, err = repo.UnregisterGame(ctx, "battle", "game-1")
	if err != nil {
		t.Fatalf("second unregister: %v", err)
	}
	if removed {
		t.Error("second unregister reported as removal")
	}

	snap, err = repo.Snapshot(ctx, "battle")
	if err != nil {
		t.Fatalf("snapshot after unregister: %v", err)
	}
	if snap.ActiveGames != 1 {
		t.Fatalf("activeGames = %d, want 1", snap.ActiveGames)
	}
}

func TestSolvency_AllBalances(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	pgtestutil.SeedSolvency(t, db, "oracle", 100, 40, 2)
	pgtestutil.SeedSolvency(t, db, "battle", 50, 0, 1)

	repo := New(db)

	snaps, err := repo.AllBalances(context.Background())
	if err != nil {
		t.Fatalf("AllBalances: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d modes, want 2", len(snaps))
	}

	// Ordered by mode name.
	if snaps[0].GameMode != "battle" || snaps[1].GameMode != "oracle" {
		t.Fatalf("order = %s, %s; want battle, oracle", snaps[0].GameMode, snaps[1].GameMode)
	}
	if snaps[1].Available != 60 {
		t.Fatalf("oracle available = %d, want 60", snaps[1].Available)
	}
}
