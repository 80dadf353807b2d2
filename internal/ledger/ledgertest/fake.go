// Package ledgertest provides an in-memory ledger.Client with real balance
// arithmetic and scriptable failures, for coordinator and end-to-end tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/solwager/custody/internal/ledger"
)

var _ ledger.Client = (*Fake)(nil)

// Fake keeps wallet vaults and a global escrow vault in memory. Transfers
// are serialized under one mutex, mirroring the chain's own serialization of
// instructions, and deduplicated by idempotency key like the real gateway.
type Fake struct {
	mu       sync.Mutex
	balances map[string]int64
	escrow   int64
	refSeq   int

	seenKeys map[string]string // idempotency key -> tx ref

	lockErrs   []error
	creditErrs []error

	Locks   int
	Credits int
}

func New() *Fake {
	return &Fake{
		balances: make(map[string]int64),
		seenKeys: make(map[string]string),
	}
}

// Fund seeds a wallet's vault.
func (f *Fake) Fund(wallet string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balances[wallet] += amount
}

// FailNextLock scripts errors for upcoming LockToEscrow calls, consumed in order.
func (f *Fake) FailNextLock(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lockErrs = append(f.lockErrs, errs...)
}

// FailNextCredit scripts errors for upcoming CreditFromEscrow calls.
func (f *Fake) FailNextCredit(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creditErrs = append(f.creditErrs, errs...)
}

func (f *Fake) ReadBalance(_ context.Context, wallet string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.balances[wallet], nil
}

func (f *Fake) ReadEscrowTotal(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.escrow, nil
}

func (f *Fake) LockToEscrow(_ context.Context, wallet string, amount int64, _, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Locks++

	if ref, ok := f.seenKeys[idempotencyKey]; ok {
		return ref, nil
	}

	if err := f.nextErr(&f.lockErrs); err != nil {
		return "", err
	}

	if f.balances[wallet] < amount {
		return "", ledger.ErrInsufficientFunds
	}

	f.balances[wallet] -= amount
	f.escrow += amount

	return f.newRef(idempotencyKey), nil
}

func (f *Fake) CreditFromEscrow(_ context.Context, wallet string, amount int64, _, _, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Credits++

	if ref, ok := f.seenKeys[idempotencyKey]; ok {
		return ref, nil
	}

	if err := f.nextErr(&f.creditErrs); err != nil {
		return "", err
	}

	f.escrow -= amount
	f.balances[wallet] += amount

	return f.newRef(idempotencyKey), nil
}

func (f *Fake) nextErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}

	err := (*queue)[0]
	*queue = (*queue)[1:]

	return err
}

func (f *Fake) newRef(idempotencyKey string) string {
	f.refSeq++
	ref := fmt.Sprintf("tx-%06d", f.refSeq)
	f.seenKeys[idempotencyKey] = ref

	return ref
}
