// Package custody implements the balance coordinator: the only sanctioned
// entry points for fund movement between user wallets and the on-chain
// escrow. It keeps the backend's own accounting (pending operations,
// per-mode solvency counters) consistent around an external ledger that can
// fail or time out at any point, without ever creating or destroying money.
package custody

import (
	"database/sql"
	"errors"
	"time"

	"github.com/solwager/custody/internal/alert"
	"github.com/solwager/custody/internal/ledger"
	"github.com/solwager/custody/internal/repos/failedops"
	pgfailedops "github.com/solwager/custody/internal/repos/failedops/postgres"
	"github.com/solwager/custody/internal/repos/pendingops"
	pgpendingops "github.com/solwager/custody/internal/repos/pendingops/postgres"
	"github.com/solwager/custody/internal/repos/solvency"
	pgsolvency "github.com/solwager/custody/internal/repos/solvency/postgres"
)

var (
	// ErrInsufficientFunds: the ledger authoritatively rejected a lock.
	// The user can retry after depositing or with a smaller amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLedgerUnavailable: the external call failed transiently. The same
	// request can be retried verbatim.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrSolvencyViolation: a payout was requested beyond what the game
	// mode collected. Never retried automatically; always alerted.
	ErrSolvencyViolation = errors.New("solvency violation")

	ErrAlreadyResolved   = errors.New("operation already resolved")
	ErrOperationNotFound = errors.New("operation not found")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type Config struct {
	// LedgerTimeout bounds every external ledger call. The call itself is
	// not cancelled on chain; a late success is handled by idempotency
	// keys and the ConfirmLock reconciliation path.
	LedgerTimeout time.Duration

	// PayoutRetryAttempts bounds the coordinator's own retry loop for
	// payouts and refunds before handing off to the recovery queue.
	PayoutRetryAttempts int

	PayoutRetryBaseDelay time.Duration
	PayoutRetryMaxDelay  time.Duration
}

func (c *Config) applyDefaults() {
	if c.LedgerTimeout <= 0 {
		c.LedgerTimeout = 10 * time.Second
	}

	if c.PayoutRetryAttempts <= 0 {
		c.PayoutRetryAttempts = 3
	}

	if c.PayoutRetryBaseDelay <= 0 {
		c.PayoutRetryBaseDelay = 500 * time.Millisecond
	}

	if c.PayoutRetryMaxDelay <= 0 {
		c.PayoutRetryMaxDelay = 5 * time.Second
	}
}

type Coordinator struct {
	pending  pendingops.PendingOps
	solvency solvency.Solvency
	failed   failedops.FailedOps
	ledger   ledger.Client
	notifier alert.Notifier
	cfg      Config
}

func New(db *sql.DB, lc ledger.Client, notifier alert.Notifier, cfg Config) *Coordinator {
	cfg.applyDefaults()

	if notifier == nil {
		notifier = alert.SlogNotifier{}
	}

	return &Coordinator{
		pending:  pgpendingops.New(db),
		solvency: pgsolvency.New(db),
		failed:   pgfailedops.New(db),
		ledger:   lc,
		notifier: notifier,
		cfg:      cfg,
	}
}

// LockResult is returned by a successful LockFunds.
type LockResult struct {
	OperationID string
	LedgerRef   string
	// NewBalance is the wallet's available balance after the lock, best
	// effort: a read failure here does not fail the lock.
	NewBalance int64
}

// PayoutResult is returned by Payout and Refund. Queued means the external
// transfer did not complete and the operation was handed to the recovery
// queue; it is a deferred outcome, not a success.
type PayoutResult struct {
	LedgerRef  string
	Queued     bool
	FailedOpID string
}
