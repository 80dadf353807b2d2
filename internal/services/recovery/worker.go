// Package recovery drives the failure recovery queue: payouts and refunds
// whose external ledger calls exhausted the coordinator's own retries. Each
// record is retried on an exponential capped schedule until it recovers or
// crosses the retry ceiling, at which point it is parked as
// permanently_failed for manual reconciliation. Funds stay in escrow the
// whole time: holding them beats any automatic move that could double-pay
// or write off a debt.
package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solwager/custody/internal/alert"
	"github.com/solwager/custody/internal/backoff"
	"github.com/solwager/custody/internal/ledger"
	"github.com/solwager/custody/internal/metrics"
	"github.com/solwager/custody/internal/repos/failedops"
	pgfailedops "github.com/solwager/custody/internal/repos/failedops/postgres"
)

type Config struct {
	PollInterval time.Duration
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxRetries   int
	BatchSize    int
	CallTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}

	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Minute
	}

	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Minute
	}

	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}

	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}

	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
}

type Worker struct {
	failed   failedops.FailedOps
	ledger   ledger.Client
	notifier alert.Notifier
	cfg      Config
}

func New(db *sql.DB, lc ledger.Client, notifier alert.Notifier, cfg Config) *Worker {
	cfg.applyDefaults()

	if notifier == nil {
		notifier = alert.SlogNotifier{}
	}

	return &Worker{
		failed:   pgfailedops.New(db),
		ledger:   lc,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("recovery worker started", "poll_interval", w.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("recovery worker stopped")
			return
		case <-ticker.C:
			err := w.Sweep(ctx)
			if err != nil {
				slog.Error("recovery sweep failed", "error", err)
			}
		}
	}
}

// Sweep processes one batch of due records. Exported so tests and manual
// reconciliation tooling can drive it directly.
func (w *Worker) Sweep(ctx context.Context) error {
	recs, err := w.failed.ListDue(ctx, time.Now(), w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due operations: %w", err)
	}

	for i := range recs {
		err = w.process(ctx, &recs[i])
		if err != nil {
			slog.Error("process failed operation", "id", recs[i].ID, "error", err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	open, err := w.failed.CountOpen(ctx)
	if err != nil {
		// Leave the gauge untouched; a stale queue-depth metric must be
		// distinguishable from an empty queue.
		slog.Warn("count open failed operations", "error", err)
	} else {
		metrics.RecoveryQueueOpen.Set(float64(open))
	}

	return nil
}

func (w *Worker) process(ctx context.Context, rec *failedops.Record) error {
	if rec.RetryCount >= w.cfg.MaxRetries {
		return w.parkPermanently(ctx, rec)
	}

	next := time.Now().Add(backoff.Delay(w.cfg.BaseDelay, w.cfg.MaxDelay, rec.RetryCount+1))

	updated, err := w.failed.MarkRetrying(ctx, rec.ID, next)
	if err != nil {
		if errors.Is(err, failedops.ErrNotFound) {
			// Another replica resolved it between list and mark.
			return nil
		}

		return fmt.Errorf("mark retrying: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	// The record id is the idempotency key the coordinator already used;
	// a credit that landed during an earlier timeout is replayed, not repaid.
	ref, err := w.ledger.CreditFromEscrow(callCtx, rec.WalletAddress, rec.AmountMinor, rec.GameMode, rec.GameID, rec.ID)
	if err != nil {
		metrics.RecordRecoveryAttempt(metrics.ResultError)

		slog.Warn("recovery attempt failed",
			"id", rec.ID,
			"type", rec.OperationType,
			"retry_count", updated.RetryCount,
			"next_retry_at", updated.NextRetryAt,
			"error", err,
		)

		return nil
	}

	err = w.failed.MarkRecovered(ctx, rec.ID, ref)
	if err != nil {
		return fmt.Errorf("mark recovered: %w", err)
	}

	metrics.RecordRecoveryAttempt(metrics.ResultOK)

	slog.Info("operation recovered",
		"id", rec.ID,
		"type", rec.OperationType,
		"wallet", rec.WalletAddress,
		"amount", rec.AmountMinor,
		"ledger_ref", ref,
		"retries", updated.RetryCount,
	)

	return nil
}

func (w *Worker) parkPermanently(ctx context.Context, rec *failedops.Record) error {
	err := w.failed.MarkPermanentFailure(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, failedops.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("mark permanent failure: %w", err)
	}

	metrics.RecordRecoveryAttempt(metrics.ResultPermanent)

	w.notifier.Notify(ctx, alert.Alert{
		Severity:    alert.SeverityCritical,
		Kind:        alert.KindPermanentFailure,
		GameMode:    rec.GameMode,
		GameID:      rec.GameID,
		Wallet:      rec.WalletAddress,
		AmountMinor: rec.AmountMinor,
		Detail:      fmt.Sprintf("%s %s exceeded %d retries; funds held in escrow for manual reconciliation", rec.OperationType, rec.ID, w.cfg.MaxRetries),
	})

	slog.Error("operation permanently failed",
		"id", rec.ID,
		"type", rec.OperationType,
		"wallet", rec.WalletAddress,
		"amount", rec.AmountMinor,
		"retries", rec.RetryCount,
	)

	return nil
}
