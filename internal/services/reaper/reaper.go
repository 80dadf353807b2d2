// Package reaper resolves pending operations abandoned by crashes or dropped
// ledger confirmations. Without it, a backend crash between "call ledger"
// and "confirm/cancel" would leave a pending debit permanently distorting
// the wallet's available balance. The sweep is a single idempotent update:
// it assumes nothing about prior in-memory state and is safe to run from any
// replica at any time.
package reaper

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/solwager/custody/internal/metrics"
	"github.com/solwager/custody/internal/repos/pendingops"
	pgpendingops "github.com/solwager/custody/internal/repos/pendingops/postgres"
)

type Config struct {
	// SweepInterval is how often still-pending operations are checked.
	SweepInterval time.Duration

	// PendingMaxAge bounds how long an operation may stay pending: long
	// enough for normal ledger confirmation, short enough to bound
	// user-visible balance distortion.
	PendingMaxAge time.Duration

	// PurgeInterval and Retention control the storage-hygiene sweep over
	// operations that reached a terminal state long ago.
	PurgeInterval time.Duration
	Retention     time.Duration
}

func (c *Config) applyDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 15 * time.Second
	}

	if c.PendingMaxAge <= 0 {
		c.PendingMaxAge = time.Minute
	}

	if c.PurgeInterval <= 0 {
		c.PurgeInterval = time.Hour
	}

	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
}

type Reaper struct {
	pending pendingops.PendingOps
	cfg     Config
}

func New(db *sql.DB, cfg Config) *Reaper {
	cfg.applyDefaults()

	return &Reaper{
		pending: pgpendingops.New(db),
		cfg:     cfg,
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	sweep := time.NewTicker(r.cfg.SweepInterval)
	defer sweep.Stop()

	purge := time.NewTicker(r.cfg.PurgeInterval)
	defer purge.Stop()

	slog.Info("reaper started",
		"sweep_interval", r.cfg.SweepInterval,
		"pending_max_age", r.cfg.PendingMaxAge,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reaper stopped")
			return
		case <-sweep.C:
			r.SweepOnce(ctx)
		case <-purge.C:
			r.PurgeOnce(ctx)
		}
	}
}

// SweepOnce expires every operation that has been pending longer than
// PendingMaxAge. Expired operations end as failed, never as confirmed.
func (r *Reaper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.PendingMaxAge)

	n, err := r.pending.ExpireOlderThan(ctx, cutoff, "expired by reaper: no ledger confirmation within "+r.cfg.PendingMaxAge.String())
	if err != nil {
		slog.Error("reaper sweep failed", "error", err)
		return
	}

	if n > 0 {
		metrics.ReaperExpiredTotal.Add(float64(n))
		slog.Warn("expired stale pending operations", "count", n, "cutoff", cutoff)
	}
}

// PurgeOnce deletes operations resolved before the retention window. Pure
// storage hygiene; pending operations are never touched.
func (r *Reaper) PurgeOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.Retention)

	n, err := r.pending.PurgeResolvedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("reaper purge failed", "error", err)
		return
	}

	if n > 0 {
		metrics.ReaperPurgedTotal.Add(float64(n))
		slog.Info("purged resolved operations", "count", n, "cutoff", cutoff)
	}
}
