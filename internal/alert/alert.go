// Package alert carries invariant violations and unrecoverable failures to
// whoever is on call. Delivery is pluggable; the coordinator only knows the
// Notifier interface.
package alert

import (
	"context"
	"log/slog"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	Severity    Severity `json:"severity"`
	Kind        string   `json:"kind"`
	GameMode    string   `json:"gameMode,omitempty"`
	GameID      string   `json:"gameId,omitempty"`
	Wallet      string   `json:"wallet,omitempty"`
	AmountMinor int64    `json:"amount,omitempty"`
	Detail      string   `json:"detail"`
}

// Alert kinds raised by the custody service.
const (
	KindSolvencyViolation = "solvency_violation"
	KindRefundClamp       = "refund_clamp"
	KindPermanentFailure  = "recovery_permanent_failure"
	KindReconcileRequired = "reconciliation_required"
)

type Notifier interface {
	// Notify must not block on delivery problems; alerting failures are
	// logged, never propagated into the money path.
	Notify(ctx context.Context, a Alert)
}

// SlogNotifier writes alerts to the default structured logger. It is the
// fallback when no broker is configured.
type SlogNotifier struct{}

func (SlogNotifier) Notify(_ context.Context, a Alert) {
	slog.Error("ALERT",
		"severity", a.Severity,
		"kind", a.Kind,
		"mode", a.GameMode,
		"game_id", a.GameID,
		"wallet", a.Wallet,
		"amount", a.AmountMinor,
		"detail", a.Detail,
	)
}
