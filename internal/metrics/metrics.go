package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_locks_total",
			Help: "Fund lock attempts by game mode and result",
		},
		[]string{"mode", "result"},
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_payouts_total",
			Help: "Payout attempts by game mode and result",
		},
		[]string{"mode", "result"},
	)

	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_refunds_total",
			Help: "Refund attempts by game mode and result",
		},
		[]string{"mode", "result"},
	)

	RefundClampsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_refund_clamps_total",
			Help: "Refunds clamped because they exceeded the mode's remaining locked funds",
		},
		[]string{"mode"},
	)

	SolvencyViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_solvency_violations_total",
			Help: "Payouts rejected by the solvency gate",
		},
		[]string{"mode"},
	)

	ReaperExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_reaper_expired_total",
			Help: "Pending operations expired by the stale-operation reaper",
		},
	)

	ReaperPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_reaper_purged_total",
			Help: "Resolved operations purged after the retention window",
		},
	)

	RecoveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_recovery_attempts_total",
			Help: "Recovery worker attempts by result",
		},
		[]string{"result"},
	)

	RecoveryQueueOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_recovery_queue_open",
			Help: "Failed operations still awaiting recovery",
		},
	)
)

// Result labels shared by the counters above.
const (
	ResultOK           = "ok"
	ResultInsufficient = "insufficient"
	ResultTransient    = "transient"
	ResultQueued       = "queued"
	ResultRejected     = "rejected"
	ResultPermanent    = "permanent"
	ResultError        = "error"
)

func RecordLock(mode, result string) {
	LocksTotal.WithLabelValues(mode, result).Inc()
}

func RecordPayout(mode, result string) {
	PayoutsTotal.WithLabelValues(mode, result).Inc()
}

func RecordRefund(mode, result string) {
	RefundsTotal.WithLabelValues(mode, result).Inc()
}

func RecordRefundClamp(mode string) {
	RefundClampsTotal.WithLabelValues(mode).Inc()
}

func RecordSolvencyViolation(mode string) {
	SolvencyViolationsTotal.WithLabelValues(mode).Inc()
}

func RecordRecoveryAttempt(result string) {
	RecoveryAttemptsTotal.WithLabelValues(result).Inc()
}
