package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solwager/custody/internal/services/custody"
)

// NewRouter registers every custody endpoint on a chi router.
func NewRouter(svc *custody.Coordinator) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/wallet/{wallet}/balance", h.GetBalanceHandler)
	r.Post("/wallet/{wallet}/lock", h.LockFundsHandler)
	r.Post("/wallet/{wallet}/payout", h.PayoutHandler)
	r.Post("/wallet/{wallet}/refund", h.RefundHandler)

	r.Get("/operations/{operationId}", h.GetOperationHandler)
	r.Post("/operations/{operationId}/confirm", h.ConfirmLockHandler)
	r.Post("/operations/{operationId}/cancel", h.CancelLockHandler)

	r.Post("/games/{gameMode}/{gameId}/close", h.CloseGameHandler)

	r.Get("/solvency", h.SolvencyReportHandler)
	r.Get("/solvency/{gameMode}", h.SolvencySnapshotHandler)

	r.Get("/recovery/failed", h.ListFailedOperationsHandler)

	return r
}
