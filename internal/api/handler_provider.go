package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/solwager/custody/internal/repos/failedops"
	"github.com/solwager/custody/internal/services/custody"
)

// HandlerProvider wraps the balance coordinator and exposes HTTP handlers
// for game-mode clients.
type HandlerProvider struct {
	svc *custody.Coordinator
}

func NewHandler(svc *custody.Coordinator) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps coordinator sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, custody.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, custody.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
	case errors.Is(err, custody.ErrLedgerUnavailable):
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable, retry later")
	case errors.Is(err, custody.ErrSolvencyViolation):
		writeError(w, http.StatusInternalServerError, "payout blocked: solvency violation")
	case errors.Is(err, custody.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "operation already resolved")
	case errors.Is(err, custody.ErrOperationNotFound):
		writeError(w, http.StatusNotFound, "operation not found")
	default:
		slog.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty body")
			return false
		}

		writeError(w, http.StatusBadRequest, "invalid JSON")

		return false
	}

	return true
}

type fundsRequest struct {
	Amount   int64  `json:"amount"` // minor units, never fractional
	GameMode string `json:"gameMode"`
	GameID   string `json:"gameId"`
	Reason   string `json:"reason,omitempty"`
}

func (req *fundsRequest) validate(w http.ResponseWriter) bool {
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer of minor units")
		return false
	}

	if req.GameMode == "" || req.GameID == "" {
		writeError(w, http.StatusBadRequest, "gameMode and gameId required")
		return false
	}

	return true
}

// --- Handlers ---

// GetBalanceHandler handles GET /wallet/{wallet}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet")
		return
	}

	available, err := h.svc.AvailableBalance(r.Context(), wallet)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":    wallet,
		"available": available,
	})
}

// LockFundsHandler handles POST /wallet/{wallet}/lock
func (h *HandlerProvider) LockFundsHandler(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet")
		return
	}

	var req fundsRequest
	if !decodeBody(w, r, &req) || !req.validate(w) {
		return
	}

	res, err := h.svc.LockFunds(r.Context(), wallet, req.Amount, req.GameMode, req.GameID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"operationId": res.OperationID,
		"ledgerRef":   res.LedgerRef,
		"newBalance":  res.NewBalance,
	})
}

// ConfirmLockHandler handles POST /operations/{operationId}/confirm
func (h *HandlerProvider) ConfirmLockHandler(w http.ResponseWriter, r *http.Request) {
	opID := chi.URLParam(r, "operationId")

	var req struct {
		LedgerRef string `json:"ledgerRef"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if req.LedgerRef == "" {
		writeError(w, http.StatusBadRequest, "ledgerRef required")
		return
	}

	err := h.svc.ConfirmLock(r.Context(), opID, req.LedgerRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// CancelLockHandler handles POST /operations/{operationId}/cancel
func (h *HandlerProvider) CancelLockHandler(w http.ResponseWriter, r *http.Request) {
	opID := chi.URLParam(r, "operationId")

	var req struct {
		Reason string `json:"reason"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	err := h.svc.CancelLock(r.Context(), opID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetOperationHandler handles GET /operations/{operationId}
func (h *HandlerProvider) GetOperationHandler(w http.ResponseWriter, r *http.Request) {
	op, err := h.svc.GetOperation(r.Context(), chi.URLParam(r, "operationId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            op.ID,
		"wallet":        op.WalletAddress,
		"amount":        op.AmountMinor,
		"kind":          op.Kind,
		"gameMode":      op.GameMode,
		"gameId":        op.GameID,
		"status":        op.Status,
		"terminalState": op.TerminalState,
		"ledgerRef":     op.LedgerRef,
		"failureReason": op.FailureReason,
		"createdAt":     op.CreatedAt,
		"resolvedAt":    op.ResolvedAt,
	})
}

// PayoutHandler handles POST /wallet/{wallet}/payout
func (h *HandlerProvider) PayoutHandler(w http.ResponseWriter, r *http.Request) {
	h.disburse(w, r, false)
}

// RefundHandler handles POST /wallet/{wallet}/refund
func (h *HandlerProvider) RefundHandler(w http.ResponseWriter, r *http.Request) {
	h.disburse(w, r, true)
}

func (h *HandlerProvider) disburse(w http.ResponseWriter, r *http.Request, refund bool) {
	wallet := chi.URLParam(r, "wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet")
		return
	}

	var req fundsRequest
	if !decodeBody(w, r, &req) || !req.validate(w) {
		return
	}

	var (
		res *custody.PayoutResult
		err error
	)

	if refund {
		res, err = h.svc.Refund(r.Context(), wallet, req.Amount, req.GameMode, req.GameID, req.Reason)
	} else {
		res, err = h.svc.Payout(r.Context(), wallet, req.Amount, req.GameMode, req.GameID)
	}

	if err != nil {
		writeDomainError(w, err)
		return
	}

	if res.Queued {
		// 202: the transfer is owed, queued for recovery, not completed.
		writeJSON(w, http.StatusAccepted, map[string]any{
			"queued":     true,
			"failedOpId": res.FailedOpID,
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ledgerRef": res.LedgerRef})
}

// CloseGameHandler handles POST /games/{gameMode}/{gameId}/close
func (h *HandlerProvider) CloseGameHandler(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "gameMode")
	gameID := chi.URLParam(r, "gameId")

	removed, err := h.svc.CloseGame(r.Context(), mode, gameID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"closed": removed})
}

// SolvencySnapshotHandler handles GET /solvency/{gameMode}
func (h *HandlerProvider) SolvencySnapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.SolvencySnapshot(r.Context(), chi.URLParam(r, "gameMode"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"gameMode":    snap.GameMode,
		"locked":      snap.Locked,
		"paidOut":     snap.PaidOut,
		"available":   snap.Available,
		"activeGames": snap.ActiveGames,
	})
}

// SolvencyReportHandler handles GET /solvency
func (h *HandlerProvider) SolvencyReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.SolvencyReport(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	modes := make([]map[string]any, 0, len(report.Modes))
	for _, snap := range report.Modes {
		modes = append(modes, map[string]any{
			"gameMode":    snap.GameMode,
			"locked":      snap.Locked,
			"paidOut":     snap.PaidOut,
			"available":   snap.Available,
			"activeGames": snap.ActiveGames,
		})
	}

	resp := map[string]any{"modes": modes}
	if report.EscrowTotalKnown {
		resp["escrowTotal"] = report.EscrowTotal
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListFailedOperationsHandler handles GET /recovery/failed?status=&limit=
func (h *HandlerProvider) ListFailedOperationsHandler(w http.ResponseWriter, r *http.Request) {
	status := failedops.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = failedops.StatusPermanentFailure
	}

	switch status {
	case failedops.StatusPending, failedops.StatusRetrying,
		failedops.StatusRecovered, failedops.StatusPermanentFailure:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		limit = parsed
	}

	recs, err := h.svc.ListFailedOperations(r.Context(), status, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]any{
			"id":            rec.ID,
			"gameMode":      rec.GameMode,
			"gameId":        rec.GameID,
			"wallet":        rec.WalletAddress,
			"amount":        rec.AmountMinor,
			"operationType": rec.OperationType,
			"reason":        rec.Reason,
			"status":        rec.Status,
			"retryCount":    rec.RetryCount,
			"recoveryRef":   rec.RecoveryRef,
			"nextRetryAt":   rec.NextRetryAt,
			"createdAt":     rec.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"operations": out})
}
