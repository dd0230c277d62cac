package handlers

import (
	"net/http"

	"bettabuckz/internal/middleware"
	"bettabuckz/internal/money"
	"bettabuckz/internal/services"
	"bettabuckz/internal/websocket"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ReconcileReport(w http.ResponseWriter, r *http.Request) {
	drift, err := h.reconciler.Report(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile balances")
		return
	}
	normalized := make([]map[string]any, 0, len(drift))
	for _, row := range drift {
		normalized = append(normalized, map[string]any{
			"user_id":        row.UserID,
			"stored_balance": money.Format(row.StoredBalance),
			"ledger_balance": money.Format(row.LedgerBalance),
			"difference":     money.Format(row.Difference),
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	alerts, err := h.reconciler.ListAlerts(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load alerts")
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	operator, ok := middleware.OperatorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req resolveAlertRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	alert, err := h.reconciler.ResolveAlert(r.Context(), services.ResolveAlertRequest{
		AlertID:    chi.URLParam(r, "id"),
		OperatorID: operator.UserID,
		Adjustment: req.Adjustment,
		Note:       req.Note,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// WSBalances streams the caller's balance. QueryAuth has already resolved
// the user from the token parameter.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "balance stream unavailable")
		return
	}
	var initial *websocket.BalanceUpdate
	if balance, err := h.ledger.Balance(r.Context(), userID); err == nil {
		initial = &websocket.BalanceUpdate{UserID: userID, Balance: balance, Display: money.Format(balance)}
	} else {
		h.logger.WithError(err).WithField("user_id", userID).Warn("initial balance lookup failed")
	}
	h.hub.ServeWS(w, r, userID, initial)
}
