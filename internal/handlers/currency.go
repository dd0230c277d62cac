package handlers

import (
	"net/http"

	"bettabuckz/internal/middleware"
	"bettabuckz/internal/money"
	"bettabuckz/internal/services"
)

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.ledger.Transfer(r.Context(), services.TransferRequest{
		FromUserID:     userID,
		ToUserID:       req.ToUserID,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: r.Header.Get(middleware.IdempotencyHeader),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Transferred " + money.Format(req.Amount) + " BettaBuckZ",
		"balance":       result.FromBalance,
		"debitEntryId":  result.DebitEntryID,
		"creditEntryId": result.CreditEntryID,
	})
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req purchaseRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.ledger.Purchase(r.Context(), services.PurchaseRequest{
		UserID:         userID,
		Amount:         req.Amount,
		Description:    req.Description,
		Reference:      req.Reference,
		IdempotencyKey: r.Header.Get(middleware.IdempotencyHeader),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"entryId": result.EntryID,
		"balance": result.NewBalance,
	})
}

func (h *Handler) RefundPurchase(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.ledger.RefundPurchase(r.Context(), req.UserID, req.EntryID, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if operator, ok := middleware.OperatorFromContext(r.Context()); ok {
		h.logger.WithField("operator_id", operator.UserID).WithField("entry_id", req.EntryID).Info("purchase refunded")
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"entryId": result.EntryID,
		"balance": result.NewBalance,
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balance": balance,
		"display": money.Format(balance),
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := paging(r)
	entries, err := h.ledger.History(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
