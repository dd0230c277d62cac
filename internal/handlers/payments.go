package handlers

import (
	"errors"
	"io"
	"net/http"

	"bettabuckz/internal/middleware"
	"bettabuckz/internal/money"
	"bettabuckz/internal/payments/cashapp"
	"bettabuckz/internal/services"

	"github.com/go-chi/chi/v5"
)

const stripeSignatureHeader = "Stripe-Signature"

func (h *Handler) CreateCardIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req cardIntentRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	intent, err := h.payments.CreateCardIntent(r.Context(), services.CardIntentRequest{
		UserID:         userID,
		PackageID:      req.PackageID,
		AmountCents:    req.Amount,
		Currency:       req.Currency,
		Methods:        req.PaymentMethods,
		IdempotencyKey: r.Header.Get(middleware.IdempotencyHeader),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

// CardWebhook hands the raw body to the signature check. Processing errors
// are returned as 5xx so Stripe redelivers.
func (h *Handler) CardWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondCode(w, http.StatusBadRequest, "invalid_input", "unreadable body")
		return
	}
	if err := h.payments.HandleCardWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHeader)); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) CreateCashAppPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req cashAppPaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.payments.CreateCashAppPayment(r.Context(), services.CashAppPaymentRequest{
		UserID:      userID,
		PackageID:   req.PackageID,
		AmountCents: req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CashAppWebhook acknowledges every authentic event.
func (h *Handler) CashAppWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondCode(w, http.StatusBadRequest, "invalid_input", "unreadable body")
		return
	}
	if err := h.payments.HandleCashAppWebhook(r.Context(), body, r.Header.Get(cashapp.SignatureHeader)); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) StartBitcoinPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req bitcoinPurchaseRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	var cents int64
	if !req.AmountUSD.IsZero() {
		var err error
		if cents, err = money.USDToCents(req.AmountUSD); err != nil {
			h.respondServiceError(w, r, errors.Join(services.ErrInvalidInput, err))
			return
		}
	}
	result, err := h.payments.StartBitcoinPurchase(r.Context(), services.BitcoinPurchaseRequest{
		UserID:      userID,
		PackageID:   req.PackageID,
		AmountCents: cents,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) BTCTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req btcTransferRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.payments.ProcessExternalBTCTransfer(r.Context(), services.BTCTransferRequest{
		UserID:         userID,
		AmountBTC:      req.AmountBTC,
		Destination:    req.DestinationAddress,
		FeePercent:     req.FeePercentage,
		IdempotencyKey: r.Header.Get(middleware.IdempotencyHeader),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	payment, err := h.payments.GetPayment(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payment)
}
