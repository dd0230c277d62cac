package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"bettabuckz/internal/fees"
	"bettabuckz/internal/payments/card"
	"bettabuckz/internal/payments/cashapp"
	"bettabuckz/internal/services"
	"bettabuckz/internal/validator"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed request body")

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondCode(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}

// respondServiceError maps service and adapter errors onto a stable code.
// Provider detail is logged, never returned.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *validator.ValidationError
	switch {
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_input", "fields": validation.Fields})
	case errors.Is(err, errMalformedBody), errors.Is(err, services.ErrInvalidInput):
		respondCode(w, http.StatusBadRequest, "invalid_input", "request is invalid")
	case errors.Is(err, services.ErrInsufficientBalance):
		respondCode(w, http.StatusBadRequest, "insufficient_balance", "insufficient balance")
	case errors.Is(err, services.ErrRecipientNotFound):
		respondCode(w, http.StatusNotFound, "recipient_not_found", "recipient not found")
	case errors.Is(err, services.ErrResourceNotFound):
		respondCode(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, services.ErrForbidden):
		respondCode(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, services.ErrDuplicateRequest):
		respondCode(w, http.StatusConflict, "duplicate_request", "request already processed")
	case errors.Is(err, services.ErrReconciliationRequired):
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request left ledger for reconciliation")
		respondCode(w, http.StatusInternalServerError, "reconciliation_required", "operation failed and is pending manual reconciliation")
	case errors.Is(err, services.ErrPartialFailureCompensated):
		h.logger.WithError(err).WithField("path", r.URL.Path).Warn("request rolled back")
		respondCode(w, http.StatusInternalServerError, "partial_failure_compensated", "operation failed and was rolled back; retry is safe")
	case errors.Is(err, card.ErrInvalidSignature), errors.Is(err, cashapp.ErrInvalidSignature):
		respondCode(w, http.StatusBadRequest, "provider_error", "signature verification failed")
	case errors.Is(err, services.ErrProviderError), errors.Is(err, fees.ErrInvalidPrice):
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("payment provider failure")
		respondCode(w, http.StatusBadGateway, "provider_error", "payment provider unavailable")
	default:
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		respondCode(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decode reads a JSON body into dst and runs the struct validator on it.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errMalformedBody
	}
	return h.validate.Struct(dst)
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func paging(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit = parseInt(query.Get("limit"), 50)
	offset = parseInt(query.Get("offset"), 0)
	return limit, offset
}
