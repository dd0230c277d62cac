package handlers

import (
	"net/http"

	"bettabuckz/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) EnterTournament(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := h.ledger.EnterTournament(r.Context(), userID, chi.URLParam(r, "id"))
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

func (h *Handler) RefundTournamentEntry(w http.ResponseWriter, r *http.Request) {
	var req tournamentRefundRequest
	if err := h.decode(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.ledger.RefundTournamentEntry(r.Context(), req.UserID, chi.URLParam(r, "id"))
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
