package middleware

import (
	"context"
	"errors"
	"net/http"

	"bettabuckz/internal/models"
	"bettabuckz/internal/store"
)

const operatorKey contextKey = "operator"

type OperatorStore interface {
	GetOperator(ctx context.Context, userID string) (models.Operator, error)
}

func OperatorFromContext(ctx context.Context) (models.Operator, bool) {
	operator, ok := ctx.Value(operatorKey).(models.Operator)
	return operator, ok
}

// RequireAdmin lets through operators holding role; super admins hold every
// role and an empty role only requires an admins row.
func RequireAdmin(operators OperatorStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			operator, err := operators.GetOperator(r.Context(), userID)
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusForbidden, "admin privileges required")
				return
			}
			if err != nil {
				respondError(w, http.StatusInternalServerError, "unable to verify admin")
				return
			}
			if !operator.Can(role) {
				respondError(w, http.StatusForbidden, "missing required role")
				return
			}
			ctx := context.WithValue(r.Context(), operatorKey, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
