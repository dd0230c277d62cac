package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"bettabuckz/internal/idempotency"
	"bettabuckz/internal/logging"

	"github.com/go-chi/chi/v5"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	maxIdempotentBody = 1 << 20
)

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Requests without the header pass straight through. Gateway failures
// release the key so the client can retry; every other response is stored.
func Idempotency(records idempotency.Store, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyHeader)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if len(clientKey) > 255 {
				respondError(w, http.StatusBadRequest, "idempotency key too long")
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid payload")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := idempotency.Key(userID, routePattern(r), clientKey)
			fingerprint := idempotency.Fingerprint(body)
			rec, err := records.Begin(r.Context(), key, fingerprint)
			switch {
			case errors.Is(err, idempotency.ErrInProgress):
				respondError(w, http.StatusConflict, "request_in_progress")
				return
			case errors.Is(err, idempotency.ErrKeyReused):
				respondError(w, http.StatusUnprocessableEntity, "idempotency_key_reused")
				return
			case err != nil:
				// The ledger's own idempotency key still guards the write.
				logger.WithError(err).Warn("idempotency store unavailable")
				next.ServeHTTP(w, r)
				return
			case rec != nil:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(rec.Code)
				_, _ = w.Write(rec.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			ctx := context.WithoutCancel(r.Context())
			if capture.status == http.StatusBadGateway || capture.status == http.StatusServiceUnavailable {
				if err := records.Release(ctx, key); err != nil {
					logger.WithError(err).WithField("key", key).Warn("release idempotency key")
				}
				return
			}
			if err := records.Complete(ctx, key, fingerprint, capture.status, capture.body.Bytes()); err != nil {
				logger.WithError(err).WithField("key", key).Warn("store idempotent response")
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
