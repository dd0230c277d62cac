package middleware

import (
	"net/http"
	"time"

	"bettabuckz/internal/logging"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// AccessLog writes one structured line per request.
func AccessLog(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := logging.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"remote":      r.RemoteAddr,
			}
			if id := chimiddleware.GetReqID(r.Context()); id != "" {
				fields["request_id"] = id
			}
			if userID, ok := UserIDFromContext(r.Context()); ok {
				fields["user_id"] = userID
			}
			level := logrus.InfoLevel
			switch {
			case status >= 500:
				level = logrus.ErrorLevel
			case status >= 400:
				level = logrus.WarnLevel
			}
			logger.WithFields(fields).Log(level, "http request")
		})
	}
}
