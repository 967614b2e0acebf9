package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID reuses the caller's X-Request-Id when present (the load
// balancer sets one) and mints a UUID otherwise. The id is echoed on the
// response and attached to the request logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if reqID == "" || len(reqID) > 128 {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
