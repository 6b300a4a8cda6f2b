package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/logger"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestID propagates an incoming X-Request-ID or mints a new one, storing
// it in the request context for logger.FromContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
