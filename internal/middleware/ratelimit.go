package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/menuqr/tablechat/internal/model"
)

// ChatRateLimit limits chat requests per anonymous identity, falling back to
// the client IP for callers without a uid cookie. The uid is client-chosen,
// so a looser per-IP ceiling applies on top; guests on one venue network
// share it. ipLimit <= 0 means ten times uidLimit.
func ChatRateLimit(uidLimit, ipLimit int, window time.Duration) func(http.Handler) http.Handler {
	if ipLimit <= 0 {
		ipLimit = uidLimit * 10
	}

	byIP := httprate.Limit(
		ipLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
	byUID := httprate.Limit(
		uidLimit,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if c, err := r.Cookie(model.UIDCookieName); err == nil && c.Value != "" {
				return "uid:" + c.Value, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)

	return func(next http.Handler) http.Handler {
		return byIP(byUID(next))
	}
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"reply":"You're sending messages too quickly. Please wait a moment."}`))
}
