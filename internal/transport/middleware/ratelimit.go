package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/transport"
	"github.com/go-chi/httprate"
)

// RateLimit limits requests per authenticated user, falling back to the
// client IP for anonymous calls.
func RateLimit(base *transport.BaseHandler, limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			base.WriteAppError(w, &internal.AppError{
				Type:       internal.ErrorTypeForbidden,
				Code:       "RATE_LIMITED",
				Message:    "too many requests",
				StatusCode: http.StatusTooManyRequests,
			})
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if s, ok := principal.FromContext(r.Context()); ok && s.UserID != 0 {
		return "user:" + strconv.FormatInt(s.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
