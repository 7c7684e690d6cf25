package middleware

import (
	"net/http"

	"github.com/frahmantamala/ifarm/internal/access"
	"github.com/frahmantamala/ifarm/internal/audit"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/pkg/logger"
)

// SubjectContext runs after authentication. It tags the request logger with
// the caller and stores the client address for audit entries written during
// the request.
func SubjectContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithIP(r.Context(), access.ClientIP(r))

		if s, ok := principal.FromContext(ctx); ok {
			fields := []any{"user_id", s.UserID, "tenant_id", s.TenantID}
			if s.ViaDelegationID != 0 {
				fields = append(fields, "via_delegation_id", s.ViaDelegationID)
			}
			ctx = logger.With(ctx, fields...)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
