package middleware

import (
	"net/http"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/access"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/transport"
	"github.com/frahmantamala/ifarm/pkg/logger"
	"github.com/go-chi/chi"
)

// RequireAccess asks the engine before the handler runs. The route's {id}
// parameter, when present, is passed as the resource id.
func RequireAccess(base *transport.BaseHandler, engine access.Decider, action permission.Action, resourceType permission.ResourceType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := principal.FromContext(r.Context())
			if !ok || subject.UserID == 0 {
				base.WriteAppError(w, internal.NewUnauthorizedError("unauthorized", internal.ErrCodeInvalidToken))
				return
			}

			decision := engine.Decide(r.Context(), access.Request{
				Subject:     subject,
				Action:      action,
				Resource:    access.Resource{Type: resourceType, ID: chi.URLParam(r, "id")},
				Environment: access.Environment{Time: time.Now(), IPAddress: access.ClientIP(r)},
			})

			if !decision.Allowed {
				logger.From(r.Context()).Warn("access denied",
					"permission", decision.Permission,
					"reason", decision.Reason)
				base.WriteAppError(w, denyError(decision.Reason).WithDetails(map[string]string{
					"reason":     decision.Reason,
					"permission": decision.Permission,
				}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// denyError picks the sentinel whose code names the deny reason.
func denyError(reason string) *internal.AppError {
	switch reason {
	case access.ReasonExpiredDelegation:
		return internal.ErrExpiredDelegationUsed
	case access.ReasonMalformedEnvironment:
		return internal.ErrMalformedEnvironment
	case access.ReasonCrossTenant:
		return internal.ErrCrossTenant
	}
	return internal.ErrAccessDenied
}

// RequireSuperAdmin guards the cross-tenant read-only admin endpoints.
func RequireSuperAdmin(base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := principal.FromContext(r.Context())
			if !ok || subject.UserID == 0 {
				base.WriteAppError(w, internal.NewUnauthorizedError("unauthorized", internal.ErrCodeInvalidToken))
				return
			}
			if !subject.SuperAdmin {
				base.WriteAppError(w, internal.ErrAccessDenied.WithMessage("super admin only"))
				return
			}
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				base.WriteAppError(w, internal.ErrAccessDenied.WithMessage("admin endpoints are read-only"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
