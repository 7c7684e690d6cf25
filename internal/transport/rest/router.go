package rest

import (
	"log/slog"
	"time"

	"github.com/frahmantamala/ifarm/api"
	"github.com/frahmantamala/ifarm/internal/access"
	"github.com/frahmantamala/ifarm/internal/audit"
	"github.com/frahmantamala/ifarm/internal/auth"
	"github.com/frahmantamala/ifarm/internal/delegation"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
	"github.com/frahmantamala/ifarm/internal/role"
	"github.com/frahmantamala/ifarm/internal/transport"
	"github.com/frahmantamala/ifarm/internal/transport/middleware"
	"github.com/frahmantamala/ifarm/internal/transport/swagger"
	"github.com/frahmantamala/ifarm/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

type Handlers struct {
	Health     *HealthHandler
	Auth       *auth.Handler
	User       *user.Handler
	Permission *permission.Handler
	Role       *role.Handler
	Policy     *policy.Handler
	Delegation *delegation.Handler
	Access     *access.Handler
	Audit      *audit.Handler
}

type Options struct {
	Origins          []string
	Production       bool
	DecideRateLimit  int
	DecideRateWindow time.Duration
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, engine access.Decider, opts Options, logger *slog.Logger) error {
	base := transport.NewBaseHandler(logger)

	validate, err := middleware.OpenAPIValidator(base, api.OpenAPI)
	if err != nil {
		return err
	}

	guard := func(action permission.Action, rt permission.ResourceType) func(chi.Router) chi.Router {
		mw := middleware.RequireAccess(base, engine, action, rt)
		return func(r chi.Router) chi.Router { return r.With(mw) }
	}
	view := func(r chi.Router, rt permission.ResourceType) chi.Router {
		return guard(permission.ActionView, rt)(r)
	}
	manage := func(r chi.Router, rt permission.ResourceType) chi.Router {
		return guard(permission.ActionManage, rt)(r)
	}

	// Apply global middleware
	router.Use(middleware.CORS(opts.Origins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.SecureHeaders(logger, opts.Production))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware)

	router.Get("/openapi.yml", swagger.Spec)
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(validate)

		r.Get("/health", h.Health.healthCheckHandler)
		r.Get("/ping", h.Health.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			pr.Use(middleware.SubjectContext)

			pr.Get("/users/me", h.User.GetCurrentUser)
			view(pr, permission.ResourceUser).Get("/users", h.User.ListUsers)
			view(pr, permission.ResourceRole).Get("/users/{userID}/permissions", h.Role.UserPermissions)

			pr.Get("/permissions", h.Permission.ListPermissions)
			pr.Get("/role-templates", h.Role.ListTemplates)

			pr.Route("/roles", func(rr chi.Router) {
				view(rr, permission.ResourceRole).Get("/", h.Role.ListRoles)
				manage(rr, permission.ResourceRole).Post("/", h.Role.CreateRole)
				view(rr, permission.ResourceRole).Get("/{id}", h.Role.GetRole)
				manage(rr, permission.ResourceRole).Put("/{id}", h.Role.UpdateRole)
				manage(rr, permission.ResourceRole).Delete("/{id}", h.Role.DeleteRole)
				manage(rr, permission.ResourceRole).Post("/{id}/permissions", h.Role.AddPermissions)
				manage(rr, permission.ResourceRole).Delete("/{id}/permissions", h.Role.RemovePermissions)
				manage(rr, permission.ResourceRole).Post("/{id}/policies", h.Role.AttachPolicies)
				manage(rr, permission.ResourceRole).Delete("/{id}/policies", h.Role.DetachPolicies)
				manage(rr, permission.ResourceRole).Post("/{id}/assignments", h.Role.AssignRole)
				manage(rr, permission.ResourceRole).Delete("/{id}/assignments/{userID}", h.Role.UnassignRole)
			})

			pr.Route("/policies", func(pl chi.Router) {
				view(pl, permission.ResourcePolicy).Get("/", h.Policy.ListPolicies)
				manage(pl, permission.ResourcePolicy).Post("/", h.Policy.CreatePolicy)
				view(pl, permission.ResourcePolicy).Get("/{id}", h.Policy.GetPolicy)
				manage(pl, permission.ResourcePolicy).Put("/{id}", h.Policy.UpdatePolicy)
				manage(pl, permission.ResourcePolicy).Put("/{id}/active", h.Policy.SetPolicyActive)
				manage(pl, permission.ResourcePolicy).Delete("/{id}", h.Policy.DeletePolicy)
			})

			// Delegation reads and revocation are scoped inside the handler:
			// callers see their own delegations unless they hold view_delegations.
			pr.Route("/delegations", func(dr chi.Router) {
				dr.Get("/", h.Delegation.ListDelegations)
				guard(permission.ActionCreate, permission.ResourceDelegation)(dr).Post("/", h.Delegation.CreateDelegation)
				dr.Get("/{id}", h.Delegation.GetDelegation)
				dr.Post("/{id}/revoke", h.Delegation.RevokeDelegation)
			})

			pr.With(middleware.RateLimit(base, opts.DecideRateLimit, opts.DecideRateWindow)).
				Post("/access/decide", h.Access.Decide)

			view(pr, permission.ResourceAuditLog).Get("/audit-logs", h.Audit.ListTenantLogs)

			pr.Route("/admin", func(ar chi.Router) {
				ar.Use(middleware.RequireSuperAdmin(base))
				ar.Get("/audit-logs", h.Audit.ListAllLogs)
				ar.Get("/audit-summary", h.Audit.Summary)
			})
		})
	})

	return nil
}
