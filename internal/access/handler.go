package access

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/transport"
	"github.com/frahmantamala/ifarm/internal/user"
)

var now = time.Now

type Decider interface {
	Decide(ctx context.Context, req Request) Decision
}

// UserLookup loads the user a decision is asked on behalf of.
type UserLookup interface {
	GetByID(ctx context.Context, userID int64) (*user.User, error)
}

type Handler struct {
	*transport.BaseHandler
	Engine Decider
	Users  UserLookup
}

func NewHandler(baseHandler *transport.BaseHandler, engine Decider, users UserLookup) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Engine:      engine,
		Users:       users,
	}
}

// Decide answers an access question. Deny is a normal 200 response; the
// caller turns it into its own 403.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	caller, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto DecideDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	subject := caller
	if dto.UserID != 0 && dto.UserID != caller.UserID {
		check := h.Engine.Decide(r.Context(), Request{
			Subject:     caller,
			Action:      permission.ActionManage,
			Resource:    Resource{Type: permission.ResourceRole},
			Environment: Environment{Time: now(), IPAddress: ClientIP(r)},
		})
		if !check.Allowed {
			h.HandleServiceError(w, internal.ErrAccessDenied.WithDetails(map[string]string{"reason": check.Reason}))
			return
		}
		subject, err = h.subjectFor(r.Context(), caller.TenantID, dto.UserID)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}
	}

	env := Environment{Time: now(), Timezone: dto.Timezone, IPAddress: ClientIP(r)}
	if dto.Time != nil {
		env.Time = *dto.Time
	}

	decision := h.Engine.Decide(r.Context(), Request{
		Subject: subject,
		Action:  permission.Action(dto.Action),
		Resource: Resource{
			Type:       permission.ResourceType(dto.ResourceType),
			ID:         dto.ResourceID,
			TenantID:   dto.ResourceTenantID,
			Attributes: dto.ResourceAttributes,
		},
		Environment: env,
	})

	h.WriteJSON(w, http.StatusOK, decision)
}

// subjectFor builds the subject the auth middleware would build for userID.
// Users of other tenants are reported as not found.
func (h *Handler) subjectFor(ctx context.Context, tenantID, userID int64) (principal.Subject, error) {
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return principal.Subject{}, err
	}
	if u.TenantID != tenantID || !u.IsActiveUser() {
		return principal.Subject{}, internal.ErrUserNotFound
	}
	return principal.Subject{
		UserID:     u.ID,
		TenantID:   u.TenantID,
		SuperAdmin: u.IsSuperAdmin,
	}, nil
}

// ClientIP is the remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
