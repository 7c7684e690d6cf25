package auth

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/transport"
)

// DelegationHeader names the delegation a caller is acting under.
const DelegationHeader = "X-Delegation-ID"

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	tokens, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.Logger.Warn("authentication failed", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	tokens, err := h.Service.RefreshTokens(r.Context(), dto.RefreshToken)
	if err != nil {
		h.Logger.Warn("token refresh failed", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

// AuthMiddleware turns the bearer token into a principal.Subject on the
// request context. X-Delegation-ID, when sent, names the delegation the
// caller acts under; the engine checks it on every decision.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteAppError(w, internal.NewUnauthorizedError("missing authorization token", internal.ErrCodeInvalidToken))
			return
		}

		claims, err := h.Service.ValidateAccessToken(token)
		if err != nil {
			h.Logger.Debug("token validation failed", "error", err)
			h.HandleServiceError(w, err)
			return
		}

		subject := principal.Subject{
			UserID:     claims.UserID,
			TenantID:   claims.TenantID,
			SuperAdmin: claims.SuperAdmin,
		}

		if raw := r.Header.Get(DelegationHeader); raw != "" {
			id, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil || id <= 0 {
				h.WriteAppError(w, internal.NewValidationFieldError(DelegationHeader, "invalid delegation id", internal.ErrCodeValidationFailed))
				return
			}
			subject.ViaDelegationID = id
		}

		next.ServeHTTP(w, r.WithContext(principal.WithSubject(r.Context(), subject)))
	})
}
