package principal

import "context"

// Subject is the authenticated caller. It is always passed explicitly into
// access decisions and never read from package state.
type Subject struct {
	UserID     int64 `json:"user_id"`
	TenantID   int64 `json:"tenant_id"`
	SuperAdmin bool  `json:"super_admin"`
	// ViaDelegationID names the delegation the caller is acting under, if any.
	ViaDelegationID int64                  `json:"via_delegation_id,omitempty"`
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
}

type ctxKey struct{}

func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Subject, bool) {
	if ctx == nil {
		return Subject{}, false
	}
	s, ok := ctx.Value(ctxKey{}).(Subject)
	return s, ok
}
