package auth

import "context"

// Principal is the verified caller identity handlers act on. Anonymous
// callers carry a zero Principal with no role, which the moat layer maps to
// no clearance at all.
type Principal struct {
	Subject string
	Email   string
	Role    string
	TokenID string
}

// Anonymous reports whether the principal carries no verified identity.
func (p Principal) Anonymous() bool { return p.Subject == "" }

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
