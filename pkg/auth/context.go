package auth

import (
	"context"

	apperrors "cardvault/pkg/errors"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the verified caller identity supplied by the identity
// provider: a stable principal id plus granted scopes.
type Principal struct {
	UserID string
	Scopes []string
}

// HasScope reports whether the principal was granted the named scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// WithPrincipal stores the verified principal on the request context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the verified principal, or an unauthorized
// error when the request never passed authentication.
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, apperrors.NewUnauthorizedError("no authenticated principal in context")
	}
	return p, nil
}
