package middleware

import (
	"context"

	"github.com/google/uuid"
)

type principalKey struct{}

// Principal is the API key a request was authenticated with.
type Principal struct {
	KeyID     uuid.UUID
	KeyPrefix string
	Scopes    []string
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal set by Authenticate, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
