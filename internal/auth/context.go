package auth

import (
	"context"
)

// Principal identifies the authenticated backend service calling the quota
// API. Do not place secrets or raw keys here.
type Principal struct {
	ServiceID string
	KeyID     string
	Env       string
}

type principalKeyType struct{}

var principalKey = principalKeyType{}

// WithPrincipal attaches principal to context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves principal from context (nil if absent)
func GetPrincipal(ctx context.Context) *Principal {
	v := ctx.Value(principalKey)
	if v == nil {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
