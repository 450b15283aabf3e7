// Package requestctx carries the verified caller identity through request
// contexts.
package requestctx

import "context"

type identityContextKey struct{}

// Identity is the caller resolved from an identity token.
type Identity struct {
	ParticipantID string
	Role          string
}

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the caller identity stored in context. The
// second result is false when none was stored.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}
