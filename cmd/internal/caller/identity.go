// Package caller resolves who is invoking a callable operation.
//
// Identity comes from ID tokens minted by the external identity provider and
// request attestation comes from App Check tokens; this package only verifies
// them, it never issues either.
package caller

import (
	"context"
	"strings"
)

// DefaultDisplayName is used when the identity provider supplies no name.
const DefaultDisplayName = "User"

// Identity is the verified caller of a callable operation.
type Identity struct {
	UID string
	// Email is set only when the provider marked it verified.
	Email   string
	Name    string
	Picture *string
}

// DisplayName returns Name or DefaultDisplayName.
func (id Identity) DisplayName() string {
	if n := strings.TrimSpace(id.Name); n != "" {
		return n
	}
	return DefaultDisplayName
}

type identityContextKey struct{}

// WithIdentity stores a verified identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the verified identity stored in ctx, or nil when the
// request is anonymous.
func FromContext(ctx context.Context) *Identity {
	if ctx == nil {
		return nil
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || strings.TrimSpace(id.UID) == "" {
		return nil
	}
	return &id
}
