package auth

import (
	"context"
	"strings"
)

// Principal kinds attached to authenticated requests.
const (
	PrincipalAdmin   = "admin"
	PrincipalSubsite = "subsite"
)

// Identity captures the authenticated principal details for the request.
type Identity struct {
	// UID is the admin subject or the subsite identifier.
	UID  string
	Kind string
	// SubsiteID is set when the request was authenticated with subsite
	// API credentials.
	SubsiteID string
	Name      string
}

// IsAdmin reports whether the identity belongs to the admin surface.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Kind == PrincipalAdmin
}

// IsSubsite reports whether the identity belongs to an authenticated subsite.
func (i *Identity) IsSubsite() bool {
	return i != nil && i.Kind == PrincipalSubsite && strings.TrimSpace(i.SubsiteID) != ""
}

type contextKey string

const identityContextKey contextKey = "github.com/kado-mall/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// SubsiteFromContext returns the authenticated subsite identifier, if any.
func SubsiteFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || !identity.IsSubsite() {
		return "", false
	}
	return identity.SubsiteID, true
}
