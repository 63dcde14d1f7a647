package auth

import (
	"context"
	"strings"
)

// Roles carried in the "role" custom claim of customer and staff tokens.
const (
	RoleCustomer   = "customer"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleSuperAdmin = "superadmin"
)

// AdminRoles lists every role allowed on the back-office routes.
var AdminRoles = []string{RoleAdmin, RoleManager, RoleSuperAdmin}

// Identity is the authenticated caller extracted from a Firebase ID token.
type Identity struct {
	UserID string
	Email  string
	Phone  string
	Roles  []string
}

// HasRole reports whether the identity carries role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity may act on other users' orders and payments.
func (i *Identity) IsAdmin() bool {
	for _, role := range AdminRoles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
