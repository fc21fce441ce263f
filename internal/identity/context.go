// Package identity carries the authenticated caller through request contexts.
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Role is the account type recorded on a user.
type Role string

const (
	RolePatient   Role = "patient"
	RoleAttendant Role = "attendant"
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleAttendant, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// Staff roles may confirm, complete and cancel appointments.
func (r Role) Staff() bool {
	return r == RoleAttendant || r == RoleOwner || r == RoleAdmin
}

// Manager roles resolve patient requests and edit schedules.
func (r Role) Manager() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Principal is the authenticated actor behind a request.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// Is reports whether the principal holds any of roles.
func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type ctxKey string

const principalKey ctxKey = "clinic.principal"

// WithPrincipal stores the caller in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the caller if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != uuid.Nil
}
