package auth

import "context"

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleGuest       Role = "guest"
	RoleCustomer    Role = "customer"
	RoleStaff       Role = "staff"
	RoleBranchAdmin Role = "branch_admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Principal identifies the caller of an operation. The zero value is a guest.
type Principal struct {
	UserID string
	Role   Role
	// BranchID is the branch a staff member or branch admin is assigned to.
	BranchID string
}

// Guest returns the anonymous principal.
func Guest() Principal {
	return Principal{Role: RoleGuest}
}

// IsGuest reports whether the principal has no user identity.
func (p Principal) IsGuest() bool {
	return p.UserID == "" || p.Role == RoleGuest || p.Role == ""
}

// Privileged reports whether the principal may manage orders.
func (p Principal) Privileged() bool {
	switch p.Role {
	case RoleStaff, RoleBranchAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// Pinned reports whether the principal is restricted to its assigned branch.
func (p Principal) Pinned() bool {
	return p.Role == RoleStaff || p.Role == RoleBranchAdmin
}

// CanManageBranch reports whether the principal may manage orders of branchID.
func (p Principal) CanManageBranch(branchID string) bool {
	if !p.Privileged() {
		return false
	}
	if p.Role == RoleSuperAdmin {
		return true
	}
	return p.BranchID != "" && p.BranchID == branchID
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, or a guest.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Guest()
}
