package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipal_CanManageBranch(t *testing.T) {
	tests := []struct {
		name   string
		p      Principal
		branch string
		want   bool
	}{
		{"guest", Guest(), "b1", false},
		{"customer", Principal{UserID: "u1", Role: RoleCustomer}, "b1", false},
		{"admin own branch", Principal{UserID: "a1", Role: RoleBranchAdmin, BranchID: "b1"}, "b1", true},
		{"admin other branch", Principal{UserID: "a1", Role: RoleBranchAdmin, BranchID: "b1"}, "b2", false},
		{"staff without branch", Principal{UserID: "s1", Role: RoleStaff}, "b1", false},
		{"super admin", Principal{UserID: "root", Role: RoleSuperAdmin}, "b9", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.CanManageBranch(tt.branch))
		})
	}
}

func TestFromContext(t *testing.T) {
	assert.True(t, FromContext(context.Background()).IsGuest())

	p := Principal{UserID: "u1", Role: RoleCustomer}
	ctx := WithPrincipal(context.Background(), p)
	assert.Equal(t, p, FromContext(ctx))
	assert.False(t, FromContext(ctx).IsGuest())
}
