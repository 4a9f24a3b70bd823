package auth

import (
	"context"

	"github.com/platinummonkey/medtrail/pkg/contextkeys"
)

// Principal is the authenticated identity attached to a request.
// Fields mirror the claims carried by bearer tokens; any of them may be empty.
type Principal struct {
	UserID   string `json:"user_id,omitempty"`
	ID       string `json:"id,omitempty"`
	Role     Role   `json:"role,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Role represents a back-office role
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleLabTech    Role = "lab_technician"
	RolePharmacist Role = "pharmacist"
	RoleReception  Role = "reception"
)

// DisplayName returns the username, falling back to the display name.
func (p *Principal) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.Username != "" {
		return p.Username
	}
	return p.Name
}

// PrincipalFromContext returns the principal attached to ctx, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}
