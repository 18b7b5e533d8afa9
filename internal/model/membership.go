package model

import (
	"fmt"
	"time"
)

// OrgRole is a member's role within an organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
	OrgRoleViewer OrgRole = "viewer"
)

// orgRoleRank orders roles from least to most privileged.
var orgRoleRank = map[OrgRole]int{
	OrgRoleViewer: 1,
	OrgRoleMember: 2,
	OrgRoleAdmin:  3,
	OrgRoleOwner:  4,
}

// ParseOrgRole converts a stored role string into an OrgRole.
func ParseOrgRole(s string) (OrgRole, error) {
	r := OrgRole(s)
	if _, ok := orgRoleRank[r]; !ok {
		return "", fmt.Errorf("unknown organization role %q", s)
	}
	return r, nil
}

// Rank returns the role's position in the hierarchy, 0 for unknown roles.
func (r OrgRole) Rank() int {
	return orgRoleRank[r]
}

// Valid reports whether r is a known role.
func (r OrgRole) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r grants at least the privileges of min.
func (r OrgRole) AtLeast(min OrgRole) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// Membership is a user's role-bearing association with an organization.
type Membership struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           OrgRole   `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}
