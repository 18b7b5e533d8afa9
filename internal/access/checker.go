// Package access decides whether a user may read, mutate or fork a conversation.
//
// Every function here is pure: callers load the conversation and memberships
// from storage and pass them in, so decisions are always derived from fresh data.
package access

import (
	"github.com/capitalize-ai/advisor-platform/internal/model"
)

// Decision is the outcome of an access check.
type Decision int

const (
	Approved Decision = iota
	AlreadyOwned
	NotShared
	NotAMember
	AccessDenied
	NotOwner
	InsufficientRole
)

var decisionNames = map[Decision]string{
	Approved:         "approved",
	AlreadyOwned:     "already_owned",
	NotShared:        "not_shared",
	NotAMember:       "not_a_member",
	AccessDenied:     "access_denied",
	NotOwner:         "not_owner",
	InsufficientRole: "insufficient_role",
}

func (d Decision) String() string {
	if name, ok := decisionNames[d]; ok {
		return name
	}
	return "unknown"
}

// Allowed reports whether the decision approves the operation.
func (d Decision) Allowed() bool {
	return d == Approved
}

// MinCreateRole is the lowest organization role allowed to start conversations.
const MinCreateRole = model.OrgRoleMember

// AuthorizeFork decides whether requesterID may fork source.
// Rules are evaluated in order and the first match wins.
func AuthorizeFork(requesterID string, source *model.Conversation, memberships []model.Membership) Decision {
	if source.IsOwnedBy(requesterID) {
		return AlreadyOwned
	}
	if !source.IsShared {
		return NotShared
	}
	if findMembership(requesterID, source.OrganizationID, memberships) == nil {
		return NotAMember
	}
	return Approved
}

// AuthorizeRead allows the owner, or any organization member when the conversation is shared.
func AuthorizeRead(requesterID string, conv *model.Conversation, membership *model.Membership) Decision {
	if conv.IsOwnedBy(requesterID) {
		return Approved
	}
	if !conv.IsShared || !belongsTo(requesterID, conv.OrganizationID, membership) {
		return AccessDenied
	}
	return Approved
}

// AuthorizeOwner allows only the conversation owner. Used for update, delete and append.
func AuthorizeOwner(requesterID string, conv *model.Conversation) Decision {
	if !conv.IsOwnedBy(requesterID) {
		return NotOwner
	}
	return Approved
}

// AuthorizeCreate allows members with at least MinCreateRole to start a conversation.
func AuthorizeCreate(membership *model.Membership) Decision {
	if membership == nil {
		return NotAMember
	}
	if !membership.Role.AtLeast(MinCreateRole) {
		return InsufficientRole
	}
	return Approved
}

// AuthorizeOrganization allows any member of organizationID.
func AuthorizeOrganization(requesterID, organizationID string, membership *model.Membership) Decision {
	if !belongsTo(requesterID, organizationID, membership) {
		return NotAMember
	}
	return Approved
}

func findMembership(userID, organizationID string, memberships []model.Membership) *model.Membership {
	for i := range memberships {
		if belongsTo(userID, organizationID, &memberships[i]) {
			return &memberships[i]
		}
	}
	return nil
}

func belongsTo(userID, organizationID string, m *model.Membership) bool {
	return m != nil && m.UserID == userID && m.OrganizationID == organizationID && m.Role.Valid()
}
