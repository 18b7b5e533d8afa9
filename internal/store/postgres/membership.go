package postgres

import (
	"context"
	"fmt"

	"github.com/capitalize-ai/advisor-platform/internal/model"
)

// GetMembership returns the user's membership in the organization.
func (s *Store) GetMembership(ctx context.Context, organizationID, userID string) (*model.Membership, error) {
	query := fmt.Sprintf(`
		SELECT organization_id, user_id, role, joined_at
		FROM %s
		WHERE organization_id = $1 AND user_id = $2
	`, s.tables.Members)

	var (
		m    model.Membership
		role string
	)
	err := s.executor(ctx).QueryRow(ctx, query, organizationID, userID).Scan(
		&m.OrganizationID, &m.UserID, &role, &m.JoinedAt)
	if err != nil {
		return nil, translate(err, "membership %s/%s", organizationID, userID)
	}

	m.Role, err = model.ParseOrgRole(role)
	if err != nil {
		return nil, fmt.Errorf("membership %s/%s: %w", organizationID, userID, err)
	}
	return &m, nil
}
