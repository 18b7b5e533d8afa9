package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/store"
)

const conversationColumns = `id, user_id, organization_id, advisor_mode_id, title, is_shared,
	forked_from_conversation_id, created_at, updated_at`

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, conversationColumns, s.tables.Conversations)

	conv, err := scanConversation(s.executor(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err, "get conversation %s", id)
	}
	return conv, nil
}

// CreateConversation inserts a conversation. The caller assigns ID and timestamps.
func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, organization_id, advisor_mode_id, title, is_shared,
			forked_from_conversation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.tables.Conversations)

	_, err := s.executor(ctx).Exec(ctx, query,
		conv.ID,
		conv.UserID,
		conv.OrganizationID,
		nullString(conv.AdvisorModeID),
		conv.Title,
		conv.IsShared,
		conv.ForkedFromConversationID,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateError(err) {
			return fmt.Errorf("conversation %s: %w", conv.ID, store.ErrConflict)
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// UpdateConversation writes title, is_shared and updated_at. Ownership and
// organization are never changed.
func (s *Store) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	query := fmt.Sprintf(`
		UPDATE %s SET title = $2, is_shared = $3, updated_at = $4
		WHERE id = $1
	`, s.tables.Conversations)

	tag, err := s.executor(ctx).Exec(ctx, query, conv.ID, conv.Title, conv.IsShared, conv.UpdatedAt)
	if err != nil {
		return translate(err, "update conversation %s", conv.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conv.ID, store.ErrNotFound)
	}
	return nil
}

// DeleteConversation removes the conversation and its messages in one statement.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		WITH removed_messages AS (
			DELETE FROM %s WHERE conversation_id = $1
		)
		DELETE FROM %s WHERE id = $1
	`, s.tables.Messages, s.tables.Conversations)

	tag, err := s.executor(ctx).Exec(ctx, query, id)
	if err != nil {
		return translate(err, "delete conversation %s", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListConversations returns the user's own and the organization's shared conversations.
func (s *Store) ListConversations(ctx context.Context, organizationID, userID string) ([]model.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE organization_id = $1 AND (user_id = $2 OR is_shared)
		ORDER BY updated_at DESC
	`, conversationColumns, s.tables.Conversations)

	rows, err := s.executor(ctx).Query(ctx, query, organizationID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

// LockConversation takes a row lock on the conversation. It only serializes
// writers when ctx carries a transaction.
func (s *Store) LockConversation(ctx context.Context, id string) error {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, s.tables.Conversations)

	var locked string
	if err := s.executor(ctx).QueryRow(ctx, query, id).Scan(&locked); err != nil {
		return translate(err, "lock conversation %s", id)
	}
	return nil
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		conv          model.Conversation
		advisorModeID *string
	)
	err := row.Scan(
		&conv.ID,
		&conv.UserID,
		&conv.OrganizationID,
		&advisorModeID,
		&conv.Title,
		&conv.IsShared,
		&conv.ForkedFromConversationID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if advisorModeID != nil {
		conv.AdvisorModeID = *advisorModeID
	}
	return &conv, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
