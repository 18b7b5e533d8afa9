package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/store"
)

var messageCopyColumns = []string{"id", "conversation_id", "role", "content", "sections", "position", "created_at"}

// ListMessages returns a page of messages ordered by position and the total count.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, int, error) {
	exec := s.executor(ctx)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE conversation_id = $1`, s.tables.Messages)
	if err := exec.QueryRow(ctx, countQuery, conversationID).Scan(&total); err != nil {
		return nil, 0, translate(err, "count messages for %s", conversationID)
	}

	// LIMIT NULL means no limit.
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, conversation_id, role, content, sections, position, created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY position ASC
		LIMIT $2 OFFSET $3
	`, s.tables.Messages)

	rows, err := exec.Query(ctx, query, conversationID, limitArg, offset)
	if err != nil {
		return nil, 0, translate(err, "list messages for %s", conversationID)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var (
			msg      model.Message
			role     string
			sections []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &sections, &msg.Position, &msg.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = model.Role(role)
		if msg.Sections, err = decodeSections(sections); err != nil {
			return nil, 0, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, total, nil
}

// InsertMessages bulk-inserts messages with COPY. A single COPY either
// loads every row or none.
func (s *Store) InsertMessages(ctx context.Context, conversationID string, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ConversationID != conversationID {
			return fmt.Errorf("message %s belongs to conversation %s, not %s", msg.ID, msg.ConversationID, conversationID)
		}
		sections, err := encodeSections(msg.Sections)
		if err != nil {
			return fmt.Errorf("message %s: %w", msg.ID, err)
		}
		rows = append(rows, []any{msg.ID, msg.ConversationID, string(msg.Role), msg.Content, sections, msg.Position, msg.CreatedAt})
	}

	_, err := s.executor(ctx).CopyFrom(ctx,
		pgx.Identifier{s.tables.Messages},
		messageCopyColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return translate(err, "insert messages into %s", conversationID)
	}
	return nil
}

// GetMaxPosition returns the highest position, or -1 for an empty conversation.
func (s *Store) GetMaxPosition(ctx context.Context, conversationID string) (int, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(position), -1) FROM %s WHERE conversation_id = $1`, s.tables.Messages)

	var max int
	if err := s.executor(ctx).QueryRow(ctx, query, conversationID).Scan(&max); err != nil {
		return 0, translate(err, "max position for %s", conversationID)
	}
	return max, nil
}

// InsertMessage inserts one message. The unique (conversation_id, position)
// constraint turns a lost race into store.ErrConflict.
func (s *Store) InsertMessage(ctx context.Context, msg *model.Message) error {
	sections, err := encodeSections(msg.Sections)
	if err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, role, content, sections, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.tables.Messages)

	_, err = s.executor(ctx).Exec(ctx, query,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, sections, msg.Position, msg.CreatedAt)
	if err != nil {
		if IsDuplicateError(err) {
			return fmt.Errorf("position %d in conversation %s: %w", msg.Position, msg.ConversationID, store.ErrConflict)
		}
		return translate(err, "insert message into %s", msg.ConversationID)
	}
	return nil
}

// encodeSections returns nil for no sections so the column stays NULL.
func encodeSections(sections []model.Section) ([]byte, error) {
	if len(sections) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("encode sections: %w", err)
	}
	return b, nil
}

func decodeSections(raw []byte) ([]model.Section, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var sections []model.Section
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return sections, nil
}
