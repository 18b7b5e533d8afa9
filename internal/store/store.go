// Package store defines the persistence contract for conversations, messages and memberships.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/advisor-platform/internal/model"
)

// Sentinel errors returned by every store implementation. Use with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// ConversationStore persists conversations and their ordered messages.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	UpdateConversation(ctx context.Context, conv *model.Conversation) error
	// DeleteConversation removes the conversation and all of its messages.
	DeleteConversation(ctx context.Context, id string) error
	// ListConversations returns the user's own conversations plus the shared
	// conversations of the organization, most recently updated first.
	ListConversations(ctx context.Context, organizationID, userID string) ([]model.Conversation, error)

	// LockConversation blocks concurrent position allocation for the conversation
	// until the surrounding transaction ends. Returns ErrNotFound when missing.
	LockConversation(ctx context.Context, id string) error

	// ListMessages returns messages ordered by position ascending and the total
	// count. A limit <= 0 returns every message from offset on.
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, int, error)
	// InsertMessages bulk-inserts messages keeping their positions. All or nothing.
	InsertMessages(ctx context.Context, conversationID string, msgs []model.Message) error
	// GetMaxPosition returns the highest position in the conversation, -1 when empty.
	GetMaxPosition(ctx context.Context, conversationID string) (int, error)
	// InsertMessage inserts one message. Returns ErrConflict if the position is taken.
	InsertMessage(ctx context.Context, msg *model.Message) error
}

// MembershipStore looks up organization memberships.
type MembershipStore interface {
	GetMembership(ctx context.Context, organizationID, userID string) (*model.Membership, error)
}

// TxFn is a function that runs within a transaction.
type TxFn func(ctx context.Context) error

// TransactionManager runs a function inside a transaction. Store calls made
// with the context passed to fn participate in that transaction.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}

// Store is the full set of capabilities a backing driver provides.
type Store interface {
	ConversationStore
	MembershipStore
	TransactionManager
	Ping(ctx context.Context) error
	Close()
}
