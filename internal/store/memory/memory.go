// Package memory provides an in-process store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/store"
)

// Store keeps conversations, messages and memberships in maps.
// Values are copied on the way in and out, so callers never share memory with the store.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message // by conversation, sorted by position
	memberships   map[membershipKey]model.Membership

	// txMu serializes transactions. Reads outside a transaction hold it
	// shared, so they never observe uncommitted writes.
	txMu sync.RWMutex
}

type membershipKey struct {
	organizationID string
	userID         string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		memberships:   make(map[membershipKey]model.Membership),
	}
}

var _ store.Store = (*Store)(nil)

type txKey struct{}

// tx collects undo actions for the writes made inside ExecTx.
type tx struct {
	undo []func()
}

// ExecTx runs fn as a transaction. If fn fails, every write it made through
// the store is reverted. Nested calls join the outer transaction.
func (s *Store) ExecTx(ctx context.Context, fn store.TxFn) error {
	if _, ok := ctx.Value(txKey{}).(*tx); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// readCommitted blocks until no other caller's transaction is open and
// returns the matching release. Reads made inside a transaction see its own
// writes and do not wait.
func (s *Store) readCommitted(ctx context.Context) func() {
	if _, ok := ctx.Value(txKey{}).(*tx); ok {
		return func() {}
	}
	s.txMu.RLock()
	return s.txMu.RUnlock
}

// record registers an undo action. Callers must hold s.mu.
func record(ctx context.Context, undo func()) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		t.undo = append(t.undo, undo)
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// PutMembership adds or replaces a membership.
func (s *Store) PutMembership(m model.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey{m.OrganizationID, m.UserID}] = m
}

// GetMembership returns the user's membership in the organization.
func (s *Store) GetMembership(ctx context.Context, organizationID, userID string) (*model.Membership, error) {
	defer s.readCommitted(ctx)()

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[membershipKey{organizationID, userID}]
	if !ok {
		return nil, fmt.Errorf("membership %s/%s: %w", organizationID, userID, store.ErrNotFound)
	}
	return &m, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	defer s.readCommitted(ctx)()

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return conv.Clone(), nil
}

// CreateConversation stores a new conversation. The ID must be set by the caller.
func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		return fmt.Errorf("create conversation: missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return fmt.Errorf("conversation %s: %w", conv.ID, store.ErrConflict)
	}
	s.conversations[conv.ID] = conv.Clone()

	id := conv.ID
	record(ctx, func() {
		delete(s.conversations, id)
		delete(s.messages, id)
	})
	return nil
}

// UpdateConversation updates the mutable fields: title, sharing and updated_at.
func (s *Store) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.conversations[conv.ID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conv.ID, store.ErrNotFound)
	}
	previous := existing.Clone()

	existing.Title = conv.Title
	existing.IsShared = conv.IsShared
	existing.UpdatedAt = conv.UpdatedAt

	record(ctx, func() {
		s.conversations[previous.ID] = previous
	})
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	msgs, hadMessages := s.messages[id]

	delete(s.conversations, id)
	delete(s.messages, id)

	record(ctx, func() {
		s.conversations[id] = conv
		if hadMessages {
			s.messages[id] = msgs
		}
	})
	return nil
}

// ListConversations returns the user's own and the organization's shared conversations.
func (s *Store) ListConversations(ctx context.Context, organizationID, userID string) ([]model.Conversation, error) {
	defer s.readCommitted(ctx)()

	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := []model.Conversation{}
	for _, conv := range s.conversations {
		if conv.OrganizationID != organizationID {
			continue
		}
		if conv.UserID == userID || conv.IsShared {
			convs = append(convs, *conv.Clone())
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

// LockConversation checks the conversation exists. Position allocation is
// already serialized by ExecTx.
func (s *Store) LockConversation(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListMessages returns a page of messages ordered by position.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, int, error) {
	defer s.readCommitted(ctx)()

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	total := len(all)

	start := offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if limit > 0 && start+limit < total {
		end = start + limit
	}

	out := make([]model.Message, 0, end-start)
	for _, msg := range all[start:end] {
		out = append(out, msg.Clone())
	}
	return out, total, nil
}

// InsertMessages inserts all messages or none of them.
func (s *Store) InsertMessages(ctx context.Context, conversationID string, msgs []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
	}

	taken := make(map[int]bool, len(s.messages[conversationID])+len(msgs))
	for _, existing := range s.messages[conversationID] {
		taken[existing.Position] = true
	}
	for _, msg := range msgs {
		if msg.ConversationID != conversationID {
			return fmt.Errorf("message %s belongs to conversation %s, not %s", msg.ID, msg.ConversationID, conversationID)
		}
		if taken[msg.Position] {
			return fmt.Errorf("position %d in conversation %s: %w", msg.Position, conversationID, store.ErrConflict)
		}
		taken[msg.Position] = true
	}

	for _, msg := range msgs {
		s.insertSorted(msg.Clone())
	}

	positions := make([]int, len(msgs))
	for i, msg := range msgs {
		positions[i] = msg.Position
	}
	record(ctx, func() {
		s.removePositions(conversationID, positions)
	})
	return nil
}

// GetMaxPosition returns the highest position, or -1 when the conversation has no messages.
func (s *Store) GetMaxPosition(ctx context.Context, conversationID string) (int, error) {
	defer s.readCommitted(ctx)()

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	if len(msgs) == 0 {
		return -1, nil
	}
	return msgs[len(msgs)-1].Position, nil
}

// InsertMessage inserts a single message at its position.
func (s *Store) InsertMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, store.ErrNotFound)
	}
	for _, existing := range s.messages[msg.ConversationID] {
		if existing.Position == msg.Position {
			return fmt.Errorf("position %d in conversation %s: %w", msg.Position, msg.ConversationID, store.ErrConflict)
		}
	}

	s.insertSorted(msg.Clone())

	conversationID, position := msg.ConversationID, msg.Position
	record(ctx, func() {
		s.removePositions(conversationID, []int{position})
	})
	return nil
}

// insertSorted keeps s.messages ordered by position. Callers must hold s.mu.
func (s *Store) insertSorted(msg model.Message) {
	msgs := s.messages[msg.ConversationID]
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].Position > msg.Position })
	msgs = append(msgs, model.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	s.messages[msg.ConversationID] = msgs
}

// removePositions drops messages at the given positions. Callers must hold s.mu.
func (s *Store) removePositions(conversationID string, positions []int) {
	drop := make(map[int]bool, len(positions))
	for _, p := range positions {
		drop[p] = true
	}
	kept := s.messages[conversationID][:0]
	for _, msg := range s.messages[conversationID] {
		if !drop[msg.Position] {
			kept = append(kept, msg)
		}
	}
	s.messages[conversationID] = kept
}
