package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/store"
	"github.com/capitalize-ai/advisor-platform/internal/store/memory"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

const (
	orgID      = "0191f2a0-0000-7000-8000-000000000001"
	otherOrgID = "0191f2a0-0000-7000-8000-000000000002"
	modeID     = "0191f2a0-0000-7000-8000-0000000000aa"
	sourceID   = "0191f2a0-0000-7000-8000-0000000000c1"
	privateID  = "0191f2a0-0000-7000-8000-0000000000c2"

	alice  = "alice"
	bob    = "bob"
	carol  = "carol"
	victor = "victor"
	oscar  = "oscar"
)

// faultyStore wraps the memory store and fails selected operations.
type faultyStore struct {
	*memory.Store

	mu             sync.Mutex
	failCreate     error
	failList       error
	failInsert     error
	failInsertOne  error
	failDelete     error
	cancelOnInsert context.CancelFunc
	deleteCtxErr   error
	deleteCalls    int
}

func (f *faultyStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	return f.Store.CreateConversation(ctx, conv)
}

func (f *faultyStore) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, int, error) {
	if f.failList != nil {
		return nil, 0, f.failList
	}
	return f.Store.ListMessages(ctx, conversationID, limit, offset)
}

func (f *faultyStore) InsertMessages(ctx context.Context, conversationID string, msgs []model.Message) error {
	if f.cancelOnInsert != nil {
		f.cancelOnInsert()
	}
	if f.failInsert != nil {
		return f.failInsert
	}
	return f.Store.InsertMessages(ctx, conversationID, msgs)
}

func (f *faultyStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	if f.failInsertOne != nil {
		return f.failInsertOne
	}
	return f.Store.InsertMessage(ctx, msg)
}

func (f *faultyStore) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deleteCalls++
	f.deleteCtxErr = ctx.Err()
	f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.Store.DeleteConversation(ctx, id)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ConversationEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, *event)
	return uint64(len(p.events)), nil
}

func (p *recordingPublisher) ofType(t model.EventType) []model.ConversationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.ConversationEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// newFixture builds the shared scenario: Alice owns a shared conversation
// with two messages and a private one, Bob and Victor are members of the
// same organization, Oscar belongs to another organization and Carol to none.
func newFixture(t *testing.T) *faultyStore {
	t.Helper()
	ctx := context.Background()
	s := &faultyStore{Store: memory.New()}

	s.PutMembership(model.Membership{OrganizationID: orgID, UserID: alice, Role: model.OrgRoleOwner})
	s.PutMembership(model.Membership{OrganizationID: orgID, UserID: bob, Role: model.OrgRoleMember})
	s.PutMembership(model.Membership{OrganizationID: orgID, UserID: victor, Role: model.OrgRoleViewer})
	s.PutMembership(model.Membership{OrganizationID: otherOrgID, UserID: oscar, Role: model.OrgRoleAdmin})

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Store.CreateConversation(ctx, &model.Conversation{
		ID:             sourceID,
		UserID:         alice,
		OrganizationID: orgID,
		AdvisorModeID:  modeID,
		Title:          "Pricing strategy",
		IsShared:       true,
		CreatedAt:      created,
		UpdatedAt:      created,
	}))
	require.NoError(t, s.Store.CreateConversation(ctx, &model.Conversation{
		ID:             privateID,
		UserID:         alice,
		OrganizationID: orgID,
		AdvisorModeID:  modeID,
		Title:          "Private notes",
		CreatedAt:      created,
		UpdatedAt:      created,
	}))
	require.NoError(t, s.Store.InsertMessages(ctx, sourceID, []model.Message{
		{ID: "m0", ConversationID: sourceID, Role: model.RoleUser, Content: "Q1", Position: 0, CreatedAt: created},
		{ID: "m1", ConversationID: sourceID, Role: model.RoleAssistant, Position: 1, CreatedAt: created, Sections: []model.Section{
			{Name: "Summary", Content: "Raise prices 5%"},
			{Name: "Risks", Content: "Churn"},
		}},
	}))
	return s
}

func newForkService(s *faultyStore, transactional bool, pub EventPublisher) *ForkService {
	var tx store.TransactionManager
	if transactional {
		tx = s
	}
	return NewForkService(s, s, tx, pub, logger.NewNop(), time.Second)
}

// strategies runs fn once per fork atomicity strategy.
func strategies(t *testing.T, fn func(t *testing.T, transactional bool)) {
	t.Run("transaction", func(t *testing.T) { fn(t, true) })
	t.Run("compensate", func(t *testing.T) { fn(t, false) })
}

func ownedBy(t *testing.T, s *faultyStore, userID string) []model.Conversation {
	t.Helper()
	convs, err := s.Store.ListConversations(context.Background(), orgID, userID)
	require.NoError(t, err)
	var out []model.Conversation
	for _, c := range convs {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}
