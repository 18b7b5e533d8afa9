package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/store"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

func TestFork_SharedConversationIntoPrivateCopy(t *testing.T) {
	strategies(t, func(t *testing.T, transactional bool) {
		s := newFixture(t)
		pub := &recordingPublisher{}
		svc := newForkService(s, transactional, pub)
		ctx := context.Background()

		result, err := svc.Fork(ctx, sourceID, bob)
		require.NoError(t, err)

		fork := result.Conversation
		assert.Equal(t, 2, result.MessageCount)
		assert.NotEqual(t, sourceID, fork.ID)
		assert.Equal(t, bob, fork.UserID)
		assert.Equal(t, orgID, fork.OrganizationID)
		assert.Equal(t, modeID, fork.AdvisorModeID)
		assert.Equal(t, "Pricing strategy (Copy)", fork.Title)
		assert.False(t, fork.IsShared)
		require.NotNil(t, fork.ForkedFromConversationID)
		assert.Equal(t, sourceID, *fork.ForkedFromConversationID)

		stored, err := s.GetConversation(ctx, fork.ID)
		require.NoError(t, err)
		assert.Equal(t, fork, stored)

		source, _, err := s.ListMessages(ctx, sourceID, 0, 0)
		require.NoError(t, err)
		copied, total, err := s.ListMessages(ctx, fork.ID, 0, 0)
		require.NoError(t, err)
		require.Equal(t, 2, total)
		for i := range source {
			assert.NotEqual(t, source[i].ID, copied[i].ID)
			assert.Equal(t, fork.ID, copied[i].ConversationID)
			assert.Equal(t, source[i].Role, copied[i].Role)
			assert.Equal(t, source[i].Content, copied[i].Content)
			assert.Equal(t, source[i].Sections, copied[i].Sections)
			assert.Equal(t, source[i].Position, copied[i].Position)
		}

		// The source is untouched.
		src, err := s.GetConversation(ctx, sourceID)
		require.NoError(t, err)
		assert.Equal(t, alice, src.UserID)
		assert.True(t, src.IsShared)
		assert.Equal(t, "Pricing strategy", src.Title)
		assert.Len(t, source, 2)

		forked := pub.ofType(model.EventTypeForked)
		require.Len(t, forked, 1)
		assert.Equal(t, fork.ID, forked[0].ConversationID)
		assert.Equal(t, sourceID, forked[0].Metadata["source_conversation_id"])
	})
}

func TestFork_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		requester string
		want      error
	}{
		{"owner of shared conversation", sourceID, alice, ErrAlreadyOwned},
		{"owner of private conversation", privateID, alice, ErrAlreadyOwned},
		{"member forking private conversation", privateID, bob, ErrNotShared},
		{"outsider forking private conversation", privateID, carol, ErrNotShared},
		{"user without membership", sourceID, carol, ErrNotAMember},
		{"member of another organization", sourceID, oscar, ErrNotAMember},
		{"missing source", "0191f2a0-0000-7000-8000-00000000dead", bob, ErrSourceNotFound},
		{"anonymous requester", sourceID, "", ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFixture(t)
			svc := newForkService(s, true, nil)

			result, err := svc.Fork(context.Background(), tt.source, tt.requester)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want.(*Error).Kind, KindOf(err))

			// Nothing was created for anyone.
			assert.Empty(t, ownedBy(t, s, bob))
			assert.Empty(t, ownedBy(t, s, carol))
			assert.Len(t, ownedBy(t, s, alice), 2)
		})
	}
}

func TestFork_ViewerMayFork(t *testing.T) {
	s := newFixture(t)
	svc := newForkService(s, true, nil)

	result, err := svc.Fork(context.Background(), sourceID, victor)
	require.NoError(t, err)
	assert.Equal(t, victor, result.Conversation.UserID)
}

func TestFork_EmptyHistory(t *testing.T) {
	strategies(t, func(t *testing.T, transactional bool) {
		s := newFixture(t)
		ctx := context.Background()
		require.NoError(t, s.UpdateConversation(ctx, &model.Conversation{ID: privateID, Title: "Private notes", IsShared: true}))
		svc := newForkService(s, transactional, nil)

		result, err := svc.Fork(ctx, privateID, bob)
		require.NoError(t, err)
		assert.Zero(t, result.MessageCount)

		msgs, total, err := s.ListMessages(ctx, result.Conversation.ID, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
		assert.Zero(t, total)
	})
}

func TestFork_CopyFailureLeavesNoConversation(t *testing.T) {
	failures := map[string]func(s *faultyStore){
		"list fails":   func(s *faultyStore) { s.failList = errors.New("read timeout") },
		"insert fails": func(s *faultyStore) { s.failInsert = errors.New("constraint violation") },
	}

	for name, inject := range failures {
		t.Run(name, func(t *testing.T) {
			strategies(t, func(t *testing.T, transactional bool) {
				s := newFixture(t)
				inject(s)
				svc := newForkService(s, transactional, nil)

				result, err := svc.Fork(context.Background(), sourceID, bob)
				assert.Nil(t, result)
				assert.ErrorIs(t, err, ErrCopyFailed)
				assert.Empty(t, ownedBy(t, s, bob))

				if transactional {
					assert.Zero(t, s.deleteCalls, "rollback needs no compensating delete")
				} else {
					assert.Equal(t, 1, s.deleteCalls)
				}
			})
		})
	}
}

func TestFork_CreateFailureNeedsNoCompensation(t *testing.T) {
	strategies(t, func(t *testing.T, transactional bool) {
		s := newFixture(t)
		s.failCreate = errors.New("disk full")
		svc := newForkService(s, transactional, nil)

		_, err := svc.Fork(context.Background(), sourceID, bob)
		assert.ErrorIs(t, err, ErrCreateFailed)
		assert.Zero(t, s.deleteCalls)
		assert.Empty(t, ownedBy(t, s, bob))
	})
}

func TestFork_CompensationFailureReportsCopyFailure(t *testing.T) {
	s := newFixture(t)
	s.failInsert = errors.New("insert failed")
	s.failDelete = errors.New("delete failed")
	pub := &recordingPublisher{}
	svc := newForkService(s, false, pub)

	_, err := svc.Fork(context.Background(), sourceID, bob)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCopyFailed)
	assert.Contains(t, err.Error(), "insert failed")
	assert.NotContains(t, err.Error(), "delete failed")

	// The orphan is still there and has been reported.
	orphans := ownedBy(t, s, bob)
	require.Len(t, orphans, 1)
	reported := pub.ofType(model.EventTypeForkOrphaned)
	require.Len(t, reported, 1)
	assert.Equal(t, orphans[0].ID, reported[0].ConversationID)
	assert.Equal(t, "delete failed", reported[0].Reason)
	assert.Empty(t, pub.ofType(model.EventTypeForked))
}

func TestFork_CompensationSurvivesRequestCancellation(t *testing.T) {
	s := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.cancelOnInsert = cancel
	s.failInsert = context.Canceled
	svc := newForkService(s, false, nil)

	_, err := svc.Fork(ctx, sourceID, bob)
	assert.ErrorIs(t, err, ErrCopyFailed)
	assert.Equal(t, 1, s.deleteCalls)
	assert.NoError(t, s.deleteCtxErr)
	assert.Empty(t, ownedBy(t, s, bob))
}

func TestFork_CopiesAreIndependent(t *testing.T) {
	s := newFixture(t)
	ctx := context.Background()
	forks := newForkService(s, true, nil)
	convs := NewConversationService(s, s, nil, logger.NewNop())
	msgs := NewMessageService(s, s, s, nil, logger.NewNop())

	result, err := forks.Fork(ctx, sourceID, bob)
	require.NoError(t, err)
	forkID := result.Conversation.ID

	title := "Bob's pricing plan"
	shared := true
	_, err = convs.Update(ctx, forkID, bob, &model.UpdateConversationRequest{Title: &title, IsShared: &shared})
	require.NoError(t, err)
	appended, err := msgs.Append(ctx, forkID, bob, &model.AppendMessageRequest{Role: model.RoleUser, Content: "Q2"})
	require.NoError(t, err)
	assert.Equal(t, 2, appended.Position)

	_, err = msgs.Append(ctx, sourceID, alice, &model.AppendMessageRequest{Role: model.RoleUser, Content: "Follow-up"})
	require.NoError(t, err)

	src, err := s.GetConversation(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, "Pricing strategy", src.Title)
	assert.True(t, src.IsShared)

	srcMsgs, _, err := s.ListMessages(ctx, sourceID, 0, 0)
	require.NoError(t, err)
	forkMsgs, _, err := s.ListMessages(ctx, forkID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Follow-up", srcMsgs[2].Content)
	assert.Equal(t, "Q2", forkMsgs[2].Content)

	// Deleting the source leaves the fork intact.
	require.NoError(t, convs.Delete(ctx, sourceID, alice))
	_, total, err := s.ListMessages(ctx, forkID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestFork_SectionsAreNotShared(t *testing.T) {
	s := newFixture(t)
	ctx := context.Background()
	svc := newForkService(s, true, nil)

	result, err := svc.Fork(ctx, sourceID, bob)
	require.NoError(t, err)

	copied, _, err := s.ListMessages(ctx, result.Conversation.ID, 0, 0)
	require.NoError(t, err)
	copied[1].Sections[0].Content = "mutated"

	source, _, err := s.ListMessages(ctx, sourceID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Raise prices 5%", source[1].Sections[0].Content)
}

func TestFork_EventFailureDoesNotFailFork(t *testing.T) {
	s := newFixture(t)
	svc := newForkService(s, true, &recordingPublisher{err: errors.New("nats down")})

	result, err := svc.Fork(context.Background(), sourceID, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MessageCount)
}

func TestFork_KeepsPositionGaps(t *testing.T) {
	strategies(t, func(t *testing.T, transactional bool) {
		s := newFixture(t)
		ctx := context.Background()
		require.NoError(t, s.Store.InsertMessages(ctx, sourceID, []model.Message{
			{ID: "m5", ConversationID: sourceID, Role: model.RoleUser, Content: "Q3", Position: 5},
		}))
		svc := newForkService(s, transactional, nil)

		result, err := svc.Fork(ctx, sourceID, bob)
		require.NoError(t, err)
		assert.Equal(t, 3, result.MessageCount)

		copied, _, err := s.ListMessages(ctx, result.Conversation.ID, 0, 0)
		require.NoError(t, err)
		positions := make([]int, 0, len(copied))
		for _, m := range copied {
			positions = append(positions, m.Position)
		}
		assert.Equal(t, []int{0, 1, 5}, positions)

		msgs := NewMessageService(s, s, s, nil, logger.NewNop())
		appended, err := msgs.Append(ctx, result.Conversation.ID, bob, &model.AppendMessageRequest{Role: model.RoleUser, Content: "Q4"})
		require.NoError(t, err)
		assert.Equal(t, 6, appended.Position)
	})
}

// brokenTx fails either before running the transaction body or at commit.
type brokenTx struct {
	inner     store.TransactionManager
	beginErr  error
	commitErr error
}

func (b *brokenTx) ExecTx(ctx context.Context, fn store.TxFn) error {
	if b.beginErr != nil {
		return b.beginErr
	}
	if err := b.inner.ExecTx(ctx, fn); err != nil {
		return err
	}
	return b.commitErr
}

func TestFork_TransactionFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		tx   *brokenTx
		want error
	}{
		{"begin fails", &brokenTx{beginErr: errors.New("pool exhausted")}, ErrCreateFailed},
		{"commit fails", &brokenTx{commitErr: errors.New("connection reset")}, ErrCopyFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFixture(t)
			tt.tx.inner = s
			svc := NewForkService(s, s, tt.tx, nil, logger.NewNop(), time.Second)

			result, err := svc.Fork(context.Background(), sourceID, bob)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want.(*Error).Kind, KindOf(err))
		})
	}
}
