package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

func newConversationService(s *faultyStore, pub EventPublisher) *ConversationService {
	return NewConversationService(s, s, pub, logger.NewNop())
}

func validCreate() *model.CreateConversationRequest {
	return &model.CreateConversationRequest{
		OrganizationID: orgID,
		AdvisorModeID:  modeID,
		Title:          "Hiring plan",
	}
}

func TestCreate_DefaultsToPrivate(t *testing.T) {
	s := newFixture(t)
	pub := &recordingPublisher{}
	svc := newConversationService(s, pub)

	conv, err := svc.Create(context.Background(), bob, validCreate())
	require.NoError(t, err)
	assert.Equal(t, bob, conv.UserID)
	assert.Equal(t, orgID, conv.OrganizationID)
	assert.False(t, conv.IsShared)
	assert.Nil(t, conv.ForkedFromConversationID)
	assert.Len(t, pub.ofType(model.EventTypeCreated), 1)

	stored, err := s.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hiring plan", stored.Title)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		mutate    func(*model.CreateConversationRequest)
		want      error
	}{
		{"non-member", carol, nil, ErrNotAMember},
		{"member of another organization", oscar, nil, ErrNotAMember},
		{"viewer", victor, nil, ErrInsufficientRole},
		{"anonymous", "", nil, ErrUnauthorized},
		{"missing title", bob, func(r *model.CreateConversationRequest) { r.Title = "" }, ErrValidation},
		{"missing advisor mode", bob, func(r *model.CreateConversationRequest) { r.AdvisorModeID = "" }, ErrValidation},
		{"malformed organization", bob, func(r *model.CreateConversationRequest) { r.OrganizationID = "acme" }, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFixture(t)
			svc := newConversationService(s, nil)
			req := validCreate()
			if tt.mutate != nil {
				tt.mutate(req)
			}

			conv, err := svc.Create(context.Background(), tt.requester, req)
			assert.Nil(t, conv)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreate_StorageFailure(t *testing.T) {
	s := newFixture(t)
	s.failCreate = errors.New("disk full")
	svc := newConversationService(s, nil)

	_, err := svc.Create(context.Background(), bob, validCreate())
	assert.ErrorIs(t, err, ErrCreateFailed)
}

func TestListConversations(t *testing.T) {
	s := newFixture(t)
	svc := newConversationService(s, nil)
	ctx := context.Background()

	own, err := svc.Create(ctx, bob, validCreate())
	require.NoError(t, err)

	resp, err := svc.List(ctx, orgID, bob)
	require.NoError(t, err)
	ids := make([]string, 0, len(resp.Conversations))
	for _, c := range resp.Conversations {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{own.ID, sourceID}, ids)

	_, err = svc.List(ctx, orgID, carol)
	assert.ErrorIs(t, err, ErrNotAMember)

	_, err = svc.List(ctx, "", bob)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetConversation(t *testing.T) {
	s := newFixture(t)
	svc := newConversationService(s, nil)
	ctx := context.Background()

	detail, err := svc.Get(ctx, sourceID, bob, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, sourceID, detail.Conversation.ID)
	assert.Len(t, detail.Messages, 2)
	assert.Nil(t, detail.Pagination)

	paged, err := svc.Get(ctx, sourceID, alice, 1, 1)
	require.NoError(t, err)
	require.Len(t, paged.Messages, 1)
	assert.Equal(t, 1, paged.Messages[0].Position)
	assert.False(t, paged.Pagination.HasMore)

	private, err := svc.Get(ctx, privateID, alice, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, private.Messages)

	_, err = svc.Get(ctx, privateID, bob, 0, 0)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.Get(ctx, sourceID, oscar, 0, 0)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.Get(ctx, "0191f2a0-0000-7000-8000-00000000dead", alice, 0, 0)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestUpdateConversation(t *testing.T) {
	s := newFixture(t)
	pub := &recordingPublisher{}
	svc := newConversationService(s, pub)
	ctx := context.Background()

	shared := true
	conv, err := svc.Update(ctx, privateID, alice, &model.UpdateConversationRequest{IsShared: &shared})
	require.NoError(t, err)
	assert.True(t, conv.IsShared)
	assert.Equal(t, "Private notes", conv.Title)
	assert.Equal(t, true, pub.ofType(model.EventTypeUpdated)[0].Metadata["is_shared"])

	title := "Renamed"
	_, err = svc.Update(ctx, sourceID, bob, &model.UpdateConversationRequest{Title: &title})
	assert.ErrorIs(t, err, ErrNotOwner)

	empty := ""
	_, err = svc.Update(ctx, sourceID, alice, &model.UpdateConversationRequest{Title: &empty})
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := s.GetConversation(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, "Pricing strategy", stored.Title)
}

func TestDeleteConversation(t *testing.T) {
	s := newFixture(t)
	svc := newConversationService(s, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Delete(ctx, sourceID, bob), ErrNotOwner)
	require.NoError(t, svc.Delete(ctx, sourceID, alice))
	assert.ErrorIs(t, svc.Delete(ctx, sourceID, alice), ErrConversationNotFound)

	_, total, err := s.ListMessages(ctx, sourceID, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}
