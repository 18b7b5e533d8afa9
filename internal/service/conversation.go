// Package service provides business logic for the advisor platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/advisor-platform/internal/access"
	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/store"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
	"github.com/capitalize-ai/advisor-platform/pkg/metrics"
)

// ConversationService handles conversation operations.
type ConversationService struct {
	conversations store.ConversationStore
	memberships   store.MembershipStore
	events        *emitter
	logger        *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(
	conversations store.ConversationStore,
	memberships store.MembershipStore,
	publisher EventPublisher,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		memberships:   memberships,
		events:        newEmitter(publisher, log),
		logger:        log,
	}
}

// Create starts a new private or shared conversation owned by requesterID.
func (s *ConversationService) Create(ctx context.Context, requesterID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}
	if err := validateCreate(req); err != nil {
		return nil, invalid(err)
	}

	membership, err := loadMembership(ctx, s.memberships, req.OrganizationID, requesterID)
	if err != nil {
		return nil, err
	}
	if d := access.AuthorizeCreate(membership); !d.Allowed() {
		return nil, denied(d)
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:             uuid.Must(uuid.NewV7()).String(),
		UserID:         requesterID,
		OrganizationID: req.OrganizationID,
		AdvisorModeID:  req.AdvisorModeID,
		Title:          req.Title,
		IsShared:       req.IsShared,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		s.logger.Error("failed to create conversation",
			zap.String("organization_id", req.OrganizationID),
			zap.Error(err),
		)
		return nil, wrap(ErrCreateFailed, err)
	}

	metrics.ConversationsTotal.WithLabelValues("create").Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("organization_id", conv.OrganizationID),
	)
	s.events.emit(ctx, conv, model.EventTypeCreated, requesterID, "", nil)

	return conv, nil
}

// Get returns a conversation with a page of its messages. A limit <= 0
// returns every message and omits pagination.
func (s *ConversationService) Get(ctx context.Context, conversationID, requesterID string, limit, offset int) (*model.ConversationDetail, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}

	conv, err := authorizeRead(ctx, s.conversations, s.memberships, conversationID, requesterID)
	if err != nil {
		return nil, err
	}

	msgs, total, err := s.conversations.ListMessages(ctx, conv.ID, limit, offset)
	if err != nil {
		return nil, wrap(withMessage(ErrInternal, "Failed to fetch messages", nil), err)
	}

	return &model.ConversationDetail{
		Conversation: conv,
		Messages:     msgs,
		Pagination:   paginate(limit, offset, len(msgs), total),
	}, nil
}

// List returns the requester's own conversations plus the organization's shared ones.
func (s *ConversationService) List(ctx context.Context, organizationID, requesterID string) (*model.ListConversationsResponse, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}
	if organizationID == "" {
		return nil, withMessage(ErrValidation, "organization_id is required", nil)
	}

	membership, err := loadMembership(ctx, s.memberships, organizationID, requesterID)
	if err != nil {
		return nil, err
	}
	if d := access.AuthorizeOrganization(requesterID, organizationID, membership); !d.Allowed() {
		return nil, denied(d)
	}

	convs, err := s.conversations.ListConversations(ctx, organizationID, requesterID)
	if err != nil {
		return nil, wrap(withMessage(ErrInternal, "Failed to fetch conversations", nil), err)
	}

	return &model.ListConversationsResponse{Conversations: convs}, nil
}

// Update changes the title and/or sharing flag. Only the owner may update.
func (s *ConversationService) Update(ctx context.Context, conversationID, requesterID string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}
	if err := validateUpdate(req); err != nil {
		return nil, invalid(err)
	}

	conv, err := loadConversation(ctx, s.conversations, conversationID, ErrConversationNotFound)
	if err != nil {
		return nil, err
	}
	if d := access.AuthorizeOwner(requesterID, conv); !d.Allowed() {
		return nil, denied(d)
	}

	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.IsShared != nil {
		conv.IsShared = *req.IsShared
	}
	conv.UpdatedAt = time.Now().UTC()

	if err := s.conversations.UpdateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, wrap(withMessage(ErrInternal, "Failed to update conversation", nil), err)
	}

	metadata := map[string]any{}
	if req.Title != nil {
		metadata["title"] = conv.Title
	}
	if req.IsShared != nil {
		metadata["is_shared"] = conv.IsShared
	}
	s.events.emit(ctx, conv, model.EventTypeUpdated, requesterID, "", metadata)

	return conv, nil
}

// Delete removes a conversation and its messages. Only the owner may delete.
// Forks of the conversation are independent and are not touched.
func (s *ConversationService) Delete(ctx context.Context, conversationID, requesterID string) error {
	if requesterID == "" {
		return ErrUnauthorized
	}

	conv, err := loadConversation(ctx, s.conversations, conversationID, ErrConversationNotFound)
	if err != nil {
		return err
	}
	if d := access.AuthorizeOwner(requesterID, conv); !d.Allowed() {
		return denied(d)
	}

	if err := s.conversations.DeleteConversation(ctx, conv.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return wrap(withMessage(ErrInternal, "Failed to delete conversation", nil), err)
	}

	s.logger.Info("conversation deleted", zap.String("conversation_id", conv.ID))
	s.events.emit(ctx, conv, model.EventTypeDeleted, requesterID, "", nil)
	return nil
}

// authorizeRead loads the conversation and applies the read rule. Membership
// is only looked up for non-owners.
func authorizeRead(ctx context.Context, conversations store.ConversationStore, memberships store.MembershipStore, conversationID, requesterID string) (*model.Conversation, error) {
	conv, err := loadConversation(ctx, conversations, conversationID, ErrConversationNotFound)
	if err != nil {
		return nil, err
	}
	var membership *model.Membership
	if !conv.IsOwnedBy(requesterID) {
		if membership, err = loadMembership(ctx, memberships, conv.OrganizationID, requesterID); err != nil {
			return nil, err
		}
	}
	if d := access.AuthorizeRead(requesterID, conv, membership); !d.Allowed() {
		return nil, denied(d)
	}
	return conv, nil
}

// loadConversation maps store.ErrNotFound onto notFound.
func loadConversation(ctx context.Context, conversations store.ConversationStore, id string, notFound *Error) (*model.Conversation, error) {
	conv, err := conversations.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound
		}
		return nil, wrap(ErrInternal, fmt.Errorf("load conversation %s: %w", id, err))
	}
	return conv, nil
}

// loadMembership returns nil without error when the user is not a member.
func loadMembership(ctx context.Context, memberships store.MembershipStore, organizationID, userID string) (*model.Membership, error) {
	m, err := memberships.GetMembership(ctx, organizationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, wrap(ErrInternal, fmt.Errorf("load membership: %w", err))
	}
	return m, nil
}

func paginate(limit, offset, returned, total int) *model.Pagination {
	if limit <= 0 {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	return &model.Pagination{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+returned < total,
	}
}
