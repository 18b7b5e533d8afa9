package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/store"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
	"github.com/capitalize-ai/advisor-platform/pkg/metrics"
)

const publishTimeout = 2 * time.Second

// EventPublisher publishes conversation lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}

// EventReader replays a conversation's events after a sequence number.
type EventReader interface {
	GetEvents(ctx context.Context, organizationID, conversationID string, afterSequence uint64, limit int) ([]model.ConversationEvent, uint64, bool, error)
}

// NopPublisher drops every event. Used when NATS is not configured.
type NopPublisher struct{}

// PublishEvent implements EventPublisher.
func (NopPublisher) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	return 0, nil
}

// emitter publishes events best-effort: failures are logged and counted but
// never fail the operation that produced them.
type emitter struct {
	publisher EventPublisher
	logger    *logger.Logger
}

func newEmitter(publisher EventPublisher, log *logger.Logger) *emitter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &emitter{publisher: publisher, logger: log}
}

func (e *emitter) emit(ctx context.Context, conv *model.Conversation, eventType model.EventType, userID, reason string, metadata map[string]any) {
	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		OrganizationID: conv.OrganizationID,
		UserID:         userID,
		Type:           eventType,
		Reason:         reason,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	_, err := e.publisher.PublishEvent(pubCtx, event)
	metrics.RecordEvent(string(eventType), err)
	if err != nil {
		e.logger.Warn("failed to publish conversation event",
			zap.String("conversation_id", conv.ID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}

// EventService exposes the per-conversation event log.
type EventService struct {
	conversations store.ConversationStore
	memberships   store.MembershipStore
	reader        EventReader
	logger        *logger.Logger
}

// NewEventService creates an event service. reader may be nil when NATS is disabled.
func NewEventService(conversations store.ConversationStore, memberships store.MembershipStore, reader EventReader, log *logger.Logger) *EventService {
	return &EventService{
		conversations: conversations,
		memberships:   memberships,
		reader:        reader,
		logger:        log,
	}
}

// List returns up to limit events recorded after afterSequence.
func (s *EventService) List(ctx context.Context, conversationID, requesterID string, afterSequence uint64, limit int) (*model.EventPage, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}
	if s.reader == nil {
		return nil, withMessage(ErrUnavailable, "Event log is not enabled", nil)
	}

	conv, err := authorizeRead(ctx, s.conversations, s.memberships, conversationID, requesterID)
	if err != nil {
		return nil, err
	}

	events, last, hasMore, err := s.reader.GetEvents(ctx, conv.OrganizationID, conv.ID, afterSequence, limit)
	if err != nil {
		s.logger.Error("failed to read conversation events", zap.String("conversation_id", conv.ID), zap.Error(err))
		return nil, wrap(ErrUnavailable, err)
	}

	return &model.EventPage{
		Events:       events,
		LastSequence: last,
		HasMore:      hasMore,
	}, nil
}
