package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/advisor-platform/internal/access"
	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/store"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
	"github.com/capitalize-ai/advisor-platform/pkg/metrics"
)

// MessageService handles message operations.
type MessageService struct {
	conversations store.ConversationStore
	memberships   store.MembershipStore
	tx            store.TransactionManager
	events        *emitter
	logger        *logger.Logger
}

// NewMessageService creates a new message service. When tx is nil, position
// allocation and insert run without a surrounding transaction.
func NewMessageService(
	conversations store.ConversationStore,
	memberships store.MembershipStore,
	tx store.TransactionManager,
	publisher EventPublisher,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		conversations: conversations,
		memberships:   memberships,
		tx:            tx,
		events:        newEmitter(publisher, log),
		logger:        log,
	}
}

// Append adds a message at the next position of the conversation. Only the
// owner may append. Empty content is stored as "" when sections carry the payload.
func (s *MessageService) Append(ctx context.Context, conversationID, requesterID string, req *model.AppendMessageRequest) (*model.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Append", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("message.role", string(req.Role)),
	))
	defer span.End()

	msg, err := s.append(ctx, conversationID, requesterID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}

	span.SetAttributes(attribute.Int("message.position", msg.Position))
	return msg, nil
}

func (s *MessageService) append(ctx context.Context, conversationID, requesterID string, req *model.AppendMessageRequest) (*model.Message, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}

	conv, err := loadConversation(ctx, s.conversations, conversationID, ErrConversationNotFound)
	if err != nil {
		return nil, err
	}
	if d := access.AuthorizeOwner(requesterID, conv); !d.Allowed() {
		return nil, denied(d)
	}
	if err := validateAppend(req); err != nil {
		return nil, invalid(err)
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           req.Role,
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if len(req.Sections) > 0 {
		msg.Sections = append([]model.Section(nil), req.Sections...)
	}

	err = runTx(ctx, s.tx, func(txCtx context.Context) error {
		if err := s.conversations.LockConversation(txCtx, conv.ID); err != nil {
			return err
		}
		last, err := s.conversations.GetMaxPosition(txCtx, conv.ID)
		if err != nil {
			return err
		}
		msg.Position = last + 1
		return s.conversations.InsertMessage(txCtx, msg)
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrConversationNotFound
		case errors.Is(err, store.ErrConflict):
			metrics.AppendConflictsTotal.Inc()
		}
		s.logger.Error("failed to append message",
			zap.String("conversation_id", conv.ID),
			zap.String("role", string(req.Role)),
			zap.Int("content_length", len(req.Content)),
			zap.Int("sections", len(req.Sections)),
			zap.Error(err),
		)
		return nil, wrap(ErrAppendFailed, err)
	}

	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	s.events.emit(ctx, conv, model.EventTypeMessageAppended, requesterID, "", map[string]any{
		"message_id": msg.ID,
		"position":   msg.Position,
		"role":       string(msg.Role),
	})

	return msg, nil
}

// List returns messages ordered by position. A limit <= 0 returns every
// message and omits pagination.
func (s *MessageService) List(ctx context.Context, conversationID, requesterID string, limit, offset int) (*model.ListMessagesResponse, error) {
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

	return &model.ListMessagesResponse{
		Messages:   msgs,
		Pagination: paginate(limit, offset, len(msgs), total),
	}, nil
}

// runTx runs fn inside tx, or directly when tx is nil.
func runTx(ctx context.Context, tx store.TransactionManager, fn store.TxFn) error {
	if tx == nil {
		return fn(ctx)
	}
	return tx.ExecTx(ctx, fn)
}
