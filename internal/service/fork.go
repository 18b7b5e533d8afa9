package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
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

var tracer = otel.Tracer("github.com/capitalize-ai/advisor-platform/internal/service")

// ForkAtomicity selects how a fork avoids leaving a partial copy behind.
type ForkAtomicity string

const (
	// ForkTransaction runs create and copy in one store transaction.
	ForkTransaction ForkAtomicity = "transaction"
	// ForkCompensate deletes the new conversation when copying fails.
	ForkCompensate ForkAtomicity = "compensate"
)

const forkCreateFailedMessage = "Failed to create forked conversation. Please try again."

// DefaultCompensationTimeout bounds the compensating delete.
const DefaultCompensationTimeout = 5 * time.Second

// ForkService duplicates a shared conversation into a private copy owned by
// the requester.
type ForkService struct {
	conversations       store.ConversationStore
	memberships         store.MembershipStore
	tx                  store.TransactionManager
	events              *emitter
	logger              *logger.Logger
	compensationTimeout time.Duration
}

// NewForkService creates a fork service. With a nil tx every fork uses the
// compensating delete; otherwise create and copy share one transaction.
func NewForkService(
	conversations store.ConversationStore,
	memberships store.MembershipStore,
	tx store.TransactionManager,
	publisher EventPublisher,
	log *logger.Logger,
	compensationTimeout time.Duration,
) *ForkService {
	if compensationTimeout <= 0 {
		compensationTimeout = DefaultCompensationTimeout
	}
	return &ForkService{
		conversations:       conversations,
		memberships:         memberships,
		tx:                  tx,
		events:              newEmitter(publisher, log),
		logger:              log,
		compensationTimeout: compensationTimeout,
	}
}

// Fork copies sourceID and all of its messages into a new conversation owned
// by requesterID. On failure no partial copy remains, except when the
// compensating delete itself fails; that case is logged and counted.
func (s *ForkService) Fork(ctx context.Context, sourceID, requesterID string) (*model.ForkResult, error) {
	ctx, span := tracer.Start(ctx, "ForkService.Fork", trace.WithAttributes(
		attribute.String("conversation.source_id", sourceID),
		attribute.Bool("fork.transactional", s.tx != nil),
	))
	defer span.End()

	start := time.Now()
	result, err := s.fork(ctx, sourceID, requesterID)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		kind := KindOf(err)
		outcome := metrics.ForkFailed
		switch kind {
		case KindAlreadyOwned, KindNotShared, KindNotAMember, KindSourceNotFound, KindUnauthorized:
			outcome = metrics.ForkDenied
		}
		metrics.RecordFork(outcome, string(kind), elapsed, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		return nil, err
	}

	metrics.RecordFork(metrics.ForkSucceeded, "", elapsed, result.MessageCount)
	span.SetAttributes(
		attribute.String("conversation.fork_id", result.Conversation.ID),
		attribute.Int("fork.message_count", result.MessageCount),
	)
	return result, nil
}

func (s *ForkService) fork(ctx context.Context, sourceID, requesterID string) (*model.ForkResult, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}

	source, err := loadConversation(ctx, s.conversations, sourceID, ErrSourceNotFound)
	if err != nil {
		return nil, err
	}

	var memberships []model.Membership
	membership, err := loadMembership(ctx, s.memberships, source.OrganizationID, requesterID)
	if err != nil {
		return nil, err
	}
	if membership != nil {
		memberships = append(memberships, *membership)
	}

	if d := access.AuthorizeFork(requesterID, source, memberships); !d.Allowed() {
		s.logger.Debug("fork rejected",
			zap.String("source_id", source.ID),
			zap.String("user_id", requesterID),
			zap.Stringer("decision", d),
		)
		return nil, denied(d)
	}

	now := time.Now().UTC()
	sourceRef := source.ID
	fork := &model.Conversation{
		ID:                       uuid.Must(uuid.NewV7()).String(),
		UserID:                   requesterID,
		OrganizationID:           source.OrganizationID,
		AdvisorModeID:            source.AdvisorModeID,
		Title:                    source.Title + model.ForkTitleSuffix,
		IsShared:                 false,
		ForkedFromConversationID: &sourceRef,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	var copied int
	if s.tx != nil {
		copiedAll := false
		err = s.tx.ExecTx(ctx, func(txCtx context.Context) error {
			n, err := s.copyInto(txCtx, source.ID, fork)
			copied = n
			copiedAll = err == nil
			return err
		})
		var svcErr *Error
		if err != nil && !errors.As(err, &svcErr) {
			if copiedAll {
				// Commit failed after every statement succeeded.
				err = wrap(ErrCopyFailed, err)
			} else {
				// The transaction never started, so nothing was created.
				err = withMessage(ErrCreateFailed, forkCreateFailedMessage, err)
			}
		}
	} else {
		copied, err = s.copyInto(ctx, source.ID, fork)
		if err != nil && errors.Is(err, ErrCopyFailed) {
			s.compensate(ctx, fork, requesterID, err)
		}
	}
	if err != nil {
		s.logger.Error("fork failed",
			zap.String("source_id", source.ID),
			zap.String("fork_id", fork.ID),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("conversation forked",
		zap.String("source_id", source.ID),
		zap.String("fork_id", fork.ID),
		zap.String("organization_id", fork.OrganizationID),
		zap.Int("message_count", copied),
	)
	s.events.emit(ctx, fork, model.EventTypeForked, requesterID, "", map[string]any{
		"source_conversation_id": source.ID,
		"message_count":          copied,
	})

	return &model.ForkResult{Conversation: fork, MessageCount: copied}, nil
}

// copyInto creates fork and copies every message of sourceID into it, keeping
// role, content, sections and position.
func (s *ForkService) copyInto(ctx context.Context, sourceID string, fork *model.Conversation) (int, error) {
	if err := s.conversations.CreateConversation(ctx, fork); err != nil {
		return 0, withMessage(ErrCreateFailed, forkCreateFailedMessage, err)
	}

	msgs, _, err := s.conversations.ListMessages(ctx, sourceID, 0, 0)
	if err != nil {
		return 0, wrap(ErrCopyFailed, fmt.Errorf("list source messages: %w", err))
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	copies := make([]model.Message, len(msgs))
	for i, msg := range msgs {
		c := msg.Clone()
		copies[i] = model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: fork.ID,
			Role:           c.Role,
			Content:        c.Content,
			Sections:       c.Sections,
			Position:       c.Position,
			CreatedAt:      fork.CreatedAt,
		}
	}

	if err := s.conversations.InsertMessages(ctx, fork.ID, copies); err != nil {
		return 0, wrap(ErrCopyFailed, fmt.Errorf("insert copied messages: %w", err))
	}
	return len(copies), nil
}

// compensate deletes a partially copied fork. It runs on a context detached
// from the request so a client disconnect cannot skip the cleanup.
func (s *ForkService) compensate(ctx context.Context, fork *model.Conversation, requesterID string, copyErr error) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	err := s.conversations.DeleteConversation(cleanupCtx, fork.ID)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		metrics.RecordCompensation(true)
		s.logger.Warn("fork rolled back by compensating delete",
			zap.String("fork_id", fork.ID),
			zap.NamedError("copy_error", copyErr),
		)
		return
	}

	metrics.RecordCompensation(false)
	s.logger.Error("fork compensation failed, orphaned conversation left behind",
		zap.String("fork_id", fork.ID),
		zap.Stringp("source_id", fork.ForkedFromConversationID),
		zap.String("organization_id", fork.OrganizationID),
		zap.NamedError("copy_error", copyErr),
		zap.NamedError("compensation_error", err),
	)
	s.events.emit(ctx, fork, model.EventTypeForkOrphaned, requesterID, err.Error(), map[string]any{
		"copy_error": copyErr.Error(),
	})
}
