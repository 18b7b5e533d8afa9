package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
	"github.com/capitalize-ai/advisor-platform/pkg/metrics"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"
)

// StreamManager publishes and replays conversation events on JetStream.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the conversations stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(organizationID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, organizationID, conversationID, eventType)
}

// ConversationFilter returns the filter subject for all events of a conversation.
func ConversationFilter(organizationID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.event.>", SubjectPrefix, organizationID, conversationID)
}

// PublishEvent publishes an event to JetStream and returns its stream sequence.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	subject := EventSubject(event.OrganizationID, event.ConversationID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// GetEvents replays a conversation's events starting after a stream sequence.
// It returns the events, the last sequence seen and whether more may follow.
func (m *StreamManager) GetEvents(ctx context.Context, organizationID, conversationID string, afterSequence uint64, limit int) ([]model.ConversationEvent, uint64, bool, error) {
	js := m.client.JetStream()

	consumerConfig := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationFilter(organizationID, conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.OrderedConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch events: %w", err)
	}

	events, lastSequence, fetched := collectEvents(ctx, batch.Messages(), afterSequence, m.client.logger)

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return events, lastSequence, fetched == limit, nil
}

// collectEvents decodes a fetched batch. The cursor advances past every
// message, including ones that cannot be decoded, and fetched counts them all.
func collectEvents(ctx context.Context, msgs <-chan jetstream.Msg, afterSequence uint64, log *logger.Logger) ([]model.ConversationEvent, uint64, int) {
	events := []model.ConversationEvent{}
	lastSequence := afterSequence
	fetched := 0

collect:
	for msg := range msgs {
		select {
		case <-ctx.Done():
			break collect
		default:
		}
		fetched++

		var sequence uint64
		if meta, err := msg.Metadata(); err == nil {
			sequence = meta.Sequence.Stream
			lastSequence = sequence
		}

		var event model.ConversationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			log.Warn("skipping undecodable event",
				zap.String("subject", msg.Subject()),
				zap.Uint64("sequence", sequence),
				zap.Error(err),
			)
			continue
		}

		event.Sequence = sequence
		events = append(events, event)
	}

	return events, lastSequence, fetched
}

// RecordStats exports the stream's size to Prometheus.
func (m *StreamManager) RecordStats(ctx context.Context) error {
	stream, err := m.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return fmt.Errorf("failed to get stream: %w", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	metrics.RecordStream(StreamName, info.State.Msgs, info.State.Bytes)
	return nil
}
