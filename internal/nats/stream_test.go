package nats

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

func TestEventSubject(t *testing.T) {
	got := EventSubject("org-1", "conv-1", model.EventTypeForked)
	assert.Equal(t, "conv.org-1.conv-1.event.forked", got)
}

func TestConversationFilter_MatchesEventSubjects(t *testing.T) {
	filter := ConversationFilter("org-1", "conv-1")
	assert.Equal(t, "conv.org-1.conv-1.event.>", filter)

	subject := EventSubject("org-1", "conv-1", model.EventTypeMessageAppended)
	assert.Equal(t, filter[:len(filter)-1], subject[:len(filter)-1])
}

func TestIsConnected_NilClient(t *testing.T) {
	var c *Client
	assert.False(t, c.IsConnected())
	c.Close()
}

// storedMsg is a fetched JetStream message with a fixed stream sequence.
type storedMsg struct {
	jetstream.Msg
	data     []byte
	sequence uint64
}

func (m storedMsg) Data() []byte    { return m.data }
func (m storedMsg) Subject() string { return "conv.org-1.conv-1.event.updated" }
func (m storedMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{Sequence: jetstream.SequencePair{Stream: m.sequence}}, nil
}

func batchOf(t *testing.T, msgs ...storedMsg) <-chan jetstream.Msg {
	t.Helper()
	ch := make(chan jetstream.Msg, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ch
}

func encoded(t *testing.T, eventType model.EventType, sequence uint64) storedMsg {
	t.Helper()
	data, err := json.Marshal(model.ConversationEvent{ConversationID: "conv-1", Type: eventType})
	require.NoError(t, err)
	return storedMsg{data: data, sequence: sequence}
}

func TestCollectEvents(t *testing.T) {
	msgs := batchOf(t,
		encoded(t, model.EventTypeCreated, 4),
		storedMsg{data: []byte("{not json"), sequence: 5},
		encoded(t, model.EventTypeUpdated, 6),
	)

	events, last, fetched := collectEvents(context.Background(), msgs, 3, logger.NewNop())
	require.Len(t, events, 2)
	assert.Equal(t, uint64(4), events[0].Sequence)
	assert.Equal(t, uint64(6), events[1].Sequence)
	assert.Equal(t, uint64(6), last)
	assert.Equal(t, 3, fetched)
}

func TestCollectEvents_UndecodableTailAdvancesCursor(t *testing.T) {
	msgs := batchOf(t,
		storedMsg{data: []byte("garbage"), sequence: 10},
		storedMsg{data: []byte("garbage"), sequence: 11},
	)

	events, last, fetched := collectEvents(context.Background(), msgs, 9, logger.NewNop())
	assert.Empty(t, events)
	assert.Equal(t, uint64(11), last)
	assert.Equal(t, 2, fetched)
}

func TestCollectEvents_EmptyBatchKeepsCursor(t *testing.T) {
	events, last, fetched := collectEvents(context.Background(), batchOf(t), 7, logger.NewNop())
	assert.Empty(t, events)
	assert.Equal(t, uint64(7), last)
	assert.Zero(t, fetched)
}
