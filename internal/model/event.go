package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeCreated         EventType = "created"
	EventTypeUpdated         EventType = "updated"
	EventTypeDeleted         EventType = "deleted"
	EventTypeForked          EventType = "forked"
	EventTypeMessageAppended EventType = "message_appended"
	EventTypeForkOrphaned    EventType = "fork_orphaned"
)

// ConversationEvent represents an event in a conversation.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	OrganizationID string         `json:"organization_id"`
	UserID         string         `json:"user_id,omitempty"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Sequence       uint64         `json:"sequence,omitempty"`
}

// EventPage is a slice of a conversation's event log.
type EventPage struct {
	Events       []ConversationEvent `json:"events"`
	LastSequence uint64              `json:"last_sequence"`
	HasMore      bool                `json:"hasMore"`
}
