package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known message role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Section is one named part of a structured advisor reply.
type Section struct {
	Name    string `json:"section_name"`
	Content string `json:"content"`
}

// Message represents a conversation message.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	// Content
	Role     Role      `json:"role"`
	Content  string    `json:"content"`
	Sections []Section `json:"sections,omitempty"`

	// Zero-based, unique per conversation.
	Position int `json:"position"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy of m whose sections are not shared with m.
func (m Message) Clone() Message {
	if m.Sections != nil {
		sections := make([]Section, len(m.Sections))
		copy(sections, m.Sections)
		m.Sections = sections
	}
	return m
}

// AppendMessageRequest is the request to append a message to a conversation.
type AppendMessageRequest struct {
	Role     Role      `json:"role"`
	Content  string    `json:"content"`
	Sections []Section `json:"sections,omitempty"`
}

// AppendMessageResponse is the response after appending a message.
type AppendMessageResponse struct {
	Message *Message `json:"message"`
}

// Pagination describes a page of messages.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages   []Message   `json:"messages"`
	Pagination *Pagination `json:"pagination,omitempty"`
}
