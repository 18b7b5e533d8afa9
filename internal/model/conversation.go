// Package model defines data structures for the advisor platform.
package model

import (
	"time"
)

// ForkTitleSuffix is appended to the source title when a conversation is forked.
const ForkTitleSuffix = " (Copy)"

// Conversation represents an owned conversation thread inside an organization.
type Conversation struct {
	ID                       string    `json:"id"`
	UserID                   string    `json:"user_id"`
	OrganizationID           string    `json:"organization_id"`
	AdvisorModeID            string    `json:"advisor_mode_id"`
	Title                    string    `json:"title"`
	IsShared                 bool      `json:"is_shared"`
	ForkedFromConversationID *string   `json:"forked_from_conversation_id,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// IsOwnedBy reports whether userID owns the conversation.
func (c *Conversation) IsOwnedBy(userID string) bool {
	return c.UserID == userID
}

// Clone returns a copy that shares no memory with c.
func (c *Conversation) Clone() *Conversation {
	out := *c
	if c.ForkedFromConversationID != nil {
		id := *c.ForkedFromConversationID
		out.ForkedFromConversationID = &id
	}
	return &out
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	OrganizationID string `json:"organization_id"`
	AdvisorModeID  string `json:"advisor_mode_id"`
	Title          string `json:"title"`
	IsShared       bool   `json:"is_shared"`
}

// UpdateConversationRequest is the request to update a conversation.
// Nil fields are left unchanged.
type UpdateConversationRequest struct {
	Title    *string `json:"title,omitempty"`
	IsShared *bool   `json:"is_shared,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// ConversationDetail is a conversation together with a page of its messages.
type ConversationDetail struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
	Pagination   *Pagination   `json:"pagination,omitempty"`
}

// ForkResult is returned by a successful fork.
type ForkResult struct {
	Conversation *Conversation `json:"conversation"`
	MessageCount int           `json:"messageCount"`
}
