package service

import (
	"errors"

	"github.com/capitalize-ai/advisor-platform/internal/access"
)

// Kind classifies a service failure. The set is closed.
type Kind string

const (
	KindUnauthorized         Kind = "unauthorized"
	KindSourceNotFound       Kind = "source_not_found"
	KindConversationNotFound Kind = "conversation_not_found"
	KindAlreadyOwned         Kind = "already_owned"
	KindNotShared            Kind = "not_shared"
	KindNotAMember           Kind = "not_a_member"
	KindAccessDenied         Kind = "access_denied"
	KindNotOwner             Kind = "not_owner"
	KindInsufficientRole     Kind = "insufficient_role"
	KindValidation           Kind = "validation"
	KindCreateFailed         Kind = "create_failed"
	KindCopyFailed           Kind = "copy_failed"
	KindAppendFailed         Kind = "append_failed"
	KindUnavailable          Kind = "unavailable"
	KindInternal             Kind = "internal"
)

// Error is a tagged service failure. Message is safe to show to clients;
// Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotShared) works
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
	ErrSourceNotFound       = &Error{Kind: KindSourceNotFound, Message: "Source conversation not found"}
	ErrConversationNotFound = &Error{Kind: KindConversationNotFound, Message: "Conversation not found"}
	ErrAlreadyOwned         = &Error{Kind: KindAlreadyOwned, Message: "You already own this conversation"}
	ErrNotShared            = &Error{Kind: KindNotShared, Message: "This conversation is not shared"}
	ErrNotAMember           = &Error{Kind: KindNotAMember, Message: "Access denied - not a member of this organization"}
	ErrAccessDenied         = &Error{Kind: KindAccessDenied, Message: "Access denied"}
	ErrNotOwner             = &Error{Kind: KindNotOwner, Message: "Only the conversation owner can do this"}
	ErrInsufficientRole     = &Error{Kind: KindInsufficientRole, Message: "Your organization role does not allow this"}
	ErrValidation           = &Error{Kind: KindValidation, Message: "Invalid request"}
	ErrCreateFailed         = &Error{Kind: KindCreateFailed, Message: "Failed to create conversation. Please try again."}
	ErrCopyFailed           = &Error{Kind: KindCopyFailed, Message: "Failed to copy messages. Please try again."}
	ErrAppendFailed         = &Error{Kind: KindAppendFailed, Message: "Failed to save message. Please try again."}
	ErrUnavailable          = &Error{Kind: KindUnavailable, Message: "Service temporarily unavailable"}
	ErrInternal             = &Error{Kind: KindInternal, Message: "Internal error"}
)

// wrap returns a copy of sentinel carrying cause.
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// withMessage returns a copy of sentinel with a custom client message.
func withMessage(sentinel *Error, message string, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: message, Err: cause}
}

// KindOf returns the kind of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrInternal.Message
}

// denied maps a rejected access decision onto its service error.
func denied(d access.Decision) *Error {
	switch d {
	case access.AlreadyOwned:
		return ErrAlreadyOwned
	case access.NotShared:
		return ErrNotShared
	case access.NotAMember:
		return ErrNotAMember
	case access.NotOwner:
		return ErrNotOwner
	case access.InsufficientRole:
		return ErrInsufficientRole
	default:
		return ErrAccessDenied
	}
}
