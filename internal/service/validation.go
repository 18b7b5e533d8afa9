package service

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/capitalize-ai/advisor-platform/internal/model"
)

const (
	// MaxTitleLength bounds conversation titles, in characters.
	MaxTitleLength = 255
	// MaxContentLength bounds a message's text content, in characters.
	MaxContentLength = 100000
	// MaxSections bounds the number of sections in one message.
	MaxSections = 50
)

var isUUID = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid UUID")
	}
	return nil
})

func validateCreate(req *model.CreateConversationRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.OrganizationID, validation.Required, isUUID),
		validation.Field(&req.AdvisorModeID, validation.Required, isUUID),
		validation.Field(&req.Title, validation.Required, validation.RuneLength(1, MaxTitleLength)),
	)
}

func validateUpdate(req *model.UpdateConversationRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.NilOrNotEmpty, validation.RuneLength(1, MaxTitleLength)),
	)
}

func validateAppend(req *model.AppendMessageRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Role,
			validation.Required,
			validation.In(model.RoleUser, model.RoleAssistant),
		),
		validation.Field(&req.Content,
			validation.When(len(req.Sections) == 0, validation.Required.Error("content or sections is required")),
			validation.RuneLength(0, MaxContentLength),
		),
		validation.Field(&req.Sections,
			validation.Length(0, MaxSections),
			validation.Each(validation.By(validateSection)),
		),
	)
}

func validateSection(value interface{}) error {
	section, ok := value.(model.Section)
	if !ok {
		return fmt.Errorf("invalid section type")
	}
	return validation.ValidateStruct(&section,
		validation.Field(&section.Name, validation.Required),
		validation.Field(&section.Content, validation.RuneLength(0, MaxContentLength)),
	)
}

// invalid wraps a validation failure into a KindValidation error whose
// message lists the offending fields.
func invalid(err error) *Error {
	return withMessage(ErrValidation, err.Error(), err)
}
