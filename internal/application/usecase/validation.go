package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// FeedCandidate is a feed the user asked to subscribe to, from manual entry
// or an OPML entry.
type FeedCandidate struct {
	URL  string `validate:"required,http_url"`
	Name string `validate:"max=512"`
	// FolderID files the feed under an existing local folder.
	FolderID *int64
	// FolderName files the feed under a folder by name, created when missing.
	FolderName string `validate:"max=256"`
}

// Normalized returns a copy with surrounding whitespace removed.
func (c FeedCandidate) Normalized() FeedCandidate {
	c.URL = strings.TrimSpace(c.URL)
	c.Name = strings.TrimSpace(c.Name)
	c.FolderName = strings.TrimSpace(c.FolderName)
	return c
}

// HasFolder reports whether the candidate names a folder.
func (c FeedCandidate) HasFolder() bool {
	return c.FolderID != nil || c.FolderName != ""
}

type folderInput struct {
	Name string `validate:"required,max=256"`
}

var validate = validator.New()

// ValidateFeedCandidate checks c against the account policy.
func ValidateFeedCandidate(c FeedCandidate, cfg account.Config) error {
	if strings.ContainsAny(c.URL, " \t\r\n") {
		return reading.NewValidationError("url", "must not contain whitespace")
	}
	if err := validateStruct(c); err != nil {
		return err
	}
	if !cfg.AddNoFolder && !c.HasFolder() {
		return reading.NewValidationError("folder", "a folder is required for this account")
	}
	return nil
}

// ValidateFolderName checks a folder name against the account policy.
func ValidateFolderName(name string, cfg account.Config) error {
	if !cfg.CanCreateFolder {
		return reading.NewValidationError("folder", "this account does not support creating folders")
	}
	return validateStruct(folderInput{Name: strings.TrimSpace(name)})
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	return reading.NewValidationError(strings.ToLower(fe.Field()), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return "must be an absolute http or https URL"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation for %s", fe.Tag())
	}
}
