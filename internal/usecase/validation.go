package usecase

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	nameMinLength    = 2
	nameMaxLength    = 100
	emailMaxLength   = 254
	messageMaxLength = 2000
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateSubmitContactInput checks the form's shape. The honeypot field is
// handled before validation and is not part of this contract.
func ValidateSubmitContactInput(input SubmitContactInput) []ValidationError {
	var errors []ValidationError

	// Limits are in characters, not bytes; multibyte names must not be
	// rejected early.
	name := strings.TrimSpace(input.Name)
	if name == "" {
		errors = append(errors, ValidationError{"name", "is required"})
	} else if utf8.RuneCountInString(name) < nameMinLength {
		errors = append(errors, ValidationError{"name", fmt.Sprintf("must have at least %d characters", nameMinLength)})
	} else if utf8.RuneCountInString(name) > nameMaxLength {
		errors = append(errors, ValidationError{"name", fmt.Sprintf("must not exceed %d characters", nameMaxLength)})
	}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		errors = append(errors, ValidationError{"email", "is required"})
	} else if utf8.RuneCountInString(email) > emailMaxLength {
		errors = append(errors, ValidationError{"email", fmt.Sprintf("must not exceed %d characters", emailMaxLength)})
	} else if _, err := mail.ParseAddress(email); err != nil {
		errors = append(errors, ValidationError{"email", "is invalid"})
	}

	message := strings.TrimSpace(input.Message)
	if message == "" {
		errors = append(errors, ValidationError{"message", "is required"})
	} else if utf8.RuneCountInString(message) > messageMaxLength {
		errors = append(errors, ValidationError{"message", fmt.Sprintf("must not exceed %d characters", messageMaxLength)})
	}

	return errors
}
