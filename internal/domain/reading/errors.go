package reading

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned when a protocol does not offer an operation.
	ErrUnsupported = errors.New("operation not supported by this account type")
	// ErrInvalidAccount marks account-fatal conditions such as a bad base URL.
	ErrInvalidAccount = errors.New("invalid account")
	// ErrFeedExists is returned when a feed URL is already subscribed.
	ErrFeedExists = errors.New("feed already exists")
	// ErrNotFound is returned when a stored entity does not exist.
	ErrNotFound = errors.New("not found")
)

// ParseError reports a malformed or unexpected wire payload.
type ParseError struct {
	Msg string
	Err error
}

// NewParseError wraps a parser failure, keeping its message.
func NewParseError(err error) *ParseError {
	if err == nil {
		return &ParseError{Msg: "unknown parse failure"}
	}
	return &ParseError{Msg: err.Error(), Err: err}
}

// ParseErrorf builds a ParseError from a formatted message.
func ParseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TransportError reports a network, timeout or HTTP status failure.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: http status %d", e.Op, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s %s: transport failure", e.Op, e.URL)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError reports rejected credentials. The account needs new credentials
// rather than a retry.
type AuthError struct {
	URL        string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication rejected by %s (status %d)", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("authentication rejected by %s", e.URL)
}

// ValidationError reports invalid user input.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
}

// IsAuth reports whether err carries an AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsParse reports whether err carries a ParseError.
func IsParse(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
