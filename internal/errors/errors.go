package errors

import (
	"errors"
	"fmt"
)

// IndexError is the structured error type for amanidx.
// It carries a stable code plus enough context for logging and CLI output.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_302_MALFORMED_SOURCE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Source, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so sentinel values work with errors.Is.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is. Never mutate these; build new errors with New.
var (
	ErrNoTemplateRegistered  = &IndexError{Code: ErrCodeNoTemplate}
	ErrIOFailure             = &IndexError{Code: ErrCodeIOFailure}
	ErrContentNotFound       = &IndexError{Code: ErrCodeContentNotFound}
	ErrContentUnavailable    = &IndexError{Code: ErrCodeContentUnavailable}
	ErrIndexLocked           = &IndexError{Code: ErrCodeIndexLocked}
	ErrTransformFailed       = &IndexError{Code: ErrCodeTransformFailed}
	ErrMalformedSource       = &IndexError{Code: ErrCodeMalformedSource}
	ErrInvalidSource         = &IndexError{Code: ErrCodeInvalidSource}
	ErrInvalidInput          = &IndexError{Code: ErrCodeInvalidInput}
	ErrInvalidSearcherHandle = &IndexError{Code: ErrCodeInvalidSearcherHandle}
	ErrInvalidQuery          = &IndexError{Code: ErrCodeInvalidQuery}
	ErrSchedulerStopped      = &IndexError{Code: ErrCodeSchedulerStopped}
	ErrWriteConflict         = &IndexError{Code: ErrCodeWriteConflict}
	ErrIndexStopped          = &IndexError{Code: ErrCodeIndexStopped}
	ErrSearchFailed          = &IndexError{Code: ErrCodeSearchFailed}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an error for a failure reported by the index engine or filesystem.
func IOError(message string, cause error) *IndexError {
	return New(ErrCodeIOFailure, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *IndexError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err, or any IndexError in its chain, is retryable.
func IsRetryable(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the code of the first IndexError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category of the first IndexError in the chain.
func GetCategory(err error) Category {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Category
	}
	return ""
}
