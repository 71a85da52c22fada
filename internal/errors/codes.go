// Package errors provides structured error handling for amanidx.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (index engine, content source)
//   - 3XX: Source errors (transformation, index XML)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates index engine and content I/O errors.
	CategoryIO Category = "IO"
	// CategorySource indicates content that could not be turned into documents.
	CategorySource Category = "SOURCE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeNoTemplate     = "ERR_103_NO_TEMPLATE_REGISTERED"

	// IO errors (200-299)
	ErrCodeIOFailure          = "ERR_201_IO_FAILURE"
	ErrCodeContentNotFound    = "ERR_202_CONTENT_NOT_FOUND"
	ErrCodeContentUnavailable = "ERR_203_CONTENT_UNAVAILABLE"
	ErrCodeIndexLocked        = "ERR_204_INDEX_LOCKED"
	ErrCodeCorruptIndex       = "ERR_205_CORRUPT_INDEX"

	// Source errors (300-399)
	ErrCodeTransformFailed = "ERR_301_TRANSFORM_FAILED"
	ErrCodeMalformedSource = "ERR_302_MALFORMED_SOURCE"
	ErrCodeInvalidSource   = "ERR_303_INVALID_SOURCE"

	// Validation errors (400-499)
	ErrCodeInvalidInput          = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidSearcherHandle = "ERR_402_INVALID_SEARCHER_HANDLE"
	ErrCodeInvalidQuery          = "ERR_403_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeSchedulerStopped = "ERR_502_SCHEDULER_STOPPED"
	ErrCodeWriteConflict    = "ERR_503_WRITE_CONFLICT"
	ErrCodeIndexStopped     = "ERR_504_INDEX_STOPPED"
	ErrCodeSearchFailed     = "ERR_505_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategorySource
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeMalformedSource, ErrCodeInvalidSource:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeContentUnavailable, ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
