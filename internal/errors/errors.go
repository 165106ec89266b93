package errors

import (
	stderrors "errors"
	"fmt"
)

// TutorError is the structured error type for StudyTutor.
// It provides rich context for error handling, logging, and user presentation.
type TutorError struct {
	// Code is the unique error code (e.g., "ERR_101_INDEX_MISSING").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Index, Embedding, Retrieval, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the caller can retry the operation.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinel errors for errors.Is checks. Matching is by code, so any
// TutorError created with the same code matches these.
var (
	ErrIndexMissing          = New(ErrCodeIndexMissing, "index not found", nil)
	ErrIndexCorrupt          = New(ErrCodeIndexCorrupt, "index is corrupt", nil)
	ErrEmbeddingUnavailable  = New(ErrCodeEmbeddingUnavailable, "embedding backend unavailable", nil)
	ErrDimensionMismatch     = New(ErrCodeDimensionMismatch, "embedding dimension mismatch", nil)
	ErrRetrievalUnavailable  = New(ErrCodeRetrievalUnavailable, "retrieval unavailable", nil)
	ErrLexicalBackendAbsent  = New(ErrCodeLexicalAbsent, "lexical backend absent", nil)
	ErrExpansionFailed       = New(ErrCodeExpansionFailed, "query expansion failed", nil)
	ErrNotReady              = New(ErrCodeNotReady, "service not ready", nil)
	ErrInvalidInput          = New(ErrCodeInvalidInput, "invalid input", nil)
	ErrKnowledgeSourceFailed = New(ErrCodeKnowledgeSource, "knowledge source failed", nil)
)

// Error implements the error interface.
func (e *TutorError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *TutorError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with TutorError.
func (e *TutorError) Is(target error) bool {
	if t, ok := target.(*TutorError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *TutorError) WithDetail(key, value string) *TutorError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *TutorError) WithSuggestion(suggestion string) *TutorError {
	e.Suggestion = suggestion
	return e
}

// New creates a new TutorError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *TutorError {
	return &TutorError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a TutorError from an existing error.
// The error's message becomes the TutorError message.
func Wrap(code string, err error) *TutorError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IndexMissing creates an ErrCodeIndexMissing error for the given path.
func IndexMissing(path string, cause error) *TutorError {
	return New(ErrCodeIndexMissing, "index file not found: "+path, cause).
		WithDetail("path", path).
		WithSuggestion("Run the ingestion pipeline to build the index first")
}

// IndexCorrupt creates an ErrCodeIndexCorrupt error.
func IndexCorrupt(message string, cause error) *TutorError {
	return New(ErrCodeIndexCorrupt, message, cause).
		WithSuggestion("Re-run ingestion to rebuild the index")
}

// EmbeddingUnavailable creates an ErrCodeEmbeddingUnavailable error.
func EmbeddingUnavailable(message string, cause error) *TutorError {
	return New(ErrCodeEmbeddingUnavailable, message, cause)
}

// RetrievalUnavailable creates an ErrCodeRetrievalUnavailable error.
func RetrievalUnavailable(message string, cause error) *TutorError {
	return New(ErrCodeRetrievalUnavailable, message, cause).
		WithSuggestion("Check that the embedding backend is running")
}

// NotReady creates an ErrCodeNotReady error.
func NotReady(message string) *TutorError {
	return New(ErrCodeNotReady, message, nil).
		WithSuggestion("Upload documents and run ingestion first")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *TutorError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *TutorError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *TutorError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first TutorError in err's chain.
func As(err error) (*TutorError, bool) {
	var te *TutorError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if te, ok := As(err); ok {
		return te.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if te, ok := As(err); ok {
		return te.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a TutorError.
// Returns empty string if not a TutorError.
func GetCode(err error) string {
	if te, ok := As(err); ok {
		return te.Code
	}
	return ""
}

// GetCategory extracts the category from a TutorError.
// Returns empty string if not a TutorError.
func GetCategory(err error) Category {
	if te, ok := As(err); ok {
		return te.Category
	}
	return ""
}
