// Package errors provides structured error handling for StudyTutor.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Index errors (bundle on disk)
//   - 2XX: Embedding errors
//   - 3XX: Retrieval errors
//   - 4XX: Validation and configuration errors
//   - 5XX: Internal and external source errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryIndex indicates errors loading the corpus index bundle.
	CategoryIndex Category = "INDEX"
	// CategoryEmbedding indicates embedding backend errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryRetrieval indicates errors raised while answering a query.
	CategoryRetrieval Category = "RETRIEVAL"
	// CategoryValidation indicates input or configuration errors.
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
	// Index errors (100-199)
	ErrCodeIndexMissing = "ERR_101_INDEX_MISSING"
	ErrCodeIndexCorrupt = "ERR_102_INDEX_CORRUPT"
	ErrCodeIndexLocked  = "ERR_103_INDEX_LOCKED"

	// Embedding errors (200-299)
	ErrCodeEmbeddingUnavailable = "ERR_201_EMBEDDING_UNAVAILABLE"
	ErrCodeDimensionMismatch    = "ERR_202_DIMENSION_MISMATCH"

	// Retrieval errors (300-399)
	ErrCodeRetrievalUnavailable = "ERR_301_RETRIEVAL_UNAVAILABLE"
	ErrCodeLexicalAbsent        = "ERR_302_LEXICAL_BACKEND_ABSENT"
	ErrCodeExpansionFailed      = "ERR_303_EXPANSION_FAILED"
	ErrCodeNotReady             = "ERR_304_NOT_READY"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeConfigInvalid = "ERR_402_CONFIG_INVALID"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeKnowledgeSource = "ERR_502_KNOWLEDGE_SOURCE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_INDEX_MISSING")
	switch code[4] {
	case '1':
		return CategoryIndex
	case '2':
		return CategoryEmbedding
	case '3':
		return CategoryRetrieval
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexMissing, ErrCodeIndexCorrupt:
		return SeverityFatal
	case ErrCodeLexicalAbsent, ErrCodeExpansionFailed, ErrCodeKnowledgeSource:
		return SeverityWarning
	case ErrCodeRetrievalUnavailable, ErrCodeNotReady:
		return SeverityError
	}

	// Retryable backend errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode reports whether the caller may reasonably retry.
// The engine itself never retries.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingUnavailable, ErrCodeRetrievalUnavailable, ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
