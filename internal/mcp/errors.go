// Package mcp implements the Model Context Protocol (MCP) server for StudyTutor.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeNotReady indicates no index is loaded.
	ErrCodeNotReady = -32001

	// ErrCodeRetrievalUnavailable indicates the primary query could not be
	// embedded or searched.
	ErrCodeRetrievalUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrResourceNotFound indicates the requested resource does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var te *tterrors.TutorError
	if errors.As(err, &te) {
		return mapTutorError(te)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapTutorError(te *tterrors.TutorError) *MCPError {
	message := te.Message
	if te.Suggestion != "" && !strings.Contains(te.Message, te.Suggestion) {
		message = fmt.Sprintf("%s %s", te.Message, te.Suggestion)
	}

	switch te.Code {
	case tterrors.ErrCodeNotReady, tterrors.ErrCodeIndexMissing, tterrors.ErrCodeIndexCorrupt:
		return &MCPError{Code: ErrCodeNotReady, Message: message}
	case tterrors.ErrCodeRetrievalUnavailable, tterrors.ErrCodeEmbeddingUnavailable, tterrors.ErrCodeDimensionMismatch:
		return &MCPError{Code: ErrCodeRetrievalUnavailable, Message: message}
	}

	if te.Category == tterrors.CategoryValidation {
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: message}
}
