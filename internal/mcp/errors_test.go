package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/search"
)

func TestMapError_NilError(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_TutorErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "not ready",
			err:      tterrors.NotReady(search.NotReadyMessage),
			wantCode: ErrCodeNotReady,
			wantMsg:  "Vector index not loaded",
		},
		{
			name:     "index missing",
			err:      tterrors.IndexMissing("storage/vectors.bin", nil),
			wantCode: ErrCodeNotReady,
			wantMsg:  "storage/vectors.bin",
		},
		{
			name:     "retrieval unavailable",
			err:      tterrors.RetrievalUnavailable("embedding the query failed", errors.New("connection refused")),
			wantCode: ErrCodeRetrievalUnavailable,
			wantMsg:  "Check that the embedding backend is running",
		},
		{
			name:     "validation",
			err:      tterrors.ValidationError("rrf_k must be > 0, got 0", nil),
			wantCode: ErrCodeInvalidParams,
			wantMsg:  "rrf_k",
		},
		{
			name:     "internal",
			err:      tterrors.InternalError("boom", nil),
			wantCode: ErrCodeInternalError,
			wantMsg:  "boom",
		},
		{
			name:     "wrapped",
			err:      fmt.Errorf("tool: %w", tterrors.NotReady("no index")),
			wantCode: ErrCodeNotReady,
			wantMsg:  "no index",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Contains(t, got.Message, tt.wantMsg)
		})
	}
}

func TestMapError_NotReadyMessageNotDuplicated(t *testing.T) {
	got := MapError(tterrors.NotReady(search.NotReadyMessage))
	assert.Equal(t, search.NotReadyMessage, got.Message)
}

func TestMapError_ContextErrors(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, MapError(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrCodeTimeout, MapError(context.Canceled).Code)
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	in := NewInvalidParamsError("bad")
	assert.Same(t, in, MapError(fmt.Errorf("wrap: %w", in)))
}

func TestMapError_Unknown(t *testing.T) {
	got := MapError(errors.New("something odd"))
	assert.Equal(t, ErrCodeInternalError, got.Code)
	assert.Equal(t, "Internal server error.", got.Message)
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: ErrCodeNotReady, Message: "not loaded"}
	assert.Equal(t, "MCP error -32001: not loaded", err.Error())
}
