package preflight

import (
	"context"
	"errors"
	"fmt"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/store"
)

// CheckLexical reports whether hybrid retrieval is possible. Every
// failure here is a warning: dense search still works.
func (c *Checker) CheckLexical(ctx context.Context, backend string, cfg store.BM25Config, bundle IndexCheck) CheckResult {
	result := CheckResult{
		Name:     "lexical_backend",
		Required: false,
	}

	if backend == "" {
		backend = store.LexicalMemory
	}
	_, err := store.NewLexicalBuilder(ctx, backend, cfg)
	switch {
	case errors.Is(err, tterrors.ErrLexicalBackendAbsent):
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unavailable, retrieval is vector-only", backend)
		result.Details = err.Error()
		return result
	case err != nil:
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	if backend == store.LexicalNone {
		result.Status = StatusWarn
		result.Message = "disabled, retrieval is vector-only"
		return result
	}
	if bundle.loaded && !bundle.hasTokens {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("index has no %s, retrieval is vector-only", store.TokensFile)
		return result
	}

	result.Status = StatusPass
	result.Message = backend
	return result
}
