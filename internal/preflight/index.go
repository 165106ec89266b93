package preflight

import (
	"context"
	"errors"
	"fmt"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/store"
)

// IndexCheck is the bundle check result plus what later checks need.
type IndexCheck struct {
	result    CheckResult
	loaded    bool
	hasTokens bool
	info      store.IndexInfo
}

// Result returns the check result.
func (ic IndexCheck) Result() CheckResult { return ic.result }

// CheckIndex loads the bundle in dir without a lexical ranker.
func (c *Checker) CheckIndex(ctx context.Context, dir string) IndexCheck {
	ic := IndexCheck{result: CheckResult{
		Name:     "index_bundle",
		Required: true,
		Details:  fmt.Sprintf("Index directory: %s", dir),
	}}

	idx, err := store.Load(ctx, dir, store.LoadOptions{})
	switch {
	case errors.Is(err, tterrors.ErrIndexMissing):
		ic.result.Status = StatusFail
		ic.result.Message = "index not found (run ingestion first)"
		return ic
	case err != nil:
		ic.result.Status = StatusFail
		ic.result.Message = err.Error()
		return ic
	}
	defer func() { _ = idx.Close() }()

	ic.loaded = true
	ic.hasTokens = idx.HasTokens()
	ic.info = idx.Info()
	ic.result.Status = StatusPass
	ic.result.Message = fmt.Sprintf("%d chunks, dim %d (%s/%s)",
		idx.Len(), ic.info.Dim, ic.info.EmbedBackend, ic.info.EmbedModel)
	return ic
}
