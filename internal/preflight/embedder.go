package preflight

import (
	"context"
	"fmt"

	"github.com/bjornefisk/StudyTutor/internal/embed"
	"github.com/bjornefisk/StudyTutor/internal/store"
)

// CheckEmbedder checks that the embedding backend answers.
func (c *Checker) CheckEmbedder(ctx context.Context, e embed.Embedder) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
		Details:  fmt.Sprintf("Backend: %s, model: %s", e.Backend(), e.ModelName()),
	}

	if !e.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s backend is not reachable", e.Backend())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s) available", e.ModelName(), e.Backend())
	return result
}

// CheckDimensions compares the query embedding dimension with the index.
// A model name that differs from ingestion is only a warning.
func (c *Checker) CheckDimensions(e embed.Embedder, info store.IndexInfo) CheckResult {
	result := CheckResult{
		Name:     "embedding_dimension",
		Required: true,
	}

	dim := e.Dimensions()
	switch {
	case dim == 0:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("dimension unknown until first query (index has %d)", info.Dim)
	case dim != info.Dim:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("embedder produces %d dimensions but index has %d", dim, info.Dim)
		result.Details = "Re-run ingestion with the configured model, or configure the model used at ingestion"
	case info.EmbedModel != "" && info.EmbedModel != e.ModelName():
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("index was built with %s, queries use %s", info.EmbedModel, e.ModelName())
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d dimensions", dim)
	}
	return result
}
