package api

import (
	"github.com/bjornefisk/StudyTutor/internal/async"
	"github.com/bjornefisk/StudyTutor/internal/knowledge"
	"github.com/bjornefisk/StudyTutor/internal/search"
)

// Health statuses.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthNotReady = "not_ready"
)

// PreviewLength is the rune cap for result text unless full_text is set.
const PreviewLength = 200

type errorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the engine status plus the background load, when
// the server loads the index asynchronously.
type StatusResponse struct {
	search.Status
	Load *async.LoadSnapshot `json:"load,omitempty"`
}

// RootResponse is the basic readiness probe.
type RootResponse struct {
	Status      string `json:"status"`
	IndexLoaded bool   `json:"index_loaded"`
	Documents   int    `json:"documents"`
}

// HealthResponse is served on /healthz.
type HealthResponse struct {
	Status    string      `json:"status"`
	Documents int         `json:"documents"`
	Mode      search.Mode `json:"mode"`
	Embedder  string      `json:"embedder"`
	Lexical   string      `json:"lexical_backend"`
	Message   string      `json:"message,omitempty"`
}

// RetrieveRequest is the body of POST /v1/retrieve. Unset fields take the
// server defaults.
type RetrieveRequest struct {
	Query            string `json:"query"`
	TopK             *int   `json:"top_k,omitempty"`
	UseMultiQuery    *bool  `json:"use_multi_query,omitempty"`
	NumVariations    *int   `json:"num_query_variations,omitempty"`
	UseHybrid        *bool  `json:"use_hybrid,omitempty"`
	IncludeKnowledge bool   `json:"include_knowledge,omitempty"`
	FullText         bool   `json:"full_text,omitempty"`
}

// Source is one retrieved chunk.
type Source struct {
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Relevance  string  `json:"relevance"`
}

// KnowledgeSource is the optional encyclopedia article.
type KnowledgeSource struct {
	Title      string  `json:"title"`
	Extract    string  `json:"extract"`
	URL        string  `json:"url"`
	Source     string  `json:"source"`
	Score      float64 `json:"score"`
	License    string  `json:"license"`
	LicenseURL string  `json:"license_url"`
}

// RetrieveResponse is the body returned by POST /v1/retrieve.
type RetrieveResponse struct {
	Query     string           `json:"query"`
	Mode      search.Mode      `json:"mode"`
	Results   []Source         `json:"results"`
	Knowledge *KnowledgeSource `json:"knowledge,omitempty"`
}

func toSources(results []search.Result, fullText bool) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		text := r.Chunk.Text
		if !fullText {
			text = preview(text)
		}
		out = append(out, Source{
			Score:      r.Score,
			Source:     r.Chunk.Source,
			Page:       r.Chunk.Page,
			ChunkIndex: r.Chunk.ChunkIndex,
			Text:       text,
			Relevance:  r.Relevance(),
		})
	}
	return out
}

func toKnowledge(a *knowledge.Article) *KnowledgeSource {
	if a == nil {
		return nil
	}
	return &KnowledgeSource{
		Title:      a.Title,
		Extract:    a.Extract,
		URL:        a.URL,
		Source:     a.Source(),
		Score:      knowledge.ArticleScore,
		License:    a.License,
		LicenseURL: a.LicenseURL,
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return text
	}
	return string(runes[:PreviewLength]) + "..."
}
