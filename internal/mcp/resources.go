package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	statusURI     = "tutor://index_status"
	queryStatsURI = "tutor://query_stats"
)

// QueryStatsOutput is the JSON structure for the query_stats resource.
type QueryStatsOutput struct {
	Summary             QueryStatsSummary `json:"summary"`
	QueryKindCounts     map[string]int64  `json:"query_kind_counts"`
	TopTerms            []QueryTermCount  `json:"top_terms"`
	ZeroResultQueries   []string          `json:"zero_result_queries"`
	LatencyDistribution map[string]int64  `json:"latency_distribution"`
}

// QueryStatsSummary provides overview statistics.
type QueryStatsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	RepeatQueries int64   `json:"repeat_queries"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	Since         string  `json:"since"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func (s *Server) registerStatusResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "index_status",
			URI:         statusURI,
			Description: "Readiness and retrieval mode of the document index",
			MIMEType:    "application/json",
		},
		func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readStatus()
		},
	)
}

func (s *Server) readStatus() (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(ToIndexStatusOutput(s.engine.Status()), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(statusURI, content), nil
}

func (s *Server) registerQueryStatsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_stats",
			URI:         queryStatsURI,
			Description: "Query pattern statistics for this session",
			MIMEType:    "application/json",
		},
		func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readQueryStats()
		},
	)
}

func (s *Server) readQueryStats() (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	stats := s.stats
	s.mu.RUnlock()

	if stats == nil {
		return nil, NewInvalidParamsError("query statistics not available")
	}

	snap := stats.Snapshot()
	output := QueryStatsOutput{
		Summary: QueryStatsSummary{
			TotalQueries:  snap.TotalQueries,
			RepeatQueries: snap.RepeatCount,
			ZeroResultPct: snap.ZeroResultRate() * 100,
			Since:         snap.Since.UTC().Format("2006-01-02T15:04:05Z"),
		},
		QueryKindCounts:     make(map[string]int64, len(snap.KindCounts)),
		TopTerms:            make([]QueryTermCount, 0, len(snap.TopTerms)),
		ZeroResultQueries:   snap.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
	}
	for kind, n := range snap.KindCounts {
		output.QueryKindCounts[string(kind)] = n
	}
	for _, tc := range snap.TopTerms {
		output.TopTerms = append(output.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, n := range snap.LatencyDistribution {
		output.LatencyDistribution[string(bucket)] = n
	}

	content, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(queryStatsURI, content), nil
}

func jsonResource(uri string, content []byte) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}
}
