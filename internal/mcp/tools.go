package mcp

// RetrieveInput defines the input schema for the retrieve tool.
type RetrieveInput struct {
	Query      string `json:"query" jsonschema:"the question or keywords to retrieve study material for"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"maximum number of chunks, default from server config"`
	MultiQuery *bool  `json:"multi_query,omitempty" jsonschema:"expand the query into alternative phrasings"`
	Hybrid     *bool  `json:"hybrid,omitempty" jsonschema:"combine keyword and semantic ranking when available"`
}

// RetrieveOutput defines the output schema for the retrieve tool.
type RetrieveOutput struct {
	Query   string           `json:"query"`
	Mode    string           `json:"mode" jsonschema:"hybrid or vector-only"`
	Results []RetrievedChunk `json:"results" jsonschema:"chunks in rank order"`
}

// RetrievedChunk is one ranked chunk.
type RetrievedChunk struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score" jsonschema:"fused reciprocal rank score summed over query variants"`
	Source     string  `json:"source" jsonschema:"source document name"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Relevance  string  `json:"relevance" jsonschema:"high, medium or low from dense similarity"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Ready          bool   `json:"ready"`
	Mode           string `json:"mode" jsonschema:"hybrid, vector-only or not-ready"`
	Chunks         int    `json:"chunks"`
	IndexDir       string `json:"index_dir,omitempty"`
	VectorBackend  string `json:"vector_backend,omitempty"`
	LexicalBackend string `json:"lexical_backend"`
	LexicalError   string `json:"lexical_error,omitempty"`
	Embedder       string `json:"embedder"`
	Expansion      string `json:"expansion"`
	LoadedAt       string `json:"loaded_at,omitempty"`
}
