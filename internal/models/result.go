package models

// Match is a single retrieval hit: a stored chunk with its cosine score.
type Match struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Source returns the "source" metadata value, or "" when absent.
func (m Match) Source() string {
	if m.Metadata == nil {
		return ""
	}
	if s, ok := m.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

// Outcome classifies how a question was handled.
type Outcome string

const (
	OutcomeAnswered      Outcome = "answered"
	OutcomeNoInformation Outcome = "no_information"
	OutcomeNoKnowledge   Outcome = "no_knowledge"
	OutcomeFailed        Outcome = "failed"
)

// Answer is the result of answering a question.
// Answer always holds a user-facing message, including on failure.
type Answer struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Outcome    Outcome `json:"outcome"`
	Sources    []Match `json:"sources"`
	DurationMS int64   `json:"duration_ms"`
}

// SearchResponse is the response for a raw retrieval request.
type SearchResponse struct {
	Query     string  `json:"query"`
	Matches   []Match `json:"matches"`
	Total     int     `json:"total"`
	QueryTime int64   `json:"query_time_ms"`
}

// StoreStats describes a loaded vector store.
type StoreStats struct {
	Status         string `json:"status"`
	TotalVectors   int    `json:"total_vectors"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	CreatedAt      string `json:"created_at"`
	Version        int    `json:"version"`
}

// StatusResponse is the ingestion and vector store health report.
type StatusResponse struct {
	Service        string      `json:"service"`
	IndexExists    bool        `json:"index_exists"`
	Ready          bool        `json:"ready"`
	VectorsPath    string      `json:"vectors_path"`
	VectorStore    *StoreStats `json:"vector_store,omitempty"`
	DataFiles      []string    `json:"data_files"`
	DocumentCount  int         `json:"document_count"`
	ChunkCount     int         `json:"chunk_count"`
	LastIngest     *IngestRun  `json:"last_ingest,omitempty"`
	DiskUsageBytes int64       `json:"disk_usage_bytes"`
	Timestamp      string      `json:"timestamp"`
}
