// Package models defines core data structures shared by ingestion, retrieval and the query surfaces.
package models

import "time"

// Document is one ingested source file as recorded in the catalog.
type Document struct {
	ID            string    `json:"id" db:"id"`
	Source        string    `json:"source" db:"source"`
	FileName      string    `json:"file_name" db:"file_name"`
	SizeBytes     int64     `json:"size_bytes" db:"size_bytes"`
	ContentSHA256 string    `json:"content_sha256" db:"content_sha256"`
	ChunkCount    int       `json:"chunk_count" db:"chunk_count"`
	IngestedAt    time.Time `json:"ingested_at" db:"ingested_at"`
}

// DocumentChunk is a slice of a document produced by the splitter.
// Embedding is carried in memory only; the vector file is the store of record.
type DocumentChunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Content    string    `json:"content" db:"content"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IngestRun records one ingestion attempt.
type IngestRun struct {
	ID                 string    `json:"id" db:"id"`
	StartedAt          time.Time `json:"started_at" db:"started_at"`
	FinishedAt         time.Time `json:"finished_at" db:"finished_at"`
	Files              int       `json:"files" db:"files"`
	Chunks             int       `json:"chunks" db:"chunks"`
	VectorIndexCreated bool      `json:"vector_index_created" db:"vector_index_created"`
	Error              string    `json:"error,omitempty" db:"error"`
}

// IngestReport summarizes a finished ingestion.
type IngestReport struct {
	RunID          string   `json:"run_id"`
	Files          []string `json:"files"`
	Skipped        []string `json:"skipped,omitempty"`
	Chunks         int      `json:"chunks"`
	EmbeddingModel string   `json:"embedding_model"`
	Dimensions     int      `json:"dimensions"`
	VectorsPath    string   `json:"vectors_path"`
	DurationMS     int64    `json:"duration_ms"`
}
