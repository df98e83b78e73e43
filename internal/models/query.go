package models

import (
	"fmt"
	"strings"
)

const (
	// DefaultK is the number of matches retrieved when a request does not say.
	DefaultK = 5
	// MaxK caps the number of matches a single request may ask for.
	MaxK = 50
)

// QueryRequest asks for a context-grounded answer.
type QueryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// Validate trims the question, rejects an empty one, and normalizes K.
func (q *QueryRequest) Validate() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	q.K = clampK(q.K)
	return nil
}

// SearchRequest asks for raw retrieval matches.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Validate trims the query, rejects an empty one, and normalizes K.
func (q *SearchRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	q.K = clampK(q.K)
	return nil
}

func clampK(k int) int {
	if k <= 0 {
		return DefaultK
	}
	if k > MaxK {
		return MaxK
	}
	return k
}
