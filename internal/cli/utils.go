// Package cli renders command output for primr.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact is one line per match.
	OutputCompact OutputFormat = "compact"
)

// ParseOutputFormat validates s as an output format. An empty string means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON, OutputCompact:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or compact)", s)
	}
}

// WriteSearchResults writes raw retrieval matches to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i, m := range response.Matches {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", i+1, m.Score, sourceLabel(m), oneLine(m.Text, 80))
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d matches in %dms\n\n", response.Total, response.QueryTime)
		for i, m := range response.Matches {
			fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Rank: %d | Score: %.4f | Source: %s\n", i+1, m.Score, sourceLabel(m))
			fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(m.Text, 200))
		}
		return nil
	}
}

// WriteAnswer writes an answer and, in text format, the sources it was grounded on.
func WriteAnswer(w io.Writer, answer models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintln(w, answer.Answer)
	if format == OutputCompact || len(answer.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, m := range answer.Sources {
		fmt.Fprintf(w, "  %d. %s (score %.3f)\n", i+1, sourceLabel(m), m.Score)
	}
	return nil
}

// WriteStatus writes the knowledge base status report.
func WriteStatus(w io.Writer, st models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	state := "not loaded"
	if st.Ready {
		state = "ready"
	}
	fmt.Fprintf(w, "Knowledge base: %s\n", state)
	fmt.Fprintf(w, "Vector file:    %s (exists: %v)\n", st.VectorsPath, st.IndexExists)
	if vs := st.VectorStore; vs != nil {
		fmt.Fprintf(w, "Vectors:        %d x %d (%s, created %s, format v%d)\n",
			vs.TotalVectors, vs.Dimensions, vs.EmbeddingModel, vs.CreatedAt, vs.Version)
	}
	fmt.Fprintf(w, "Catalog:        %d documents, %d chunks\n", st.DocumentCount, st.ChunkCount)
	if run := st.LastIngest; run != nil {
		result := "ok"
		if run.Error != "" {
			result = "failed: " + run.Error
		}
		fmt.Fprintf(w, "Last ingest:    %s (%d files, %d chunks) %s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"), run.Files, run.Chunks, result)
	}
	fmt.Fprintf(w, "Data files:     %d\n", len(st.DataFiles))
	for _, f := range st.DataFiles {
		fmt.Fprintf(w, "  - %s\n", filepath.Base(f))
	}
	fmt.Fprintf(w, "Disk usage:     %s\n", FormatBytes(st.DiskUsageBytes))
	return nil
}

// WriteIngestReport writes the summary of a finished ingestion.
func WriteIngestReport(w io.Writer, r *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "Ingested %d files into %d chunks in %dms\n", len(r.Files), r.Chunks, r.DurationMS)
	fmt.Fprintf(w, "Embedding model: %s (%d dimensions)\n", r.EmbeddingModel, r.Dimensions)
	fmt.Fprintf(w, "Vector file: %s\n", r.VectorsPath)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped %d files:\n", len(r.Skipped))
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sourceLabel(m models.Match) string {
	if src := m.Source(); src != "" {
		return filepath.Base(src)
	}
	return "-"
}

// oneLine collapses whitespace and truncates to maxLen runes.
func oneLine(s string, maxLen int) string {
	return utils.Truncate(strings.Join(strings.Fields(s), " "), maxLen)
}
