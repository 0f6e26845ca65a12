// Package export drives the asynchronous export workflow: submitting a
// job, polling it to a terminal state, and downloading the result.
package export

import (
	"context"
	"fmt"
	"io"
)

// Supported export formats.
const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatExcel = "excel"
	FormatXML   = "xml"
)

// Formats lists the supported export formats in display order.
func Formats() []string {
	return []string{FormatCSV, FormatJSON, FormatExcel, FormatXML}
}

// ValidFormat reports whether f is a supported export format.
func ValidFormat(f string) bool {
	switch f {
	case FormatCSV, FormatJSON, FormatExcel, FormatXML:
		return true
	}
	return false
}

// FilterClause restricts the exported rows.
type FilterClause struct {
	Column string `json:"column"`
	Op     string `json:"op"` // eq, neq, lt, lte, gt, gte, like
	Value  any    `json:"value"`
}

// Request is a fully built export request, assembled step by step by the
// wizard and only valid once Validate passes.
type Request struct {
	Table      string         `json:"table"`
	Columns    []string       `json:"columns"`
	Format     string         `json:"format"`
	Filters    []FilterClause `json:"filters,omitempty"`
	RowLimit   int            `json:"row_limit,omitempty"`
	SearchTerm string         `json:"search_term,omitempty"`
	Options    map[string]any `json:"export_options,omitempty"`
}

// Validate enforces the submit invariants: a table, at least one column,
// a supported format, and a positive row limit when one is set.
func (r *Request) Validate() error {
	if r.Table == "" {
		return fmt.Errorf("no table selected")
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("no columns selected")
	}
	if !ValidFormat(r.Format) {
		return fmt.Errorf("unsupported export format %q", r.Format)
	}
	if r.RowLimit < 0 {
		return fmt.Errorf("row limit must be positive, got %d", r.RowLimit)
	}
	return nil
}

// Job statuses reported by the server. The client only ever reads them.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobStatus is the server-owned state of an export job.
type JobStatus struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Download is an open export file stream. Filename may be empty when the
// server sent no Content-Disposition header; Size is -1 when unknown.
type Download struct {
	Body     io.ReadCloser
	Filename string
	Size     int64
}

// Service is the job side of the Data API: create, poll, download.
// The REST client and the demo catalog both implement it.
type Service interface {
	CreateExport(ctx context.Context, req *Request) (jobID string, err error)
	ExportStatus(ctx context.Context, jobID string) (*JobStatus, error)
	DownloadExport(ctx context.Context, jobID string) (*Download, error)
}
