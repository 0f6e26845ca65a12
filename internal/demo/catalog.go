// Package demo provides an embedded catalog so the whole export workflow
// can run without a backend or credentials. Demo mode is selected
// explicitly through configuration, never triggered by request failures.
package demo

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/tabx-cli/tabx/internal/export"
	"github.com/tabx-cli/tabx/internal/schema"
)

// pendingPolls is how many status polls a demo job reports "pending"
// before completing, so the polling path gets exercised.
const pendingPolls = 2

type table struct {
	schema *schema.TableSchema
	perms  *schema.TablePermissions
}

// Catalog serves embedded demo tables and simulates the export job
// lifecycle locally. It implements both schema.Catalog and export.Service.
type Catalog struct {
	tables map[string]table
	order  []string

	mu   sync.Mutex
	jobs map[string]*demoJob
}

type demoJob struct {
	req   *export.Request
	polls int
}

var (
	_ schema.Catalog = (*Catalog)(nil)
	_ export.Service = (*Catalog)(nil)
)

// New creates the demo catalog with its fixed table set.
func New() *Catalog {
	c := &Catalog{
		tables: make(map[string]table),
		jobs:   make(map[string]*demoJob),
	}
	c.add(usersTable())
	c.add(ordersTable())
	c.add(auditLogTable())
	return c
}

func (c *Catalog) add(s *schema.TableSchema, p *schema.TablePermissions) {
	c.tables[s.TableName] = table{schema: s, perms: p}
	c.order = append(c.order, s.TableName)
}

// ListTables returns the demo table names in a stable order.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	return append([]string(nil), c.order...), nil
}

// TableSchema returns the embedded schema snapshot.
func (c *Catalog) TableSchema(ctx context.Context, name string) (*schema.TableSchema, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("no such demo table %q", name)
	}
	return t.schema, nil
}

// TablePermissions returns the embedded export policy.
func (c *Catalog) TablePermissions(ctx context.Context, name string) (*schema.TablePermissions, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("no such demo table %q", name)
	}
	return t.perms, nil
}

// TableData previews the embedded sample rows.
func (c *Catalog) TableData(ctx context.Context, name string, limit int) (*schema.Preview, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("no such demo table %q", name)
	}
	rows := t.schema.SampleData
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return &schema.Preview{Rows: rows, TotalCount: int64(len(t.schema.SampleData))}, nil
}

// CreateExport registers a simulated job for the request.
func (c *Catalog) CreateExport(ctx context.Context, req *export.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	t, ok := c.tables[req.Table]
	if !ok {
		return "", fmt.Errorf("no such demo table %q", req.Table)
	}
	if !t.perms.FormatAllowed(req.Format) {
		return "", fmt.Errorf("format %q is not permitted for demo table %s", req.Format, req.Table)
	}

	jobID := "demo-" + uuid.NewString()
	c.mu.Lock()
	c.jobs[jobID] = &demoJob{req: req}
	c.mu.Unlock()
	return jobID, nil
}

// ExportStatus reports pending for the first polls, then completed.
func (c *Catalog) ExportStatus(ctx context.Context, jobID string) (*export.JobStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("no such demo job %q", jobID)
	}
	job.polls++
	status := export.StatusPending
	if job.polls > pendingPolls {
		status = export.StatusCompleted
	}
	return &export.JobStatus{JobID: jobID, Status: status}, nil
}

// DownloadExport renders the job's rows in the requested format.
func (c *Catalog) DownloadExport(ctx context.Context, jobID string) (*export.Download, error) {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such demo job %q", jobID)
	}

	t := c.tables[job.req.Table]
	rows := t.schema.SampleData
	if job.req.RowLimit > 0 && job.req.RowLimit < len(rows) {
		rows = rows[:job.req.RowLimit]
	}

	var buf bytes.Buffer
	var ext string
	switch job.req.Format {
	case export.FormatJSON:
		ext = "json"
		if err := writeJSON(&buf, job.req.Columns, rows); err != nil {
			return nil, err
		}
	default:
		ext = "csv"
		if err := writeCSV(&buf, job.req.Columns, rows); err != nil {
			return nil, err
		}
	}

	return &export.Download{
		Body:     io.NopCloser(&buf),
		Filename: fmt.Sprintf("%s_demo.%s", job.req.Table, ext),
		Size:     int64(buf.Len()),
	}, nil
}

func writeCSV(buf *bytes.Buffer, columns []string, rows []map[string]any) error {
	w := csv.NewWriter(buf)
	if err := w.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = fmt.Sprintf("%v", row[col])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(buf *bytes.Buffer, columns []string, rows []map[string]any) error {
	objects := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]any, len(columns))
		for _, col := range columns {
			obj[col] = row[col]
		}
		objects = append(objects, obj)
	}
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	return enc.Encode(objects)
}
