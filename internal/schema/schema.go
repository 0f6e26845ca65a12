// Package schema holds the table metadata model for the Data API:
// schema snapshots, export permissions, and the derived export columns
// presented by the wizard.
package schema

import "context"

// Column represents a table column's metadata as reported by the Data API.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // free-text SQL type, e.g. "VARCHAR(255)"
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
	Default    string `json:"default,omitempty"`
}

// TableSchema is an immutable snapshot of a table's structure. It is
// replaced, never merged, when the selected table changes.
type TableSchema struct {
	TableName   string           `json:"table_name"`
	Columns     []Column         `json:"columns"`
	PrimaryKeys []string         `json:"primary_keys"`
	SampleData  []map[string]any `json:"sample_data,omitempty"`
}

// HasColumn reports whether the schema contains a column with the given name.
func (s *TableSchema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ExportPermission is the server-declared export policy for one table.
type ExportPermission struct {
	CanExport        bool     `json:"can_export"`
	CanPreview       bool     `json:"can_preview"`
	MaxRowsPerExport int      `json:"max_rows_per_export"`
	AllowedFormats   []string `json:"allowed_formats"`
	AllowedColumns   []string `json:"allowed_columns"` // empty means all columns allowed
}

// TablePermissions pairs a table with its export policy.
type TablePermissions struct {
	TableName string           `json:"table_name"`
	Export    ExportPermission `json:"export_permission"`
}

// FormatAllowed reports whether the policy permits the given format.
// An empty AllowedFormats list permits everything.
func (p *TablePermissions) FormatAllowed(format string) bool {
	if p == nil || len(p.Export.AllowedFormats) == 0 {
		return true
	}
	for _, f := range p.Export.AllowedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// ExportColumn is a schema column prepared for the export wizard.
type ExportColumn struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Type        string `json:"type"` // string, number, boolean, object, date
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Preview is a small sample of table data. The canonical field names are
// rows/total_count; the variant data/total_rows shape from older backends
// is normalized away in the API client.
type Preview struct {
	Rows       []map[string]any `json:"rows"`
	TotalCount int64            `json:"total_count"`
}

// Catalog is the read side of the Data API: everything needed to browse
// tables and build an export request. The REST client and the embedded
// demo catalog both implement it.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	TableSchema(ctx context.Context, table string) (*TableSchema, error)
	TablePermissions(ctx context.Context, table string) (*TablePermissions, error)
	TableData(ctx context.Context, table string, limit int) (*Preview, error)
}
