package schema

import "strings"

// Export column type names.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeDate    = "date"
)

// ClassifyType maps a free-text SQL type to an export column type.
// Backends report vendor-specific type strings (VARCHAR(255), JSONB,
// timestamp with time zone), so matching is by substring, not equality.
func ClassifyType(sqlType string) string {
	t := strings.ToLower(sqlType)

	switch {
	case strings.Contains(t, "int"), strings.Contains(t, "serial"):
		return TypeNumber
	case strings.Contains(t, "decimal"), strings.Contains(t, "numeric"),
		strings.Contains(t, "float"), strings.Contains(t, "double"):
		return TypeNumber
	case strings.Contains(t, "bool"):
		return TypeBoolean
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return TypeDate
	case strings.Contains(t, "json"):
		return TypeObject
	default:
		return TypeString
	}
}

// DeriveExportColumns builds the wizard's column list from a schema
// snapshot, filtered by the table's export policy. A nil or empty
// AllowedColumns list allows every column. Schema order is preserved.
func DeriveExportColumns(s *TableSchema, perms *TablePermissions) []ExportColumn {
	if s == nil {
		return nil
	}

	var allowed map[string]bool
	if perms != nil && len(perms.Export.AllowedColumns) > 0 {
		allowed = make(map[string]bool, len(perms.Export.AllowedColumns))
		for _, name := range perms.Export.AllowedColumns {
			allowed[name] = true
		}
	}

	cols := make([]ExportColumn, 0, len(s.Columns))
	for _, c := range s.Columns {
		if allowed != nil && !allowed[c.Name] {
			continue
		}
		desc := c.Type
		if !c.Nullable {
			desc += " NOT NULL"
		}
		cols = append(cols, ExportColumn{
			Key:         c.Name,
			Label:       c.Name,
			Type:        ClassifyType(c.Type),
			Required:    c.PrimaryKey,
			Description: desc,
		})
	}
	return cols
}

// ColumnKeys returns the keys of the given export columns, in order.
func ColumnKeys(cols []ExportColumn) []string {
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.Key
	}
	return keys
}
