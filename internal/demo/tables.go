package demo

import "github.com/tabx-cli/tabx/internal/schema"

func usersTable() (*schema.TableSchema, *schema.TablePermissions) {
	s := &schema.TableSchema{
		TableName: "users",
		Columns: []schema.Column{
			{Name: "id", Type: "bigint", PrimaryKey: true},
			{Name: "email", Type: "varchar(255)"},
			{Name: "full_name", Type: "varchar(120)", Nullable: true},
			{Name: "active", Type: "boolean"},
			{Name: "created_at", Type: "timestamp with time zone"},
		},
		PrimaryKeys: []string{"id"},
		SampleData: []map[string]any{
			{"id": 1, "email": "ada@example.com", "full_name": "Ada Lovelace", "active": true, "created_at": "2024-01-12T09:30:00Z"},
			{"id": 2, "email": "grace@example.com", "full_name": "Grace Hopper", "active": true, "created_at": "2024-02-03T14:05:00Z"},
			{"id": 3, "email": "alan@example.com", "full_name": "Alan Turing", "active": false, "created_at": "2024-03-21T08:00:00Z"},
		},
	}
	p := &schema.TablePermissions{
		TableName: "users",
		Export: schema.ExportPermission{
			CanExport:        true,
			CanPreview:       true,
			MaxRowsPerExport: 10000,
			AllowedFormats:   []string{"csv", "json"},
		},
	}
	return s, p
}

func ordersTable() (*schema.TableSchema, *schema.TablePermissions) {
	s := &schema.TableSchema{
		TableName: "orders",
		Columns: []schema.Column{
			{Name: "id", Type: "bigserial", PrimaryKey: true},
			{Name: "user_id", Type: "bigint"},
			{Name: "total", Type: "numeric(10,2)"},
			{Name: "items", Type: "jsonb", Nullable: true},
			{Name: "placed_at", Type: "timestamp"},
		},
		PrimaryKeys: []string{"id"},
		SampleData: []map[string]any{
			{"id": 101, "user_id": 1, "total": 42.50, "items": `[{"sku":"A1","qty":2}]`, "placed_at": "2024-04-01T10:00:00Z"},
			{"id": 102, "user_id": 2, "total": 9.99, "items": `[{"sku":"B7","qty":1}]`, "placed_at": "2024-04-02T16:45:00Z"},
		},
	}
	p := &schema.TablePermissions{
		TableName: "orders",
		Export: schema.ExportPermission{
			CanExport:        true,
			CanPreview:       true,
			MaxRowsPerExport: 5000,
			AllowedFormats:   []string{"csv", "json"},
		},
	}
	return s, p
}

// auditLogTable demonstrates column-level restrictions: actor_ip is in
// the schema but not in the allowed column list.
func auditLogTable() (*schema.TableSchema, *schema.TablePermissions) {
	s := &schema.TableSchema{
		TableName: "audit_log",
		Columns: []schema.Column{
			{Name: "id", Type: "bigint", PrimaryKey: true},
			{Name: "action", Type: "varchar(64)"},
			{Name: "actor", Type: "varchar(120)"},
			{Name: "actor_ip", Type: "inet"},
			{Name: "occurred_at", Type: "timestamp"},
		},
		PrimaryKeys: []string{"id"},
		SampleData: []map[string]any{
			{"id": 9001, "action": "login", "actor": "ada@example.com", "actor_ip": "203.0.113.7", "occurred_at": "2024-05-05T07:12:00Z"},
			{"id": 9002, "action": "export", "actor": "grace@example.com", "actor_ip": "203.0.113.9", "occurred_at": "2024-05-05T07:30:00Z"},
		},
	}
	p := &schema.TablePermissions{
		TableName: "audit_log",
		Export: schema.ExportPermission{
			CanExport:        true,
			CanPreview:       true,
			MaxRowsPerExport: 1000,
			AllowedFormats:   []string{"csv"},
			AllowedColumns:   []string{"id", "action", "actor", "occurred_at"},
		},
	}
	return s, p
}
