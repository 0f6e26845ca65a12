package wizard

import (
	"reflect"
	"testing"

	"github.com/tabx-cli/tabx/internal/export"
	"github.com/tabx-cli/tabx/internal/schema"
)

func usersSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Table: "users",
		Schema: &schema.TableSchema{
			TableName: "users",
			Columns: []schema.Column{
				{Name: "id", Type: "bigint", PrimaryKey: true},
				{Name: "email", Type: "varchar(255)"},
				{Name: "active", Type: "boolean"},
				{Name: "created_at", Type: "timestamp"},
			},
			PrimaryKeys: []string{"id"},
		},
		Permissions: &schema.TablePermissions{
			TableName: "users",
			Export:    schema.ExportPermission{CanExport: true},
		},
	}
}

func configuredWizard() *Wizard {
	w := New(export.FormatCSV, 1000)
	w.SetTable("users")
	w.SetSnapshot(usersSnapshot())
	return w
}

func TestStepGating(t *testing.T) {
	w := New(export.FormatCSV, 1000)

	// Step 0: no table selected.
	if w.CanGoNext() {
		t.Error("step 0 should be invalid without a table")
	}
	if err := w.Next(); err == nil {
		t.Error("Next() should fail at invalid step 0")
	}

	w.SetTable("users")
	if !w.CanGoNext() {
		t.Error("step 0 should be valid with a table")
	}
	if err := w.Next(); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	// Step 1: no columns yet (schema not loaded).
	if w.CanGoNext() {
		t.Error("step 1 should be invalid without columns")
	}
	w.SetSnapshot(usersSnapshot())
	if !w.CanGoNext() {
		t.Error("step 1 should be valid with auto-selected columns and a format")
	}

	w.ClearAll()
	if w.CanGoNext() {
		t.Error("step 1 should be invalid after clearing columns")
	}
	w.SelectAll()

	if err := w.Next(); err != nil {
		t.Fatalf("Next() to step 2: %v", err)
	}
	// Steps 2 and 3: always valid, filtering is optional.
	if !w.CanGoNext() {
		t.Error("step 2 should always be valid")
	}
	if err := w.Next(); err != nil {
		t.Fatalf("Next() to step 3: %v", err)
	}
	if !w.CanGoNext() {
		t.Error("step 3 should always be valid")
	}
}

func TestNoSkippingForward(t *testing.T) {
	w := configuredWizard()

	if err := w.GoTo(StepReview); err == nil {
		t.Error("jumping from step 0 to step 3 should fail")
	}
	if w.Step() != StepTable {
		t.Errorf("step = %d, want unchanged 0", w.Step())
	}
}

func TestBackwardNavigationAlwaysAllowed(t *testing.T) {
	w := configuredWizard()
	if err := w.Next(); err != nil {
		t.Fatal(err)
	}
	if err := w.Next(); err != nil {
		t.Fatal(err)
	}

	if err := w.GoTo(StepTable); err != nil {
		t.Errorf("backward GoTo failed: %v", err)
	}
	if w.Step() != StepTable {
		t.Errorf("step = %d, want 0", w.Step())
	}

	w.Back()
	if w.Step() != StepTable {
		t.Error("Back at step 0 should stay at 0")
	}
}

func TestTableChangeResetsColumns(t *testing.T) {
	w := configuredWizard()
	if len(w.SelectedColumns()) == 0 {
		t.Fatal("expected auto-selected columns")
	}

	w.SetTable("orders")
	if len(w.SelectedColumns()) != 0 {
		t.Errorf("columns = %v, want empty after table change", w.SelectedColumns())
	}
	if len(w.AvailableColumns()) != 0 {
		t.Error("available columns should reset with the table")
	}

	// Re-selecting the same table is a no-op.
	w.SetTable("orders")
	if w.Table() != "orders" {
		t.Errorf("table = %q, want orders", w.Table())
	}
}

func TestAutoSelectIdempotent(t *testing.T) {
	w := configuredWizard()

	w.ToggleColumn("email") // drop email
	before := append([]string(nil), w.SelectedColumns()...)

	// Re-loading the same schema must not change a non-empty selection.
	w.SetSnapshot(usersSnapshot())
	if !reflect.DeepEqual(w.SelectedColumns(), before) {
		t.Errorf("selection changed on re-load: %v -> %v", before, w.SelectedColumns())
	}
}

func TestSelectAllClearAllRoundTrip(t *testing.T) {
	w := configuredWizard()
	want := []string{"id", "email", "active", "created_at"}

	for i := 0; i < 3; i++ {
		w.ClearAll()
		if len(w.SelectedColumns()) != 0 {
			t.Fatalf("round %d: ClearAll left %v", i, w.SelectedColumns())
		}
		w.SelectAll()
		if !reflect.DeepEqual(w.SelectedColumns(), want) {
			t.Fatalf("round %d: SelectAll = %v, want %v", i, w.SelectedColumns(), want)
		}
	}
}

func TestToggleKeepsSchemaOrder(t *testing.T) {
	w := configuredWizard()
	w.ClearAll()

	// Toggle in reverse order; the selection must come out in schema order.
	w.ToggleColumn("created_at")
	w.ToggleColumn("id")
	w.ToggleColumn("email")

	want := []string{"id", "email", "created_at"}
	if !reflect.DeepEqual(w.SelectedColumns(), want) {
		t.Errorf("selection = %v, want schema order %v", w.SelectedColumns(), want)
	}

	w.ToggleColumn("unknown")
	if !reflect.DeepEqual(w.SelectedColumns(), want) {
		t.Errorf("unknown key changed selection: %v", w.SelectedColumns())
	}
}

func TestSetFormat(t *testing.T) {
	w := configuredWizard()

	if err := w.SetFormat("parquet"); err == nil {
		t.Error("unsupported format should fail")
	}
	if err := w.SetFormat(export.FormatJSON); err != nil {
		t.Errorf("SetFormat(json) error: %v", err)
	}

	// Restrict formats via policy.
	snap := usersSnapshot()
	snap.Permissions.Export.AllowedFormats = []string{"csv"}
	w2 := New(export.FormatCSV, 1000)
	w2.SetTable("users")
	w2.SetSnapshot(snap)
	if err := w2.SetFormat(export.FormatExcel); err == nil {
		t.Error("policy-forbidden format should fail")
	}
}

func TestDefaultFormatCheckedAgainstPolicy(t *testing.T) {
	// The default format never goes through SetFormat, so the policy
	// check must also fire when the request is assembled.
	snap := usersSnapshot()
	snap.Permissions.Export.AllowedFormats = []string{export.FormatJSON}

	w := New(export.FormatCSV, 1000)
	w.SetTable("users")
	w.SetSnapshot(snap)

	if _, err := w.BuildRequest(); err == nil {
		t.Error("default csv must be rejected on a json-only table")
	}

	if err := w.SetFormat(export.FormatJSON); err != nil {
		t.Fatalf("SetFormat(json) error: %v", err)
	}
	req, err := w.BuildRequest()
	if err != nil {
		t.Fatalf("BuildRequest() error: %v", err)
	}
	if req.Format != export.FormatJSON {
		t.Errorf("format = %q, want json", req.Format)
	}
}

func TestRowLimitCappedByPolicy(t *testing.T) {
	snap := usersSnapshot()
	snap.Permissions.Export.MaxRowsPerExport = 500

	w := New(export.FormatCSV, 10000)
	w.SetTable("users")
	w.SetSnapshot(snap)

	if got := w.RowLimit(); got != 500 {
		t.Errorf("RowLimit() = %d, want capped 500", got)
	}
	if err := w.SetRowLimit(0); err == nil {
		t.Error("non-positive row limit should fail")
	}
	if err := w.SetRowLimit(100); err != nil {
		t.Fatalf("SetRowLimit error: %v", err)
	}
	if got := w.RowLimit(); got != 100 {
		t.Errorf("RowLimit() = %d, want 100 under the cap", got)
	}
}

func TestBuildRequest(t *testing.T) {
	w := configuredWizard()
	w.SetSearchTerm("gmail")
	w.AddFilter(export.FilterClause{Column: "active", Op: "eq", Value: true})

	req, err := w.BuildRequest()
	if err != nil {
		t.Fatalf("BuildRequest() error: %v", err)
	}
	if req.Table != "users" || req.Format != export.FormatCSV {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(req.Columns) != 4 {
		t.Errorf("columns = %v, want all 4", req.Columns)
	}
	if len(req.Filters) != 1 || req.SearchTerm != "gmail" {
		t.Errorf("filters/search not carried: %+v", req)
	}
}

func TestBuildRequestInvariants(t *testing.T) {
	w := configuredWizard()
	w.ClearAll()
	if _, err := w.BuildRequest(); err == nil {
		t.Error("empty column selection must not produce a request")
	}

	snap := usersSnapshot()
	snap.Permissions.Export.CanExport = false
	w2 := New(export.FormatCSV, 1000)
	w2.SetTable("users")
	w2.SetSnapshot(snap)
	if _, err := w2.BuildRequest(); err == nil {
		t.Error("CanExport=false must block the request")
	}
}

func TestStaleSnapshotIgnored(t *testing.T) {
	w := configuredWizard()
	before := append([]string(nil), w.SelectedColumns()...)

	stale := usersSnapshot()
	stale.Table = "orders" // response for a previously selected table
	w.SetSnapshot(stale)

	if !reflect.DeepEqual(w.SelectedColumns(), before) {
		t.Errorf("stale snapshot applied: %v", w.SelectedColumns())
	}
}

func TestSteps(t *testing.T) {
	infos := Steps()
	if len(infos) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(infos))
	}
	wantIDs := []string{"table", "fields", "filter", "execute"}
	for i, want := range wantIDs {
		if infos[i].ID != want {
			t.Errorf("step %d ID = %q, want %q", i, infos[i].ID, want)
		}
	}
}
