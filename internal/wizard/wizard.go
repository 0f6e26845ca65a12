// Package wizard implements the 4-step export configuration flow as a
// pure state machine: table selection, fields and format, filters and
// preview, review and execute. It owns the aggregate request state and
// gates forward navigation on per-step validity; rendering is left to
// the CLI and TUI front-ends.
package wizard

import (
	"fmt"

	"github.com/tabx-cli/tabx/internal/export"
	"github.com/tabx-cli/tabx/internal/schema"
)

// Step indices of the linear flow.
const (
	StepTable   = 0 // pick a table
	StepColumns = 1 // pick columns and a format
	StepFilter  = 2 // optional filters and preview
	StepReview  = 3 // review and execute
	stepCount   = 4
)

// StepInfo describes one wizard screen.
type StepInfo struct {
	ID          string
	Title       string
	Description string
}

var steps = [stepCount]StepInfo{
	{ID: "table", Title: "Select Table", Description: "Choose the table to export"},
	{ID: "fields", Title: "Fields & Format", Description: "Choose columns and an output format"},
	{ID: "filter", Title: "Filter & Preview", Description: "Optionally filter and preview the data"},
	{ID: "execute", Title: "Review & Export", Description: "Confirm the configuration and run the export"},
}

// Steps returns the step metadata in flow order.
func Steps() []StepInfo {
	return steps[:]
}

// Wizard is the export configuration state machine. The zero value is not
// usable; construct with New.
type Wizard struct {
	step int

	table      string
	columns    []string
	format     string
	filters    []export.FilterClause
	rowLimit   int
	searchTerm string
	options    map[string]any

	available []schema.ExportColumn
	perms     *schema.TablePermissions
}

// New creates a wizard at the table-selection step with the given default
// format and row limit.
func New(defaultFormat string, defaultRowLimit int) *Wizard {
	return &Wizard{
		format:   defaultFormat,
		rowLimit: defaultRowLimit,
		options:  make(map[string]any),
	}
}

// Step returns the current step index (0–3).
func (w *Wizard) Step() int {
	return w.step
}

// CurrentStep returns the metadata for the current step.
func (w *Wizard) CurrentStep() StepInfo {
	return steps[w.step]
}

// CanGoNext reports whether the current step's required fields are set.
// Step 0 needs a table; step 1 needs at least one column and a format;
// steps 2 and 3 are always valid since filtering is optional.
func (w *Wizard) CanGoNext() bool {
	switch w.step {
	case StepTable:
		return w.table != ""
	case StepColumns:
		return len(w.columns) > 0 && w.format != ""
	default:
		return true
	}
}

// Next advances one step when the current step is valid.
func (w *Wizard) Next() error {
	return w.GoTo(w.step + 1)
}

// Back moves one step backward. Going back is always allowed.
func (w *Wizard) Back() {
	if w.step > 0 {
		w.step--
	}
}

// GoTo navigates to step. Backward navigation is unrestricted; forward
// navigation advances one step at a time and only when the current step
// is valid, so required configuration cannot be skipped.
func (w *Wizard) GoTo(step int) error {
	if step < 0 || step >= stepCount {
		return fmt.Errorf("no such step: %d", step)
	}
	if step <= w.step {
		w.step = step
		return nil
	}
	if step > w.step+1 {
		return fmt.Errorf("cannot skip ahead to %q", steps[step].ID)
	}
	if !w.CanGoNext() {
		return fmt.Errorf("%s is incomplete: %s", steps[w.step].Title, w.missingReason())
	}
	w.step = step
	return nil
}

func (w *Wizard) missingReason() string {
	switch w.step {
	case StepTable:
		return "select a table"
	case StepColumns:
		if len(w.columns) == 0 {
			return "select at least one column"
		}
		return "choose an export format"
	default:
		return ""
	}
}

// Table returns the selected table.
func (w *Wizard) Table() string {
	return w.table
}

// SetTable selects a table. Changing the table clears the column
// selection and the loaded schema so the new table's columns repopulate.
func (w *Wizard) SetTable(name string) {
	if name == w.table {
		return
	}
	w.table = name
	w.columns = nil
	w.available = nil
	w.perms = nil
	w.filters = nil
}

// SetSnapshot installs a loaded schema snapshot. When no columns are
// selected yet, all derived columns are auto-selected ("export
// everything" default); an existing selection is left untouched, so
// re-loading the same schema is idempotent.
func (w *Wizard) SetSnapshot(snap *schema.Snapshot) {
	if snap == nil || snap.Table != w.table {
		return
	}
	w.available = snap.Columns()
	w.perms = snap.Permissions
	if len(w.columns) == 0 {
		w.columns = schema.ColumnKeys(w.available)
	}
}

// AvailableColumns returns the derived export columns for the table.
func (w *Wizard) AvailableColumns() []schema.ExportColumn {
	return w.available
}

// SelectedColumns returns the currently selected column keys, in order.
func (w *Wizard) SelectedColumns() []string {
	return w.columns
}

// ToggleColumn adds or removes a column from the selection. Unknown keys
// are ignored. Selection order follows schema order regardless of toggle
// order.
func (w *Wizard) ToggleColumn(key string) {
	for i, c := range w.columns {
		if c == key {
			w.columns = append(w.columns[:i], w.columns[i+1:]...)
			return
		}
	}
	for _, col := range w.available {
		if col.Key == key {
			w.columns = append(w.columns, key)
			w.reorderColumns()
			return
		}
	}
}

// reorderColumns normalizes the selection to schema order.
func (w *Wizard) reorderColumns() {
	selected := make(map[string]bool, len(w.columns))
	for _, c := range w.columns {
		selected[c] = true
	}
	ordered := w.columns[:0]
	for _, col := range w.available {
		if selected[col.Key] {
			ordered = append(ordered, col.Key)
		}
	}
	w.columns = ordered
}

// SelectAll selects every available column, in schema order.
func (w *Wizard) SelectAll() {
	w.columns = schema.ColumnKeys(w.available)
}

// ClearAll empties the column selection.
func (w *Wizard) ClearAll() {
	w.columns = nil
}

// Format returns the chosen export format.
func (w *Wizard) Format() string {
	return w.format
}

// SetFormat chooses the export format, checking it against the supported
// set and the table's export policy.
func (w *Wizard) SetFormat(f string) error {
	if !export.ValidFormat(f) {
		return fmt.Errorf("unsupported export format %q", f)
	}
	if !w.perms.FormatAllowed(f) {
		return fmt.Errorf("format %q is not permitted for table %s", f, w.table)
	}
	w.format = f
	return nil
}

// AddFilter appends a filter clause.
func (w *Wizard) AddFilter(clause export.FilterClause) {
	w.filters = append(w.filters, clause)
}

// SetRowLimit sets the maximum rows to export. The table's policy cap
// applies on top when present.
func (w *Wizard) SetRowLimit(n int) error {
	if n <= 0 {
		return fmt.Errorf("row limit must be positive, got %d", n)
	}
	w.rowLimit = n
	return nil
}

// RowLimit returns the effective row limit after applying the table's
// per-export cap.
func (w *Wizard) RowLimit() int {
	limit := w.rowLimit
	if w.perms != nil && w.perms.Export.MaxRowsPerExport > 0 && limit > w.perms.Export.MaxRowsPerExport {
		limit = w.perms.Export.MaxRowsPerExport
	}
	return limit
}

// SetSearchTerm sets the free-text search filter.
func (w *Wizard) SetSearchTerm(s string) {
	w.searchTerm = s
}

// SetOption stores an extra export option passed through to the server.
func (w *Wizard) SetOption(key string, value any) {
	w.options[key] = value
}

// BuildRequest assembles the export request from the accumulated state.
// It fails when the invariants do not hold, so an incomplete wizard can
// never produce a submittable request.
func (w *Wizard) BuildRequest() (*export.Request, error) {
	if w.perms != nil && !w.perms.Export.CanExport {
		return nil, fmt.Errorf("export of table %s is not permitted", w.table)
	}
	// The default format installed by New never goes through SetFormat,
	// so the table policy has to be re-checked here.
	if !w.perms.FormatAllowed(w.format) {
		return nil, fmt.Errorf("format %q is not permitted for table %s", w.format, w.table)
	}

	req := &export.Request{
		Table:      w.table,
		Columns:    append([]string(nil), w.columns...),
		Format:     w.format,
		Filters:    append([]export.FilterClause(nil), w.filters...),
		RowLimit:   w.RowLimit(),
		SearchTerm: w.searchTerm,
	}
	if len(w.options) > 0 {
		req.Options = w.options
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
