// Package orchestrator wires the catalog, export monitor, run history,
// and notifications together behind the CLI commands. It owns component
// construction so main stays a thin argument parser.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tabx-cli/tabx/internal/api"
	"github.com/tabx-cli/tabx/internal/auth"
	"github.com/tabx-cli/tabx/internal/config"
	"github.com/tabx-cli/tabx/internal/demo"
	"github.com/tabx-cli/tabx/internal/export"
	"github.com/tabx-cli/tabx/internal/history"
	"github.com/tabx-cli/tabx/internal/logging"
	"github.com/tabx-cli/tabx/internal/notify"
	"github.com/tabx-cli/tabx/internal/schema"
	"github.com/tabx-cli/tabx/internal/tui"
	"github.com/tabx-cli/tabx/internal/wizard"
)

// previewLimit bounds the sample-data fetch used by schema display and
// the wizard preview.
const previewLimit = 10

// Orchestrator holds the wired components for one CLI invocation.
type Orchestrator struct {
	cfg      *config.Config
	catalog  schema.Catalog
	svc      export.Service
	loader   *schema.Loader
	monitor  *export.Monitor
	store    history.Store
	notifier *notify.Notifier
}

// New builds an orchestrator from configuration. Demo mode swaps the
// remote API for the embedded catalog; everything downstream is wired
// identically either way.
func New(cfg *config.Config) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg, notifier: notify.New(cfg.Notify.Slack)}

	if cfg.Demo {
		cat := demo.New()
		o.catalog, o.svc = cat, cat
	} else {
		tokens := auth.FromConfig(cfg.API.Token, cfg.API.TokenFile, config.TokenEnv)
		if _, err := auth.Require(tokens); err != nil {
			return nil, err
		}
		client, err := api.NewClient(cfg.API.BaseURL, tokens, cfg.API.Timeout)
		if err != nil {
			return nil, fmt.Errorf("creating api client: %w", err)
		}
		o.catalog, o.svc = client, client
	}

	o.loader = schema.NewLoader(o.catalog, previewLimit)
	o.monitor = export.NewMonitor(o.svc, cfg.Export.PollInterval, cfg.Export.PollAttempts)
	o.monitor.ShowProgress(true)

	if cfg.History.Disabled {
		o.store = history.Nop{}
	} else {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logging.Warn("history disabled: %v", err)
			o.store = history.Nop{}
		} else {
			o.store = store
		}
	}

	return o, nil
}

// Close releases the history store.
func (o *Orchestrator) Close() error {
	return o.store.Close()
}

// ListTables prints the exportable tables.
func (o *Orchestrator) ListTables(ctx context.Context) error {
	tables, err := o.catalog.ListTables(ctx)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		fmt.Println("No exportable tables available.")
		return nil
	}
	for _, t := range tables {
		fmt.Println(t)
	}
	return nil
}

// ShowSchema prints a table's columns, export policy, and row count.
func (o *Orchestrator) ShowSchema(ctx context.Context, table string) error {
	snap, err := o.loader.Load(ctx, table)
	if err != nil {
		return err
	}

	fmt.Printf("Table: %s\n\n", snap.Table)
	fmt.Printf("%-24s %-16s %-9s %s\n", "Column", "Type", "Nullable", "Key")
	for _, c := range snap.Schema.Columns {
		key := ""
		if c.PrimaryKey {
			key = "PK"
		}
		fmt.Printf("%-24s %-16s %-9v %s\n", c.Name, c.Type, c.Nullable, key)
	}

	if p := snap.Permissions; p != nil {
		fmt.Printf("\nExport allowed: %v\n", p.Export.CanExport)
		if len(p.Export.AllowedFormats) > 0 {
			fmt.Printf("Formats: %s\n", strings.Join(p.Export.AllowedFormats, ", "))
		}
		if p.Export.MaxRowsPerExport > 0 {
			fmt.Printf("Max rows per export: %d\n", p.Export.MaxRowsPerExport)
		}
	}
	if snap.Preview != nil {
		fmt.Printf("\nTotal rows: %d\n", snap.Preview.TotalCount)
	}
	return nil
}

// PrepareRequest builds an export request for the CLI export command,
// running the same policy checks the interactive wizard applies. An
// empty column list selects every exportable column.
func (o *Orchestrator) PrepareRequest(ctx context.Context, table string, columns []string, format string, rowLimit int, search string, filterSpecs []string) (*export.Request, error) {
	w := wizard.New(o.cfg.Export.Format, o.cfg.Export.RowLimit)
	w.SetTable(table)

	snap, err := o.loader.Load(ctx, table)
	if err != nil {
		return nil, err
	}
	w.SetSnapshot(snap)

	if len(columns) > 0 {
		available := make(map[string]bool, len(w.AvailableColumns()))
		for _, c := range w.AvailableColumns() {
			available[c.Key] = true
		}
		w.ClearAll()
		for _, c := range columns {
			if !available[c] {
				return nil, fmt.Errorf("column %q is unknown or not exportable for table %s", c, table)
			}
			w.ToggleColumn(c)
		}
	}
	if format != "" {
		if err := w.SetFormat(format); err != nil {
			return nil, err
		}
	}
	if rowLimit > 0 {
		if err := w.SetRowLimit(rowLimit); err != nil {
			return nil, err
		}
	}
	if search != "" {
		w.SetSearchTerm(search)
	}
	for _, spec := range filterSpecs {
		clause, err := parseFilter(spec)
		if err != nil {
			return nil, err
		}
		w.AddFilter(clause)
	}

	return w.BuildRequest()
}

// RunExport submits the request, follows the job to a terminal state,
// and downloads the result. The run is recorded in history and, when
// configured, reported to Slack.
func (o *Orchestrator) RunExport(ctx context.Context, req *export.Request) error {
	start := time.Now()

	jobID, err := o.monitor.Submit(ctx, req)
	if err != nil {
		return err
	}
	logging.Info("submitted export job %s for table %s", jobID, req.Table)

	runID, err := o.store.RecordSubmitted(req.Table, req.Format, len(req.Columns), req.RowLimit, jobID)
	if err != nil {
		logging.Warn("recording run: %v", err)
	}

	if _, err := o.monitor.Poll(ctx, jobID); err != nil {
		o.finishFailed(runID, req.Table, err)
		return err
	}

	path, err := o.monitor.DownloadTo(ctx, jobID, o.cfg.Export.OutputDir)
	if err != nil {
		o.finishFailed(runID, req.Table, err)
		return err
	}

	if err := o.store.MarkCompleted(runID, path); err != nil {
		logging.Warn("recording run result: %v", err)
	}
	if o.notifier.IsEnabled() {
		if err := o.notifier.ExportCompleted(runID, req.Table, req.Format, path, time.Since(start)); err != nil {
			logging.Warn("slack notification: %v", err)
		}
	}

	fmt.Printf("Export saved to %s\n", path)
	return nil
}

func (o *Orchestrator) finishFailed(runID, table string, cause error) {
	status := history.RunFailed
	if errors.Is(cause, export.ErrTimeout) {
		status = history.RunTimedOut
	}
	if err := o.store.MarkFailed(runID, status, cause.Error()); err != nil {
		logging.Warn("recording run result: %v", err)
	}
	if o.notifier.IsEnabled() {
		if err := o.notifier.ExportFailed(runID, table, cause.Error()); err != nil {
			logging.Warn("slack notification: %v", err)
		}
	}
}

// ShowJobStatus prints the server-side state of an export job.
func (o *Orchestrator) ShowJobStatus(ctx context.Context, jobID string) error {
	status, err := o.svc.ExportStatus(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Printf("Job:    %s\nStatus: %s\n", status.JobID, status.Status)
	if status.ErrorMessage != "" {
		fmt.Printf("Error:  %s\n", status.ErrorMessage)
	}
	return nil
}

// Download fetches a completed job's file into the output directory.
func (o *Orchestrator) Download(ctx context.Context, jobID string) error {
	path, err := o.monitor.DownloadTo(ctx, jobID, o.cfg.Export.OutputDir)
	if err != nil {
		return err
	}
	fmt.Printf("Export saved to %s\n", path)
	return nil
}

// ShowHistory prints all recorded export runs, newest first.
func (o *Orchestrator) ShowHistory() error {
	runs, err := o.store.GetAllRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No export runs recorded.")
		return nil
	}

	fmt.Printf("%-36s %-16s %-7s %-10s %s\n", "Run", "Table", "Format", "Status", "Started")
	for _, r := range runs {
		fmt.Printf("%-36s %-16s %-7s %-10s %s\n",
			r.ID, r.Table, r.Format, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// ShowRunDetails prints one recorded run.
func (o *Orchestrator) ShowRunDetails(runID string) error {
	r, err := o.store.GetRunByID(runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Table:    %s\n", r.Table)
	fmt.Printf("Format:   %s\n", r.Format)
	fmt.Printf("Columns:  %d\n", r.ColumnCount)
	fmt.Printf("Rows:     %d\n", r.RowLimit)
	fmt.Printf("Job:      %s\n", r.JobID)
	fmt.Printf("Status:   %s\n", r.Status)
	fmt.Printf("Started:  %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	if r.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", r.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if r.FilePath != "" {
		fmt.Printf("File:     %s\n", r.FilePath)
	}
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
	return nil
}

// RunWizard launches the interactive export wizard. It gets its own
// monitor with the progress bar off so terminal output stays with the
// TUI.
func (o *Orchestrator) RunWizard() error {
	mon := export.NewMonitor(o.svc, o.cfg.Export.PollInterval, o.cfg.Export.PollAttempts)
	return tui.Run(tui.Deps{
		Catalog:   o.catalog,
		Loader:    schema.NewLoader(o.catalog, previewLimit),
		Monitor:   mon,
		History:   o.store,
		OutputDir: o.cfg.Export.OutputDir,
		Format:    o.cfg.Export.Format,
		RowLimit:  o.cfg.Export.RowLimit,
	})
}

// parseFilter parses a column:op:value flag into a filter clause.
func parseFilter(spec string) (export.FilterClause, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return export.FilterClause{}, fmt.Errorf("invalid filter %q, expected column:op:value", spec)
	}
	switch parts[1] {
	case "eq", "neq", "lt", "lte", "gt", "gte", "like":
	default:
		return export.FilterClause{}, fmt.Errorf("invalid filter op %q in %q", parts[1], spec)
	}
	return export.FilterClause{Column: parts[0], Op: parts[1], Value: parts[2]}, nil
}
