// Package tui implements the interactive export wizard on top of Bubble
// Tea. It renders the four wizard steps, drives schema loading and job
// polling in the background, and leaves all workflow rules to the wizard
// and export packages.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tabx-cli/tabx/internal/export"
	"github.com/tabx-cli/tabx/internal/history"
	"github.com/tabx-cli/tabx/internal/schema"
	"github.com/tabx-cli/tabx/internal/util"
	"github.com/tabx-cli/tabx/internal/version"
	"github.com/tabx-cli/tabx/internal/wizard"
)

// Deps carries everything the wizard UI needs to do real work.
type Deps struct {
	Catalog   schema.Catalog
	Loader    *schema.Loader
	Monitor   *export.Monitor
	History   history.Store
	OutputDir string
	Format    string
	RowLimit  int
}

// Message types

type tablesMsg struct {
	tables []string
	err    error
}

type snapshotMsg struct {
	table string
	snap  *schema.Snapshot
	err   error
}

type exportDoneMsg struct {
	path string
	err  error
}

// Model is the wizard TUI model.
type Model struct {
	deps Deps
	wiz  *wizard.Wizard

	spinner spinner.Model
	search  textinput.Model
	limit   textinput.Model

	tables      []string
	tableCursor int
	colCursor   int
	focusLimit  bool

	loading    bool
	loadingFor string
	exporting  bool
	done       bool

	exportCancel context.CancelFunc
	resultPath   string
	errMsg       string

	width  int
	height int
}

// NewModel builds the initial model. The table list loads on Init.
func NewModel(deps Deps) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPurple)

	search := textinput.New()
	search.Placeholder = "search term (optional)"
	search.CharLimit = 120
	search.Width = 40

	limit := textinput.New()
	limit.Placeholder = "row limit"
	limit.CharLimit = 9
	limit.Width = 12
	limit.SetValue(strconv.Itoa(deps.RowLimit))

	return Model{
		deps:       deps,
		wiz:        wizard.New(deps.Format, deps.RowLimit),
		spinner:    sp,
		search:     search,
		limit:      limit,
		loading:    true,
		loadingFor: "tables",
	}
}

// Init starts the spinner and kicks off the table listing.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadTablesCmd())
}

func (m Model) loadTablesCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		tables, err := m.deps.Catalog.ListTables(ctx)
		return tablesMsg{tables: tables, err: err}
	}
}

func (m Model) loadSchemaCmd(table string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		snap, err := m.deps.Loader.Load(ctx, table)
		return snapshotMsg{table: table, snap: snap, err: err}
	}
}

// runExportCmd submits the request and follows the job to completion,
// recording the run in history along the way. The returned program
// message carries the downloaded file path or the terminal error.
func (m *Model) runExportCmd(req *export.Request) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.exportCancel = cancel

	mon := m.deps.Monitor
	store := m.deps.History
	outDir := m.deps.OutputDir

	return func() tea.Msg {
		defer cancel()

		jobID, err := mon.Submit(ctx, req)
		if err != nil {
			return exportDoneMsg{err: err}
		}

		runID, herr := store.RecordSubmitted(req.Table, req.Format, len(req.Columns), req.RowLimit, jobID)
		_ = herr // history is best effort

		if _, err := mon.Poll(ctx, jobID); err != nil {
			status := history.RunFailed
			if errors.Is(err, export.ErrTimeout) {
				status = history.RunTimedOut
			}
			_ = store.MarkFailed(runID, status, err.Error())
			return exportDoneMsg{err: err}
		}

		path, err := mon.DownloadTo(ctx, jobID, outDir)
		if err != nil {
			_ = store.MarkFailed(runID, history.RunFailed, err.Error())
			return exportDoneMsg{err: err}
		}
		_ = store.MarkCompleted(runID, path)
		return exportDoneMsg{path: path}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tablesMsg:
		m.loading = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.tables = msg.tables
		m.errMsg = ""
		return m, nil

	case snapshotMsg:
		if errors.Is(msg.err, schema.ErrStale) {
			// A newer selection superseded this load; drop it.
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.wiz.SetSnapshot(msg.snap)
		m.colCursor = 0
		return m, nil

	case exportDoneMsg:
		m.exporting = false
		m.done = true
		m.exportCancel = nil
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		} else {
			m.resultPath = msg.path
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.exporting && m.exportCancel != nil {
			m.exportCancel()
			return m, nil
		}
		return m, tea.Quit
	}

	if m.done {
		switch msg.String() {
		case "q", "enter", "esc":
			return m, tea.Quit
		}
		return m, nil
	}
	if m.exporting || m.loading {
		return m, nil
	}

	// Text inputs capture most keys on the filter step.
	if m.wiz.Step() == wizard.StepFilter {
		return m.handleFilterKey(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "left", "h":
		m.wiz.Back()
		m.errMsg = ""
		return m, nil
	}

	switch m.wiz.Step() {
	case wizard.StepTable:
		return m.handleTableKey(msg)
	case wizard.StepColumns:
		return m.handleColumnsKey(msg)
	case wizard.StepReview:
		return m.handleReviewKey(msg)
	}
	return m, nil
}

func (m Model) handleTableKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.tableCursor > 0 {
			m.tableCursor--
		}
	case "down", "j":
		if m.tableCursor < len(m.tables)-1 {
			m.tableCursor++
		}
	case "enter", "right", "l":
		if len(m.tables) == 0 {
			return m, nil
		}
		table := m.tables[m.tableCursor]
		m.wiz.SetTable(table)
		if err := m.wiz.Next(); err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.loading = true
		m.loadingFor = "schema for " + table
		return m, m.loadSchemaCmd(table)
	}
	return m, nil
}

func (m Model) handleColumnsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols := m.wiz.AvailableColumns()
	switch msg.String() {
	case "up", "k":
		if m.colCursor > 0 {
			m.colCursor--
		}
	case "down", "j":
		if m.colCursor < len(cols)-1 {
			m.colCursor++
		}
	case " ":
		if m.colCursor < len(cols) {
			m.wiz.ToggleColumn(cols[m.colCursor].Key)
		}
	case "a":
		m.wiz.SelectAll()
	case "n":
		m.wiz.ClearAll()
	case "f":
		m.cycleFormat()
	case "enter", "right":
		if err := m.wiz.Next(); err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.search.Focus()
		m.focusLimit = false
		return m, textinput.Blink
	}
	return m, nil
}

// cycleFormat advances to the next format the table's policy allows.
func (m *Model) cycleFormat() {
	formats := export.Formats()
	cur := 0
	for i, f := range formats {
		if f == m.wiz.Format() {
			cur = i
			break
		}
	}
	for i := 1; i <= len(formats); i++ {
		next := formats[(cur+i)%len(formats)]
		if err := m.wiz.SetFormat(next); err == nil {
			return
		}
	}
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.search.Blur()
		m.limit.Blur()
		m.wiz.Back()
		return m, nil
	case tea.KeyTab:
		m.focusLimit = !m.focusLimit
		if m.focusLimit {
			m.search.Blur()
			m.limit.Focus()
		} else {
			m.limit.Blur()
			m.search.Focus()
		}
		return m, textinput.Blink
	case tea.KeyEnter:
		m.wiz.SetSearchTerm(strings.TrimSpace(m.search.Value()))
		if v := strings.TrimSpace(m.limit.Value()); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				m.errMsg = fmt.Sprintf("invalid row limit %q", v)
				return m, nil
			}
			if err := m.wiz.SetRowLimit(n); err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
		}
		if err := m.wiz.Next(); err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.search.Blur()
		m.limit.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusLimit {
		m.limit, cmd = m.limit.Update(msg)
	} else {
		m.search, cmd = m.search.Update(msg)
	}
	return m, cmd
}

func (m Model) handleReviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "y":
		req, err := m.wiz.BuildRequest()
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.exporting = true
		return m, tea.Batch(m.spinner.Tick, m.runExportCmd(req))
	}
	return m, nil
}

// View renders the current step.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styleTitle.Render(fmt.Sprintf("%s v%s", version.Name, version.Version)))
	b.WriteString("\n\n")
	b.WriteString(m.stepBar())
	b.WriteString("\n\n")

	switch {
	case m.done:
		b.WriteString(m.doneView())
	case m.exporting:
		b.WriteString(m.exportingView())
	case m.loading:
		b.WriteString(fmt.Sprintf("%s Loading %s...", m.spinner.View(), m.loadingFor))
	default:
		switch m.wiz.Step() {
		case wizard.StepTable:
			b.WriteString(m.tableView())
		case wizard.StepColumns:
			b.WriteString(m.columnsView())
		case wizard.StepFilter:
			b.WriteString(m.filterView())
		case wizard.StepReview:
			b.WriteString(m.reviewView())
		}
	}

	if m.errMsg != "" {
		b.WriteString("\n\n")
		b.WriteString(styleError.Render("✖ " + m.errMsg))
	}

	b.WriteString("\n\n")
	b.WriteString(m.helpView())
	return b.String()
}

func (m Model) stepBar() string {
	parts := make([]string, 0, 4)
	for i, s := range wizard.Steps() {
		label := fmt.Sprintf("%d. %s", i+1, s.Title)
		switch {
		case i == m.wiz.Step():
			parts = append(parts, styleStepActive.Render(label))
		case i < m.wiz.Step():
			parts = append(parts, styleStepDone.Render("✔ "+label))
		default:
			parts = append(parts, styleStepPending.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) tableView() string {
	if len(m.tables) == 0 {
		return styleDim.Render("No exportable tables available.")
	}
	var b strings.Builder
	b.WriteString("Select a table:\n\n")
	for i, t := range m.tables {
		cursor := "  "
		line := t
		if i == m.tableCursor {
			cursor = styleCursor.Render("❯ ")
			line = styleCursor.Render(t)
		}
		b.WriteString(cursor + line + "\n")
	}
	return b.String()
}

func (m Model) columnsView() string {
	cols := m.wiz.AvailableColumns()
	selected := make(map[string]bool)
	for _, c := range m.wiz.SelectedColumns() {
		selected[c] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Columns for %s (%d of %d selected):\n\n",
		m.wiz.Table(), len(m.wiz.SelectedColumns()), len(cols))

	for i, col := range cols {
		cursor := "  "
		if i == m.colCursor {
			cursor = styleCursor.Render("❯ ")
		}
		check := "[ ]"
		name := fmt.Sprintf("%s  %s", col.Label, styleDim.Render(col.Type))
		if selected[col.Key] {
			check = styleSelected.Render("[x]")
		}
		if col.Required {
			name += styleDim.Render("  (key)")
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", cursor, check, name))
	}

	b.WriteString("\n")
	b.WriteString(styleLabel.Render("Format:"))
	b.WriteString(styleSelected.Render(m.wiz.Format()))
	return b.String()
}

func (m Model) filterView() string {
	var b strings.Builder
	b.WriteString("Filter & preview:\n\n")
	b.WriteString(styleLabel.Render("Search:") + m.search.View() + "\n")
	b.WriteString(styleLabel.Render("Row limit:") + m.limit.View() + "\n")

	if snap := m.deps.Loader.Current(); snap != nil && snap.Preview != nil {
		b.WriteString("\n")
		b.WriteString(m.previewTable(snap))
	}
	return b.String()
}

// previewTable renders the sample rows for the selected columns. Long
// values are truncated so the table stays within the terminal.
func (m Model) previewTable(snap *schema.Snapshot) string {
	cols := m.wiz.SelectedColumns()
	if len(cols) > 6 {
		cols = cols[:6]
	}
	rows := snap.Preview.Rows
	if len(rows) > 5 {
		rows = rows[:5]
	}

	var b strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&b, "%-16s", util.TruncateString(c, 11))
	}
	b.WriteString("\n")
	for _, row := range rows {
		for _, c := range cols {
			fmt.Fprintf(&b, "%-16s", util.TruncateString(fmt.Sprint(row[c]), 11))
		}
		b.WriteString("\n")
	}
	footer := fmt.Sprintf("%d total rows", snap.Preview.TotalCount)
	return styleBox.Render(b.String()) + "\n" + styleDim.Render(footer)
}

func (m Model) reviewView() string {
	var b strings.Builder
	b.WriteString("Review:\n\n")
	b.WriteString(styleLabel.Render("Table:") + m.wiz.Table() + "\n")
	b.WriteString(styleLabel.Render("Columns:") + strconv.Itoa(len(m.wiz.SelectedColumns())) + "\n")
	b.WriteString(styleLabel.Render("Format:") + m.wiz.Format() + "\n")
	b.WriteString(styleLabel.Render("Row limit:") + strconv.Itoa(m.wiz.RowLimit()) + "\n")
	if s := strings.TrimSpace(m.search.Value()); s != "" {
		b.WriteString(styleLabel.Render("Search:") + s + "\n")
	}
	b.WriteString(styleLabel.Render("Output:") + m.deps.OutputDir + "\n")
	b.WriteString("\nPress enter to start the export.")
	return b.String()
}

func (m Model) exportingView() string {
	state := m.deps.Monitor.State().String()
	return fmt.Sprintf("%s Export %s... press ctrl+c to cancel", m.spinner.View(), strings.ToLower(state))
}

func (m Model) doneView() string {
	if m.errMsg != "" {
		return styleError.Render("Export did not complete.")
	}
	return styleSuccess.Render("✔ Export complete") + "\n\n" +
		styleLabel.Render("Saved to:") + m.resultPath
}

func (m Model) helpView() string {
	var keys string
	switch {
	case m.done:
		keys = "enter/q quit"
	case m.exporting:
		keys = "ctrl+c cancel"
	default:
		switch m.wiz.Step() {
		case wizard.StepTable:
			keys = "↑/↓ move • enter select • q quit"
		case wizard.StepColumns:
			keys = "↑/↓ move • space toggle • a all • n none • f format • enter next • esc back"
		case wizard.StepFilter:
			keys = "tab switch field • enter next • esc back"
		case wizard.StepReview:
			keys = "enter export • esc back • q quit"
		}
	}
	return styleHelp.Render(keys)
}

// Run launches the wizard TUI and blocks until it exits.
func Run(deps Deps) error {
	p := tea.NewProgram(NewModel(deps), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running wizard ui: %w", err)
	}
	return nil
}
