package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tabx-cli/tabx/internal/logging"
)

// ErrStale is returned by Load when a newer load for a different table was
// started before this one finished. The caller should drop the result.
var ErrStale = errors.New("schema load superseded by a newer selection")

// Snapshot bundles everything the wizard needs about one selected table.
// Permissions and Preview may be nil when their fetches failed; those
// failures are advisory and logged rather than surfaced.
type Snapshot struct {
	Table       string
	Schema      *TableSchema
	Permissions *TablePermissions
	Preview     *Preview
}

// Columns returns the snapshot's derived export columns.
func (s *Snapshot) Columns() []ExportColumn {
	if s == nil {
		return nil
	}
	return DeriveExportColumns(s.Schema, s.Permissions)
}

// Loader keeps a table's schema, permissions, and preview in sync with the
// current selection. Each Load is tagged with a generation; a result is
// applied only while its generation is still current, so a slow response
// for a previously selected table can never clobber the current one.
type Loader struct {
	catalog      Catalog
	previewLimit int

	gen atomic.Uint64

	mu      sync.Mutex
	current *Snapshot
}

// NewLoader creates a Loader over the given catalog. previewLimit bounds
// the sample-data fetch; values <= 0 default to 10 rows.
func NewLoader(catalog Catalog, previewLimit int) *Loader {
	if previewLimit <= 0 {
		previewLimit = 10
	}
	return &Loader{catalog: catalog, previewLimit: previewLimit}
}

// Load fetches schema, permissions, and preview for table concurrently.
// A schema failure is a hard error; permission and preview failures are
// logged and leave the corresponding field nil. Returns ErrStale when a
// newer Load started before this one completed.
func (l *Loader) Load(ctx context.Context, table string) (*Snapshot, error) {
	if table == "" {
		return nil, fmt.Errorf("no table selected")
	}

	myGen := l.gen.Add(1)
	snap := &Snapshot{Table: table}

	var wg sync.WaitGroup
	var schemaErr error

	wg.Add(3)
	go func() {
		defer wg.Done()
		s, err := l.catalog.TableSchema(ctx, table)
		if err != nil {
			schemaErr = err
			return
		}
		snap.Schema = s
	}()
	go func() {
		defer wg.Done()
		p, err := l.catalog.TablePermissions(ctx, table)
		if err != nil {
			// Missing permissions mean "unknown, not blocking".
			logging.Warn("permissions for %s unavailable: %v", table, err)
			return
		}
		snap.Permissions = p
	}()
	go func() {
		defer wg.Done()
		pv, err := l.catalog.TableData(ctx, table, l.previewLimit)
		if err != nil {
			logging.Warn("preview for %s unavailable: %v", table, err)
			return
		}
		snap.Preview = pv
	}()
	wg.Wait()

	// The staleness check and the publish happen under one lock so a
	// newer load cannot slip its snapshot in between them and then be
	// overwritten by this older one.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gen.Load() != myGen {
		logging.Debug("discarding stale schema load for %s", table)
		return nil, ErrStale
	}

	if schemaErr != nil {
		return nil, fmt.Errorf("loading schema for %s: %w", table, schemaErr)
	}

	l.current = snap
	return snap, nil
}

// Current returns the most recently applied snapshot, or nil.
func (l *Loader) Current() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
