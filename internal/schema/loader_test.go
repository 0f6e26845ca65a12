package schema

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeCatalog serves canned responses and can block individual fetches to
// simulate slow backends.
type fakeCatalog struct {
	mu       sync.Mutex
	schemas  map[string]*TableSchema
	perms    map[string]*TablePermissions
	previews map[string]*Preview

	schemaErr error
	permErr   error
	dataErr   error

	schemaGate    chan struct{} // when set, TableSchema blocks until closed
	gateTable     string        // when set, only this table blocks on the gate
	schemaEntered chan string   // when set, receives the table of each schema fetch
}

func (f *fakeCatalog) ListTables(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.schemas {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeCatalog) TableSchema(ctx context.Context, table string) (*TableSchema, error) {
	if f.schemaEntered != nil {
		f.schemaEntered <- table
	}
	if f.schemaGate != nil && (f.gateTable == "" || f.gateTable == table) {
		<-f.schemaGate
	}
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schemas[table]
	if !ok {
		return nil, errors.New("no such table")
	}
	return s, nil
}

func (f *fakeCatalog) TablePermissions(ctx context.Context, table string) (*TablePermissions, error) {
	if f.permErr != nil {
		return nil, f.permErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[table], nil
}

func (f *fakeCatalog) TableData(ctx context.Context, table string, limit int) (*Preview, error) {
	if f.dataErr != nil {
		return nil, f.dataErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.previews[table], nil
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		schemas: map[string]*TableSchema{
			"users":  testSchema(),
			"orders": {TableName: "orders", Columns: []Column{{Name: "id", Type: "bigint", PrimaryKey: true}}},
		},
		perms: map[string]*TablePermissions{
			"users": {TableName: "users", Export: ExportPermission{CanExport: true}},
		},
		previews: map[string]*Preview{
			"users": {Rows: []map[string]any{{"id": 1}}, TotalCount: 42},
		},
	}
}

func TestLoaderLoad(t *testing.T) {
	loader := NewLoader(newFakeCatalog(), 10)

	snap, err := loader.Load(context.Background(), "users")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if snap.Schema == nil || snap.Schema.TableName != "users" {
		t.Fatalf("unexpected schema: %+v", snap.Schema)
	}
	if snap.Permissions == nil {
		t.Error("expected permissions")
	}
	if snap.Preview == nil || snap.Preview.TotalCount != 42 {
		t.Errorf("unexpected preview: %+v", snap.Preview)
	}
	if loader.Current() != snap {
		t.Error("Current() should return the applied snapshot")
	}
}

func TestLoaderSchemaFailureIsHard(t *testing.T) {
	cat := newFakeCatalog()
	cat.schemaErr = errors.New("boom")
	loader := NewLoader(cat, 10)

	if _, err := loader.Load(context.Background(), "users"); err == nil {
		t.Fatal("expected error when schema fetch fails")
	}
	if loader.Current() != nil {
		t.Error("failed load must not become current")
	}
}

func TestLoaderPermissionFailureIsSoft(t *testing.T) {
	cat := newFakeCatalog()
	cat.permErr = errors.New("403")
	cat.dataErr = errors.New("503")
	loader := NewLoader(cat, 10)

	snap, err := loader.Load(context.Background(), "users")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if snap.Permissions != nil {
		t.Error("expected nil permissions after soft failure")
	}
	if snap.Preview != nil {
		t.Error("expected nil preview after soft failure")
	}
	if snap.Schema == nil {
		t.Error("schema should still load")
	}
}

func TestLoaderStaleGeneration(t *testing.T) {
	cat := newFakeCatalog()
	gate := make(chan struct{})
	cat.schemaGate = gate
	loader := NewLoader(cat, 10)

	firstDone := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), "users")
		firstDone <- err
	}()

	// Bump the generation while the first load is still blocked; the fake
	// blocks every schema fetch on the same gate, so run the second load
	// in a goroutine and release both together.
	secondDone := make(chan error, 1)
	secondSnap := make(chan *Snapshot, 1)
	go func() {
		s, err := loader.Load(context.Background(), "orders")
		secondSnap <- s
		secondDone <- err
	}()

	close(gate)

	errFirst := <-firstDone
	errSecond := <-secondDone

	// Exactly one of the two loads is stale: whichever registered its
	// generation first. The newer one must succeed and become current.
	if errors.Is(errFirst, ErrStale) {
		if errSecond != nil {
			t.Fatalf("second load error: %v", errSecond)
		}
		if cur := loader.Current(); cur == nil || cur.Table != "orders" {
			t.Errorf("current = %+v, want orders", cur)
		}
	} else if errors.Is(errSecond, ErrStale) {
		if errFirst != nil {
			t.Fatalf("first load error: %v", errFirst)
		}
		if cur := loader.Current(); cur == nil || cur.Table != "users" {
			t.Errorf("current = %+v, want users", cur)
		}
	} else if errFirst != nil || errSecond != nil {
		t.Fatalf("unexpected errors: first=%v second=%v", errFirst, errSecond)
	}
}

func TestLoaderSlowLoadCannotOverwriteNewer(t *testing.T) {
	cat := newFakeCatalog()
	gate := make(chan struct{})
	cat.schemaGate = gate
	cat.gateTable = "users"
	entered := make(chan string, 2)
	cat.schemaEntered = entered
	loader := NewLoader(cat, 10)

	slowDone := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), "users")
		slowDone <- err
	}()
	if table := <-entered; table != "users" {
		t.Fatalf("first schema fetch is for %q, want users", table)
	}

	// A newer selection starts and finishes while the first load is still
	// blocked in its schema fetch.
	snap, err := loader.Load(context.Background(), "orders")
	if err != nil {
		t.Fatalf("newer load error: %v", err)
	}
	<-entered

	// The first load now completes; it must not replace the newer snapshot.
	close(gate)
	if err := <-slowDone; !errors.Is(err, ErrStale) {
		t.Fatalf("slow load error = %v, want ErrStale", err)
	}
	if cur := loader.Current(); cur != snap {
		t.Errorf("current = %+v, want the newer orders snapshot", cur)
	}
}

func TestLoaderEmptyTable(t *testing.T) {
	loader := NewLoader(newFakeCatalog(), 10)
	if _, err := loader.Load(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty table name")
	}
}
