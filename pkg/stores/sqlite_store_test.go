package stores

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/externalcpi/pkg/cpi"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check should fail before Init")
	}
	if err := store.Migrate(ctx); err == nil {
		t.Error("Migrate should fail before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"director_attributes", "cpi_calls"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Migrations are idempotent
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestDirectorUUIDIsCreatedOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetAttribute(ctx, AttributeDirectorUUID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAttribute() before creation error = %v, want ErrNotFound", err)
	}

	first, err := store.DirectorUUID(ctx)
	if err != nil {
		t.Fatalf("DirectorUUID() error = %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("DirectorUUID() = %q is not a uuid", first)
	}

	second, err := store.DirectorUUID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("DirectorUUID() changed: %s then %s", first, second)
	}
}

func TestDirectorUUIDPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "director.db")
	ctx := context.Background()

	store, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	first, err := store.DirectorUUID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store, err = Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	second, err := store.DirectorUUID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("director uuid changed across reopen: %s then %s", first, second)
	}
}

func TestDirectorUUIDConcurrentFirstUse(t *testing.T) {
	store, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "director.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = store.DirectorUUID(context.Background())
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("DirectorUUID() error = %v", errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("got differing uuids %s and %s", ids[0], ids[i])
		}
	}
}

func TestIdentity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	generated, err := store.Identity(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if generated.DirectorUUID() == "" {
		t.Error("generated identity is empty")
	}

	configured, err := store.Identity(ctx, "fake-director-uuid")
	if err != nil {
		t.Fatal(err)
	}
	if configured.DirectorUUID() != "fake-director-uuid" {
		t.Errorf("Identity() = %s", configured)
	}

	stored, err := store.DirectorUUID(ctx)
	if err != nil || stored != "fake-director-uuid" {
		t.Errorf("stored uuid = %s, %v", stored, err)
	}
}

func TestRecordAndListCalls(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	entries := []*CallEntry{
		{CPI: "aws", Method: "create_vm", RequestID: "req-1", Arguments: `["agent"]`, StartedAt: base, Duration: 2 * time.Second, ExitStatus: 0, Outcome: cpi.OutcomeOK},
		{CPI: "aws", Method: "delete_disk", RequestID: "req-1", StartedAt: base.Add(time.Minute), ExitStatus: 1, Outcome: cpi.OutcomeCPIError, ErrorKind: "disk_not_found", ErrorType: cpi.TypeDiskNotFound, ErrorMessage: "gone"},
		{CPI: "gcp", Method: "ping", RequestID: "req-2", StartedAt: base.Add(2 * time.Minute), ExitStatus: 0, Outcome: cpi.OutcomeOK},
		{CPI: "aws", Method: "create_disk", RequestID: "req-3", StartedAt: base.Add(3 * time.Minute), Outcome: cpi.OutcomeCPIError, ErrorKind: "no_disk_space", OkToRetry: true},
	}
	for _, e := range entries {
		if err := store.RecordCall(ctx, e); err != nil {
			t.Fatalf("RecordCall() error = %v", err)
		}
		if e.ID == 0 {
			t.Error("RecordCall() did not set ID")
		}
	}

	tests := []struct {
		name    string
		filter  CallFilter
		methods []string
	}{
		{"all newest first", CallFilter{}, []string{"create_disk", "ping", "delete_disk", "create_vm"}},
		{"by cpi", CallFilter{CPI: "gcp"}, []string{"ping"}},
		{"by method", CallFilter{Method: "create_vm"}, []string{"create_vm"}},
		{"by request", CallFilter{RequestID: "req-1"}, []string{"delete_disk", "create_vm"}},
		{"by outcome", CallFilter{Outcome: cpi.OutcomeCPIError}, []string{"create_disk", "delete_disk"}},
		{"since", CallFilter{Since: base.Add(90 * time.Second)}, []string{"create_disk", "ping"}},
		{"limit and offset", CallFilter{Limit: 2, Offset: 1}, []string{"ping", "delete_disk"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListCalls(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListCalls() error = %v", err)
			}
			if len(got) != len(tt.methods) {
				t.Fatalf("ListCalls() returned %d entries, want %d", len(got), len(tt.methods))
			}
			for i, e := range got {
				if e.Method != tt.methods[i] {
					t.Errorf("entry %d method = %s, want %s", i, e.Method, tt.methods[i])
				}
			}
		})
	}

	got, err := store.ListCalls(ctx, CallFilter{Method: "create_vm"})
	if err != nil {
		t.Fatal(err)
	}
	e := got[0]
	if !e.StartedAt.Equal(base) || e.Duration != 2*time.Second || e.Arguments != `["agent"]` {
		t.Errorf("round-tripped entry = %+v", e)
	}

	got, err = store.ListCalls(ctx, CallFilter{Method: "create_disk"})
	if err != nil {
		t.Fatal(err)
	}
	if !got[0].OkToRetry || got[0].ErrorKind != "no_disk_space" || got[0].Arguments != "[]" {
		t.Errorf("create_disk entry = %+v", got[0])
	}
}

func TestPruneCalls(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Hour} {
		if err := store.RecordCall(ctx, &CallEntry{CPI: "aws", Method: "ping", StartedAt: now.Add(-age), Outcome: cpi.OutcomeOK}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.PruneCalls(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneCalls() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PruneCalls() = %d, want 2", n)
	}

	left, _ := store.ListCalls(ctx, CallFilter{})
	if len(left) != 1 {
		t.Errorf("%d entries left, want 1", len(left))
	}
}
