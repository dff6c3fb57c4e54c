package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/encore/internal/database"
	"github.com/sydlexius/encore/internal/tourcache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db, dbPath
}

func setupTestService(t *testing.T) (*Service, *tourcache.SQLiteStore, string) {
	t.Helper()
	db, dbPath := setupTestDB(t)
	store := tourcache.NewSQLiteStore(db)
	return NewService(db, dbPath, store, time.Hour, testLogger()), store, dbPath
}

func TestStatus(t *testing.T) {
	svc, store, _ := setupTestService(t)
	ctx := context.Background()
	if err := store.Set(ctx, "slug:muse", []byte("muse-13d6a9c1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if st.DBFileSize <= 0 {
		t.Error("expected positive DB file size")
	}
	if st.PageSize <= 0 {
		t.Error("expected positive page size")
	}
	if st.PageCount <= 0 {
		t.Error("expected positive page count")
	}
	if st.SchemaVersion != 1 {
		t.Errorf("expected schema version 1, got %d", st.SchemaVersion)
	}
	if st.Entries.Live != 1 || st.Entries.Slugs != 1 {
		t.Errorf("unexpected entry stats: %+v", st.Entries)
	}
	if st.LastOptimizeAt != "" || st.LastPurgeAt != "" {
		t.Error("expected empty maintenance timestamps initially")
	}
	if st.ScheduleInterval != "1h0m0s" {
		t.Errorf("expected 1h interval, got %s", st.ScheduleInterval)
	}
}

func TestStatusInMemory(t *testing.T) {
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	svc := NewService(db, database.MemoryPath, tourcache.NewSQLiteStore(db), 0, testLogger())

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.DBFileSize != 0 {
		t.Errorf("expected no file size for an in-memory db, got %d", st.DBFileSize)
	}
	if st.ScheduleInterval != DefaultInterval.String() {
		t.Errorf("expected default interval, got %s", st.ScheduleInterval)
	}
}

func TestOptimize(t *testing.T) {
	svc, store, _ := setupTestService(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_ = store.Set(ctx, "tours:test-"+string(rune('A'+i%26)), []byte("{}"), 0)
	}

	if err := svc.Optimize(ctx); err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	st, _ := svc.Status(ctx)
	if st.LastOptimizeAt == "" {
		t.Error("expected last optimize time to be set after optimize")
	}
}

func TestVacuum(t *testing.T) {
	svc, store, dbPath := setupTestService(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_ = store.Set(ctx, "tours:vacuum-"+string(rune('A'+i%26))+string(rune('0'+i/26)), []byte("x"), 0)
	}
	if _, err := store.DeletePrefix(ctx, "tours:vacuum-"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}

	sizeBefore, _ := os.Stat(dbPath)

	if err := svc.Vacuum(ctx); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}

	sizeAfter, _ := os.Stat(dbPath)
	if sizeAfter.Size() > sizeBefore.Size() {
		t.Logf("note: DB grew after vacuum (before=%d, after=%d), expected for small DBs",
			sizeBefore.Size(), sizeAfter.Size())
	}
}

func TestRunOncePurgesExpired(t *testing.T) {
	svc, store, _ := setupTestService(t)
	ctx := context.Background()

	if err := store.Set(ctx, "slug:brief", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "slug:kept", []byte("y"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.LastPurged != 1 {
		t.Errorf("expected 1 purged entry, got %d", st.LastPurged)
	}
	if st.Entries.Live != 1 || st.Entries.Expired != 0 {
		t.Errorf("unexpected entry stats after purge: %+v", st.Entries)
	}
	if st.LastPurgeAt == "" || st.LastOptimizeAt == "" {
		t.Error("expected both maintenance timestamps to be set")
	}
}

type failingStore struct{}

func (failingStore) PurgeExpired(context.Context) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func (failingStore) Stats(context.Context) (tourcache.Stats, error) {
	return tourcache.Stats{}, errors.New("disk I/O error")
}

func TestRunOnceStillOptimizesWhenPurgeFails(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, failingStore{}, time.Hour, testLogger())

	if err := svc.RunOnce(context.Background()); err == nil {
		t.Fatal("expected purge error")
	}
	svc.mu.Lock()
	optimized := !svc.lastOptimize.IsZero()
	svc.mu.Unlock()
	if !optimized {
		t.Error("expected optimize to run despite purge failure")
	}

	if _, err := svc.Status(context.Background()); err == nil {
		t.Error("expected Status to surface the store error")
	}
}

func TestStartSchedulerStopsOnCancel(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartScheduler(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
