package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"puppyspa/waitlist-service/internal/models"
	"puppyspa/waitlist-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestCreateListConcurrentGetOrCreate(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	var wg sync.WaitGroup
	results := make(chan createResult, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, created, err := st.CreateList(ctx, "2026-10-19")
			results <- createResult{listID: list.ID, created: created, err: err}
		}()
	}
	wg.Wait()
	close(results)

	createdCount := 0
	ids := map[int64]bool{}
	for result := range results {
		if result.err != nil && !errors.Is(result.err, store.ErrListExists) {
			t.Fatalf("create list error: %v", result.err)
		}
		if result.err == nil {
			ids[result.listID] = true
		}
		if result.created {
			createdCount++
		}
	}
	if createdCount != 1 {
		t.Fatalf("expected exactly one creation, got %d", createdCount)
	}
	if len(ids) != 1 {
		t.Fatalf("expected a single list id, got %v", ids)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE type = 'list.created'`).Scan(&count); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 list.created event, got %d", count)
	}
}

func TestEntryLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	list, _, err := st.CreateList(ctx, "2026-10-19")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	first := createEntry(t, ctx, st, list.ID, "Milo", "Jane")
	second := createEntry(t, ctx, st, list.ID, "Rex", "Tom")
	third := createEntry(t, ctx, st, list.ID, "Bella", "Ann")
	if first.Rank != 1 || second.Rank != 2 || third.Rank != 3 {
		t.Fatalf("expected ranks 1,2,3, got %d,%d,%d", first.Rank, second.Rank, third.Rank)
	}

	updated, err := st.SetStatus(ctx, second.ID, models.StatusCompleted)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Status != models.StatusCompleted || updated.Rank != 2 {
		t.Fatalf("unexpected entry after status change: %+v", updated)
	}

	entries, err := st.ApplyRanks(ctx, list.ID, []int64{third.ID, first.ID, second.ID})
	if err != nil {
		t.Fatalf("apply ranks: %v", err)
	}
	got := []int64{entries[0].ID, entries[1].ID, entries[2].ID}
	want := []int64{third.ID, first.ID, second.ID}
	for i := range want {
		if got[i] != want[i] || entries[i].Rank != i+1 {
			t.Fatalf("unexpected order after reorder: %+v", entries)
		}
	}

	if _, err := st.ApplyRanks(ctx, list.ID, []int64{first.ID, second.ID}); !errors.Is(err, store.ErrOrderingMismatch) {
		t.Fatalf("expected ordering mismatch, got %v", err)
	}
	reloaded, err := st.GetList(ctx, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if reloaded.Entries[0].ID != third.ID {
		t.Fatalf("stale reorder must not change ranks")
	}
}

func TestSearchAndDates(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	older, _, err := st.CreateList(ctx, "2026-09-30")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	newer, _, err := st.CreateList(ctx, "2026-10-19")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	createEntry(t, ctx, st, older.ID, "Milo", "Jane")
	createEntry(t, ctx, st, newer.ID, "Rex", "milo_fan")
	createEntry(t, ctx, st, newer.ID, "Bella", "Ann")

	results, err := st.SearchEntries(ctx, "MILO", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 || results[0].Date != "2026-10-19" || results[1].Date != "2026-09-30" {
		t.Fatalf("unexpected search results: %+v", results)
	}

	literal, err := st.SearchEntries(ctx, "o_f", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(literal) != 1 {
		t.Fatalf("expected underscore to match literally, got %d results", len(literal))
	}

	dates, err := st.ListDatesInMonth(ctx, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list dates: %v", err)
	}
	if len(dates) != 1 || dates[0] != "2026-10-19" {
		t.Fatalf("unexpected month dates: %v", dates)
	}

	events, err := st.ListEvents(ctx, store.EventOffset{}, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 outbox events, got %d", len(events))
	}
	rest, err := st.ListEvents(ctx, store.EventOffset{LastEventTime: events[2].CreatedAt, LastEventID: events[2].EventID}, 100)
	if err != nil {
		t.Fatalf("list events after offset: %v", err)
	}
	if len(rest) != 2 || rest[0].EventID != events[3].EventID {
		t.Fatalf("unexpected events after offset: %+v", rest)
	}
}

type createResult struct {
	listID  int64
	created bool
	err     error
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return NewStore(pool), pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func createEntry(t *testing.T, ctx context.Context, st *Store, listID int64, puppy, owner string) models.PuppyEntry {
	t.Helper()
	entry, err := st.CreateEntry(ctx, store.CreateEntryInput{
		WaitingListID:   listID,
		PuppyName:       puppy,
		OwnerName:       owner,
		ServiceRequired: "Bath",
		ArrivalTime:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	return entry
}
