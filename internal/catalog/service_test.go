package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/switchsync/switchsync-core/internal/device"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE catalog_devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT,
			description TEXT,
			price_cents INTEGER NOT NULL DEFAULT 0,
			channels INTEGER NOT NULL DEFAULT 8,
			created_at TEXT NOT NULL
		);
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT,
			configured INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			state_updated_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func seedEntries(t *testing.T, repo Repository, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		err := repo.Create(ctx, &Entry{
			ID:         fmt.Sprintf("cat-%03d", i),
			Name:       fmt.Sprintf("Relay Model %03d", i),
			Category:   "switch",
			PriceCents: 4999,
			Channels:   8,
		})
		if err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}
}

func TestSQLiteRepository_List_Pagination(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedEntries(t, repo, 45)
	ctx := context.Background()

	page1, err := repo.List(ctx, 1)
	if err != nil {
		t.Fatalf("List(1) error = %v", err)
	}
	if len(page1.Entries) != PageSize {
		t.Errorf("page 1 len = %d, want %d", len(page1.Entries), PageSize)
	}
	if page1.Total != 45 || !page1.HasMore {
		t.Errorf("page 1 = %+v", page1)
	}
	// Ordered by name.
	if page1.Entries[0].Name != "Relay Model 000" {
		t.Errorf("first entry = %q", page1.Entries[0].Name)
	}

	page3, err := repo.List(ctx, 3)
	if err != nil {
		t.Fatalf("List(3) error = %v", err)
	}
	if len(page3.Entries) != 5 || page3.HasMore {
		t.Errorf("page 3 = %+v", page3)
	}

	page9, err := repo.List(ctx, 9)
	if err != nil {
		t.Fatalf("List(9) error = %v", err)
	}
	if len(page9.Entries) != 0 {
		t.Errorf("out-of-range page len = %d, want 0", len(page9.Entries))
	}

	// Page zero clamps to the first page.
	page0, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List(0) error = %v", err)
	}
	if page0.Page != 1 {
		t.Errorf("Page = %d, want 1", page0.Page)
	}
}

func TestSQLiteRepository_GetByID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedEntries(t, repo, 1)
	ctx := context.Background()

	entry, err := repo.GetByID(ctx, "cat-000")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if entry.Channels != 8 {
		t.Errorf("Channels = %d, want 8", entry.Channels)
	}

	_, err = repo.GetByID(ctx, "missing")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("GetByID() error = %v, want ErrEntryNotFound", err)
	}
}

func TestService_Purchase(t *testing.T) {
	db := setupTestDB(t)
	catalogRepo := NewSQLiteRepository(db)
	deviceRepo := device.NewSQLiteRepository(db)
	svc := NewService(catalogRepo, deviceRepo)
	ctx := context.Background()

	seedEntries(t, catalogRepo, 1)

	d, err := svc.Purchase(ctx, "acct-1", "cat-000")
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if d.ID == "" {
		t.Fatal("purchase should mint a device id")
	}
	if d.AccountID != "acct-1" {
		t.Errorf("AccountID = %q", d.AccountID)
	}
	if len(d.State) != 8 {
		t.Errorf("len(State) = %d, want 8", len(d.State))
	}
	for channel, on := range d.State {
		if on {
			t.Errorf("channel %s starts on, want off", channel)
		}
	}
	if d.Configured {
		t.Error("new device should be unconfigured")
	}

	// Persisted under the minted ID.
	got, err := deviceRepo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.State.Equal(d.State) {
		t.Errorf("persisted state = %v", got.State)
	}

	// Two purchases of the same entry yield distinct devices.
	d2, err := svc.Purchase(ctx, "acct-1", "cat-000")
	if err != nil {
		t.Fatalf("second Purchase() error = %v", err)
	}
	if d2.ID == d.ID {
		t.Error("purchases must mint unique device ids")
	}

	_, err = svc.Purchase(ctx, "acct-1", "missing")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Purchase(missing) error = %v, want ErrEntryNotFound", err)
	}
}
