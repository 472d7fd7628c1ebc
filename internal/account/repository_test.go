package account

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			firstname TEXT,
			lastname TEXT,
			email TEXT,
			phone TEXT,
			age INTEGER,
			gender TEXT,
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

func TestAccount_Registered(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		want    bool
	}{
		{"complete profile", Account{ID: "a", Firstname: "Ada", Lastname: "Lovelace"}, true},
		{"bare identity", Account{ID: "a"}, false},
		{"first name only", Account{ID: "a", Firstname: "Ada"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.Registered(); got != tt.want {
				t.Errorf("Registered() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	acct := &Account{
		ID:        "acct-1",
		Firstname: "Ada",
		Lastname:  "Lovelace",
		Email:     "ada@example.com",
		Phone:     "+440000000000",
		Age:       36,
		Gender:    "female",
	}
	if err := repo.Create(ctx, acct); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "ada@example.com" || got.Age != 36 {
		t.Errorf("got = %+v", got)
	}
	if !got.Registered() {
		t.Error("account with a full profile should be registered")
	}

	if err := repo.Create(ctx, acct); !errors.Is(err, ErrAccountExists) {
		t.Errorf("duplicate Create() error = %v, want ErrAccountExists", err)
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetByID() error = %v, want ErrAccountNotFound", err)
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	acct := &Account{ID: "acct-1", Firstname: "Ada"}
	if err := repo.Create(ctx, acct); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	acct.Lastname = "Lovelace"
	if err := repo.Update(ctx, acct); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Lastname != "Lovelace" {
		t.Errorf("Lastname = %q", got.Lastname)
	}

	err = repo.Update(ctx, &Account{ID: "missing", Firstname: "X"})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Update() error = %v, want ErrAccountNotFound", err)
	}
}

func TestSQLiteRepository_Upsert(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, &Account{ID: "acct-1", Firstname: "Ada"}); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, &Account{ID: "acct-1", Firstname: "Ada", Lastname: "Lovelace"}); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Lastname != "Lovelace" {
		t.Errorf("Lastname = %q after upsert", got.Lastname)
	}
}

func TestAccount_Validate(t *testing.T) {
	long := ""
	for len(long) <= maxFieldLength {
		long += "x"
	}

	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{"valid", Account{ID: "a", Firstname: "Ada", Age: 36}, false},
		{"missing id", Account{}, true},
		{"field too long", Account{ID: "a", Email: long}, true},
		{"negative age", Account{ID: "a", Age: -1}, true},
		{"implausible age", Account{ID: "a", Age: 200}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
