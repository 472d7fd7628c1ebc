package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for account persistence operations.
type Repository interface {
	// GetByID retrieves an account by its identifier.
	// Returns ErrAccountNotFound if the account does not exist.
	GetByID(ctx context.Context, id string) (*Account, error)

	// Create inserts a new account.
	// Returns ErrAccountExists if the ID is already taken.
	Create(ctx context.Context, account *Account) error

	// Update replaces the profile fields of an existing account.
	// Returns ErrAccountNotFound if the account does not exist.
	Update(ctx context.Context, account *Account) error

	// Upsert creates the account if missing, otherwise updates it.
	Upsert(ctx context.Context, account *Account) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed account repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves an account by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, firstname, lastname, email, phone, age, gender, created_at, updated_at
		FROM accounts
		WHERE id = ?`, id)

	var (
		a         Account
		age       sql.NullInt64
		createdAt string
		updatedAt string
	)
	err := row.Scan(&a.ID, &a.Firstname, &a.Lastname, &a.Email, &a.Phone, &age, &a.Gender, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}

	if age.Valid {
		a.Age = int(age.Int64)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &a, nil
}

// Create inserts a new account.
func (r *SQLiteRepository) Create(ctx context.Context, account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, firstname, lastname, email, phone, age, gender, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Firstname,
		account.Lastname,
		account.Email,
		account.Phone,
		account.Age,
		account.Gender,
		account.CreatedAt.Format(time.RFC3339),
		account.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAccountExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// Update replaces the profile fields of an existing account.
func (r *SQLiteRepository) Update(ctx context.Context, account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	account.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET firstname = ?, lastname = ?, email = ?, phone = ?, age = ?, gender = ?, updated_at = ?
		WHERE id = ?`,
		account.Firstname,
		account.Lastname,
		account.Email,
		account.Phone,
		account.Age,
		account.Gender,
		account.UpdatedAt.Format(time.RFC3339),
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Upsert creates the account if missing, otherwise updates it.
func (r *SQLiteRepository) Upsert(ctx context.Context, account *Account) error {
	err := r.Create(ctx, account)
	if errors.Is(err, ErrAccountExists) {
		return r.Update(ctx, account)
	}
	return err
}
