package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for catalog persistence operations.
type Repository interface {
	// List returns one page of entries, ordered by name. Pages are
	// 1-based; out-of-range pages return an empty (not missing) page.
	List(ctx context.Context, page int) (*Page, error)

	// GetByID retrieves a catalog entry.
	// Returns ErrEntryNotFound if the entry does not exist.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// Create inserts a new catalog entry. Used by seeding.
	Create(ctx context.Context, entry *Entry) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed catalog repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns one page of entries, ordered by name.
func (r *SQLiteRepository) List(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_devices").Scan(&total); err != nil {
		return nil, fmt.Errorf("counting catalog entries: %w", err)
	}

	offset := (page - 1) * PageSize
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, category, description, price_cents, channels, created_at
		FROM catalog_devices
		ORDER BY name
		LIMIT ? OFFSET ?`,
		PageSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, PageSize)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog rows: %w", err)
	}

	return &Page{
		Entries: entries,
		Page:    page,
		Total:   total,
		HasMore: offset+len(entries) < total,
	}, nil
}

// GetByID retrieves a catalog entry.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, category, description, price_cents, channels, created_at
		FROM catalog_devices
		WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying catalog entry: %w", err)
	}
	return entry, nil
}

// Create inserts a new catalog entry.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO catalog_devices (id, name, category, description, price_cents, channels, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Name,
		entry.Category,
		entry.Description,
		entry.PriceCents,
		entry.channelCount(),
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrInvalidEntry, entry.ID)
		}
		return fmt.Errorf("inserting catalog entry: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e         Entry
		createdAt string
	)
	err := row.Scan(&e.ID, &e.Name, &e.Category, &e.Description, &e.PriceCents, &e.Channels, &createdAt)
	if err != nil {
		return nil, err
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &e, nil
}
