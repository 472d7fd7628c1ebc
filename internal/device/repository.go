package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// ListByAccount retrieves all devices owned by an account, ordered by name.
	ListByAccount(ctx context.Context, accountID string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// GetState returns the persisted channel state for a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetState(ctx context.Context, id string) (State, error)

	// SetState atomically replaces the persisted channel state and returns
	// the committed state as re-read inside the same transaction. Callers
	// must treat the returned state, not their input, as canonical.
	//
	// Returns ErrDeviceNotFound if the device does not exist, or an error
	// wrapping ErrWriteFailed if persistence fails.
	SetState(ctx context.Context, id string, state State) (State, error)
}

// SQLiteRepository implements Repository using SQLite.
//
// State writes rely on the connection pool being limited to a single
// writer, which makes the update-then-reread transaction in SetState the
// serialization point for concurrent changes to the same device.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT id, account_id, name, category, configured, state,
			state_updated_at, created_at, updated_at
		FROM devices
		WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// ListByAccount retrieves all devices owned by an account.
func (r *SQLiteRepository) ListByAccount(ctx context.Context, accountID string) ([]Device, error) {
	query := `
		SELECT id, account_id, name, category, configured, state,
			state_updated_at, created_at, updated_at
		FROM devices
		WHERE account_id = ?
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying devices by account: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	if device.State == nil {
		device.State = NewChannelState(DefaultChannelCount)
	}
	stateJSON, err := json.Marshal(device.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, account_id, name, category, configured, state,
			state_updated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		device.AccountID,
		device.Name,
		device.Category,
		boolToInt(device.Configured),
		string(stateJSON),
		formatNullableTime(device.StateUpdatedAt),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// GetState returns the persisted channel state for a device.
func (r *SQLiteRepository) GetState(ctx context.Context, id string) (State, error) {
	var stateJSON string
	err := r.db.QueryRowContext(ctx,
		"SELECT state FROM devices WHERE id = ?", id,
	).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	return state, nil
}

// SetState atomically replaces the persisted channel state.
//
// The update and the re-read run in one transaction, so the returned state
// is exactly what was committed even when another writer raced the call.
func (r *SQLiteRepository) SetState(ctx context.Context, id string, state State) (State, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: state is required", ErrInvalidState)
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshalling state: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %w", ErrWriteFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := tx.ExecContext(ctx, `
		UPDATE devices
		SET state = ?, state_updated_at = ?, updated_at = ?
		WHERE id = ?`,
		string(stateJSON), now, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: updating state: %w", ErrWriteFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: checking rows affected: %w", ErrWriteFailed, err)
	}
	if affected == 0 {
		return nil, ErrDeviceNotFound
	}

	var committedJSON string
	if err := tx.QueryRowContext(ctx,
		"SELECT state FROM devices WHERE id = ?", id,
	).Scan(&committedJSON); err != nil {
		return nil, fmt.Errorf("%w: rereading state: %w", ErrWriteFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing state: %w", ErrWriteFailed, err)
	}

	var committed State
	if err := json.Unmarshal([]byte(committedJSON), &committed); err != nil {
		return nil, fmt.Errorf("unmarshalling committed state: %w", err)
	}
	return committed, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a device row into a Device struct.
func scanDevice(row scanner) (*Device, error) {
	var (
		d              Device
		configured     int
		stateJSON      string
		stateUpdatedAt sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := row.Scan(
		&d.ID, &d.AccountID, &d.Name, &d.Category, &configured,
		&stateJSON, &stateUpdatedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Configured = configured != 0

	if err := json.Unmarshal([]byte(stateJSON), &d.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	if d.State == nil {
		d.State = State{}
	}

	if stateUpdatedAt.Valid && stateUpdatedAt.String != "" {
		t, err := time.Parse(time.RFC3339, stateUpdatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing state_updated_at: %w", err)
		}
		d.StateUpdatedAt = &t
	}

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
