package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tripsync-app/tripsync-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	is_guest      INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS trips (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	title       TEXT NOT NULL,
	destination TEXT NOT NULL DEFAULT '',
	start_date  TEXT NOT NULL DEFAULT '',
	end_date    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS activities (
	id         TEXT PRIMARY KEY,
	trip_id    TEXT NOT NULL REFERENCES trips(id),
	title      TEXT NOT NULL,
	day        INTEGER NOT NULL DEFAULT 0,
	start_time TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS expenses (
	id           TEXT PRIMARY KEY,
	trip_id      TEXT NOT NULL REFERENCES trips(id),
	description  TEXT NOT NULL DEFAULT '',
	amount_cents INTEGER NOT NULL DEFAULT 0,
	currency     TEXT NOT NULL DEFAULT 'USD',
	paid_by      TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activities_trip ON activities(trip_id);
CREATE INDEX IF NOT EXISTS idx_expenses_trip ON expenses(trip_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, is_guest, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.IsGuest, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_guest, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_guest, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsGuest, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) CreateTrip(ctx context.Context, t *store.Trip) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trips (id, owner_id, title, destination, start_date, end_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, t.Destination, t.StartDate, t.EndDate, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTrip(ctx context.Context, t *store.Trip) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET title = ?, destination = ?, start_date = ?, end_date = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Destination, t.StartDate, t.EndDate, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) GetTrip(ctx context.Context, id string) (*store.Trip, error) {
	var t store.Trip
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, destination, start_date, end_date, created_at, updated_at
		 FROM trips WHERE id = ?`, id).
		Scan(&t.ID, &t.OwnerID, &t.Title, &t.Destination, &t.StartDate, &t.EndDate, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan trip: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) CreateActivity(ctx context.Context, a *store.Activity) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (id, trip_id, title, day, start_time, location, sort_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TripID, a.Title, a.Day, a.StartTime, a.Location, a.SortOrder, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateActivity(ctx context.Context, a *store.Activity) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE activities SET title = ?, day = ?, start_time = ?, location = ?, sort_order = ?, updated_at = ?
		 WHERE id = ?`,
		a.Title, a.Day, a.StartTime, a.Location, a.SortOrder, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) GetActivity(ctx context.Context, id string) (*store.Activity, error) {
	var a store.Activity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, trip_id, title, day, start_time, location, sort_order, created_at, updated_at
		 FROM activities WHERE id = ?`, id).
		Scan(&a.ID, &a.TripID, &a.Title, &a.Day, &a.StartTime, &a.Location, &a.SortOrder, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStore) CreateExpense(ctx context.Context, e *store.Expense) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, trip_id, description, amount_cents, currency, paid_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TripID, e.Description, e.AmountCents, e.Currency, e.PaidBy, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateExpense(ctx context.Context, e *store.Expense) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET description = ?, amount_cents = ?, currency = ?, paid_by = ?, updated_at = ?
		 WHERE id = ?`,
		e.Description, e.AmountCents, e.Currency, e.PaidBy, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) GetExpense(ctx context.Context, id string) (*store.Expense, error) {
	var e store.Expense
	err := s.db.QueryRowContext(ctx,
		`SELECT id, trip_id, description, amount_cents, currency, paid_by, created_at, updated_at
		 FROM expenses WHERE id = ?`, id).
		Scan(&e.ID, &e.TripID, &e.Description, &e.AmountCents, &e.Currency, &e.PaidBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	return &e, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
