package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"spendbook/internal/models"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("expense not found")
	// ErrDuplicateKey is returned when an insert reuses an idempotency key.
	ErrDuplicateKey = errors.New("idempotency key already used")
)

const expenseColumns = "id, amount_minor_units, category, description, date, created_at, idempotency_key"

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and creates the schema if absent.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per-connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.createSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

func (db *DB) createSchema() error {
	statements := []string{
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			amount_minor_units INTEGER NOT NULL CHECK (amount_minor_units > 0),
			category TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL,
			created_at TEXT NOT NULL,
			idempotency_key TEXT UNIQUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_category ON expenses (category)`,
	}

	for _, s := range statements {
		if _, err := db.conn.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// InsertExpense persists a new record. Reusing an idempotency key yields
// ErrDuplicateKey.
func (db *DB) InsertExpense(ctx context.Context, e models.Expense) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses ("+expenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.AmountMinorUnits, e.Category, e.Description, e.Date, e.CreatedAt, nullString(e.IdempotencyKey),
	)
	if isIdempotencyKeyViolation(err) {
		return fmt.Errorf("insert expense %s: %w", e.ID, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert expense %s: %w", e.ID, err)
	}
	return nil
}

// GetExpense retrieves a single expense by ID.
func (db *DB) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id)
	return scanOne(row)
}

// GetExpenseByIdempotencyKey retrieves the record created with the given key.
func (db *DB) GetExpenseByIdempotencyKey(ctx context.Context, key string) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE idempotency_key = ?", key)
	return scanOne(row)
}

// ListExpenses returns the records matching the filter. The result is never nil.
// Without NewestFirst, records come back in insertion order.
func (db *DB) ListExpenses(ctx context.Context, filter models.ListFilter) ([]models.Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses"
	var args []any

	if filter.Category != "" {
		query += " WHERE category = ?"
		args = append(args, filter.Category)
	}

	if filter.NewestFirst {
		query += " ORDER BY date DESC, rowid DESC"
	} else {
		query += " ORDER BY rowid ASC"
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Expense, error) {
	var (
		e   models.Expense
		key sql.NullString
	)
	if err := s.Scan(&e.ID, &e.AmountMinorUnits, &e.Category, &e.Description, &e.Date, &e.CreatedAt, &key); err != nil {
		return nil, err
	}
	if key.Valid {
		e.IdempotencyKey = &key.String
	}
	return &e, nil
}

func scanOne(row *sql.Row) (*models.Expense, error) {
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isIdempotencyKeyViolation reports whether err is the unique constraint on
// idempotency_key. Primary key collisions are not matched.
func isIdempotencyKeyViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(serr.Error(), "expenses.idempotency_key")
}
