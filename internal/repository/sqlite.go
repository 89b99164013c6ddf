package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteRepo implements Repository on an embedded SQLite database.
// Use ":memory:" for an in-memory database.
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo opens (or creates) the database at path and ensures the schema.
func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS pdf_records (
		id           TEXT PRIMARY KEY,
		content_path TEXT NOT NULL,
		metadata     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS pdf_records_content_path ON pdf_records (content_path);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// Insert stores a new record row.
func (r *SQLiteRepo) Insert(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("repo insert marshal: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO pdf_records (id, content_path, metadata) VALUES (?, ?, ?)",
		rec.ID, rec.ContentPath, string(metaJSON),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("repo insert: %w", ErrDuplicate)
		}
		return fmt.Errorf("repo insert: %w", err)
	}
	return nil
}

// FindByID retrieves a record row by id.
func (r *SQLiteRepo) FindByID(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		"SELECT id, content_path, metadata FROM pdf_records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("repo findByID: %w", err)
	}
	return rec, nil
}

// FindAll retrieves every record row in insertion order.
func (r *SQLiteRepo) FindAll(ctx context.Context) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.query(ctx, "findAll",
		"SELECT id, content_path, metadata FROM pdf_records ORDER BY rowid")
}

// FindByContentPath retrieves the rows whose content_path matches, in insertion order.
func (r *SQLiteRepo) FindByContentPath(ctx context.Context, contentPath string) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.query(ctx, "findByContentPath",
		"SELECT id, content_path, metadata FROM pdf_records WHERE content_path = ? ORDER BY rowid", contentPath)
}

func (r *SQLiteRepo) query(ctx context.Context, op, query string, args ...any) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repo %s: %w", op, err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("repo %s scan: %w", op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo %s: %w", op, err)
	}
	return records, nil
}

// DeleteByID removes the row with the given id and returns it.
func (r *SQLiteRepo) DeleteByID(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		"DELETE FROM pdf_records WHERE id = ? RETURNING id, content_path, metadata", id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("repo deleteByID: %w", err)
	}
	return rec, nil
}

// Ping checks the database handle.
func (r *SQLiteRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("repo ping: %w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the database.
func (r *SQLiteRepo) Close(context.Context) error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*Record, error) {
	rec := &Record{}
	var metaJSON string
	if err := s.Scan(&rec.ID, &rec.ContentPath, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return rec, nil
}
