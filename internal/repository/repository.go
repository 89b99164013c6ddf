package repository

import (
	"context"
	"errors"
	"time"
)

const dbTimeout = 2 * time.Second

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable is returned when the backing store is not connected or unreachable.
	ErrUnavailable = errors.New("metadata store unavailable")
	// ErrDuplicate is returned when a record with the same id already exists.
	ErrDuplicate = errors.New("record already exists")
)

// Record represents one uploaded PDF's tracked information.
type Record struct {
	ID          string                 `json:"_id" bson:"_id"`
	ContentPath string                 `json:"content_path" bson:"content_path"`
	Metadata    map[string]interface{} `json:"metadata" bson:"metadata"`
}

// Repository is a small, focused interface for PDF metadata persistence.
// Implementations must honour the supplied context for cancellation and timeouts.
type Repository interface {
	// Insert stores a new record.
	Insert(ctx context.Context, rec *Record) error

	// FindByID retrieves a record by its id.
	FindByID(ctx context.Context, id string) (*Record, error)

	// FindAll retrieves every record in store-native order.
	FindAll(ctx context.Context) ([]*Record, error)

	// FindByContentPath retrieves every record pointing at the stored file.
	FindByContentPath(ctx context.Context, contentPath string) ([]*Record, error)

	// DeleteByID removes a record and returns what was removed.
	DeleteByID(ctx context.Context, id string) (*Record, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
