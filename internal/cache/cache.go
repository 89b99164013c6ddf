// Package cache keeps recently fetched records close to the API.
// The metadata store stays authoritative; a cache may lose entries at any time.
package cache

import (
	"context"
	"errors"

	"github.com/mtiwari1/pdfhost/internal/repository"
)

// ErrMiss is returned by Get when the record is not cached.
var ErrMiss = errors.New("cache miss")

// Cache defines the interface for record caching.
//
// Set only fills an empty key, and Delete leaves a marker that blocks Set
// for a while, so a fill that read the store before a delete cannot bring
// the deleted record back.
type Cache interface {
	Get(ctx context.Context, id string) (*repository.Record, error)
	Set(ctx context.Context, rec *repository.Record) error
	Delete(ctx context.Context, id string) error
}

// NoOp implements Cache but stores nothing.
type NoOp struct{}

// Get always misses.
func (NoOp) Get(context.Context, string) (*repository.Record, error) {
	return nil, ErrMiss
}

// Set does nothing.
func (NoOp) Set(context.Context, *repository.Record) error {
	return nil
}

// Delete does nothing.
func (NoOp) Delete(context.Context, string) error {
	return nil
}
