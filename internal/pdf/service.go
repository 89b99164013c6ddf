// Package pdf owns the lifecycle of PDF metadata records: it validates
// uploads, writes the file to the blob store, and keeps the metadata store,
// record cache and local snapshot in step.
package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mtiwari1/pdfhost/internal/blobstore"
	"github.com/mtiwari1/pdfhost/internal/cache"
	"github.com/mtiwari1/pdfhost/internal/repository"
	"github.com/mtiwari1/pdfhost/internal/worker"
)

// Upload is a file supplied by a caller.
type Upload struct {
	Name string
	Body io.Reader
}

// Index is the best-effort filename to metadata mapping kept beside the store.
type Index interface {
	Put(name string, metadata map[string]interface{})
	Remove(name string)
}

// Flusher schedules a background save of the Index.
type Flusher interface {
	Submit(job worker.Job) bool
}

// readier is implemented by repositories that connect after startup,
// such as *repository.Handle.
type readier interface {
	Ready() bool
}

// Service mediates between API requests and the blob and metadata stores.
// It holds no mutable state of its own.
type Service struct {
	repo    repository.Repository
	blobs   blobstore.Store
	cache   cache.Cache
	index   Index
	flusher Flusher
	logger  *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCache sets the record cache. The default caches nothing.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithIndex sets the snapshot index and the flusher that persists it.
func WithIndex(idx Index, f Flusher) Option {
	return func(s *Service) {
		s.index = idx
		s.flusher = f
	}
}

// NewService wires a Service. repo is usually a *repository.Handle so calls
// made before the store connects fail fast.
func NewService(repo repository.Repository, blobs blobstore.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		blobs:  blobs,
		cache:  cache.NoOp{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRecord stores the uploaded file, then inserts a metadata record that
// points at it, and returns the new record id. If the insert fails the file
// stays on the blob store.
func (s *Service) CreateRecord(ctx context.Context, up Upload, rawMetadata string) (string, error) {
	if up.Body == nil || up.Name == "" {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, ErrNoFile)
	}

	meta, err := parseMetadata(rawMetadata)
	if err != nil {
		return "", err
	}

	uploadID := uuid.New().String()
	logger := s.logger.With(slog.String("upload_id", uploadID))

	contentPath, err := s.blobs.Put(ctx, up.Name, up.Body)
	if err != nil {
		logger.Error("store file", slog.String("original_name", up.Name), slog.String("error", err.Error()))
		if errors.Is(err, blobstore.ErrInvalidName) {
			return "", fmt.Errorf("%w: %w: %v", ErrInvalidInput, ErrInvalidFileName, err)
		}
		return "", fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	rec := &repository.Record{
		ID:          uuid.New().String(),
		ContentPath: contentPath,
		Metadata:    meta,
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		logger.Error("insert metadata, stored file is orphaned",
			slog.String("record_id", rec.ID),
			slog.String("content_path", contentPath),
			slog.String("error", err.Error()),
		)
		return "", storeError(err, ErrStoreWrite)
	}

	logger.Info("record created",
		slog.String("record_id", rec.ID),
		slog.String("content_path", contentPath),
	)

	if s.index != nil {
		s.index.Put(indexKey(contentPath), meta)
		s.scheduleFlush(rec.ID, "create")
	}
	return rec.ID, nil
}

// FetchRecord returns the record with the given id. The cache is consulted
// only once the metadata store is connected.
func (s *Service) FetchRecord(ctx context.Context, id string) (*repository.Record, error) {
	if r, ok := s.repo.(readier); ok && !r.Ready() {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, repository.ErrUnavailable)
	}

	rec, err := s.cache.Get(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache get", slog.String("record_id", id), slog.String("error", err.Error()))
	}

	rec, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, ErrStoreUnavailable)
	}

	if err := s.cache.Set(ctx, rec); err != nil {
		s.logger.Warn("cache set", slog.String("record_id", id), slog.String("error", err.Error()))
	}
	return rec, nil
}

// FetchAllRecords returns every record in store order. The result is never nil.
func (s *Service) FetchAllRecords(ctx context.Context) ([]*repository.Record, error) {
	records, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, storeError(err, ErrStoreUnavailable)
	}
	if records == nil {
		records = []*repository.Record{}
	}
	return records, nil
}

// DeleteRecord removes the record with the given id. The stored file is left
// in place.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	rec, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return storeError(err, ErrStoreUnavailable)
	}

	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("cache delete", slog.String("record_id", id), slog.String("error", err.Error()))
	}

	s.logger.Info("record deleted, stored file is orphaned",
		slog.String("record_id", id),
		slog.String("content_path", rec.ContentPath),
	)

	if s.index != nil {
		s.dropIndexEntry(ctx, rec)
		s.scheduleFlush(id, "delete")
	}
	return nil
}

// dropIndexEntry removes the snapshot entry for a deleted record's file. When
// other records still point at the same file the entry is handed to the
// first of them instead.
func (s *Service) dropIndexEntry(ctx context.Context, deleted *repository.Record) {
	key := indexKey(deleted.ContentPath)

	others, err := s.repo.FindByContentPath(ctx, deleted.ContentPath)
	if err != nil {
		s.logger.Warn("snapshot entry kept, lookup failed",
			slog.String("record_id", deleted.ID),
			slog.String("content_path", deleted.ContentPath),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(others) == 0 {
		s.index.Remove(key)
		return
	}
	s.index.Put(key, others[0].Metadata)
}

// EditRecord is reserved for metadata edits. It changes nothing.
func (s *Service) EditRecord(ctx context.Context, id string, changes map[string]interface{}) error {
	s.logger.Info("edit requested", slog.String("record_id", id), slog.Int("fields", len(changes)))
	return fmt.Errorf("%w: edit record %s", ErrNotImplemented, id)
}

// Ping reports whether the metadata store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return storeError(err, ErrStoreUnavailable)
	}
	return nil
}

func (s *Service) scheduleFlush(recordID, reason string) {
	if s.flusher == nil {
		return
	}
	// The flush outlives the request, so it must not inherit its context.
	s.flusher.Submit(worker.Job{
		Ctx:      context.Background(),
		RecordID: recordID,
		Reason:   reason,
	})
}

// parseMetadata decodes the caller's metadata text, which must be a JSON object.
func parseMetadata(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: %w: metadata is required", ErrInvalidInput, ErrInvalidMetadata)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrInvalidInput, ErrInvalidMetadata, err)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %w: not a JSON object", ErrInvalidInput, ErrInvalidMetadata)
	}
	return meta, nil
}

// indexKey is the snapshot key for a stored file: its base name.
func indexKey(contentPath string) string {
	return path.Base(filepath.ToSlash(contentPath))
}
