package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handle is a Repository whose backing store becomes available after startup.
// Until Set is called every operation fails immediately with ErrUnavailable.
type Handle struct {
	mu   sync.RWMutex
	repo Repository
}

// NewHandle returns a Handle in the not-ready state.
func NewHandle() *Handle {
	return &Handle{}
}

// Set installs the connected repository. Only the first call has an effect.
func (h *Handle) Set(repo Repository) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.repo != nil {
		return false
	}
	h.repo = repo
	return true
}

// Ready reports whether a repository has been installed.
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.repo != nil
}

// Connect runs dial once in the background and installs its result.
// The returned channel is closed when the attempt finishes, successful or not.
func (h *Handle) Connect(ctx context.Context, dial func(context.Context) (Repository, error), logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		repo, err := dial(ctx)
		if err != nil {
			logger.Error("connect metadata store", slog.String("error", err.Error()))
			return
		}
		if !h.Set(repo) {
			_ = repo.Close(context.Background())
			return
		}
		logger.Info("metadata store connected")
	}()
	return done
}

func (h *Handle) get() (Repository, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.repo == nil {
		return nil, fmt.Errorf("repo: %w: connection not established", ErrUnavailable)
	}
	return h.repo, nil
}

// Insert forwards to the installed repository.
func (h *Handle) Insert(ctx context.Context, rec *Record) error {
	repo, err := h.get()
	if err != nil {
		return err
	}
	return repo.Insert(ctx, rec)
}

// FindByID forwards to the installed repository.
func (h *Handle) FindByID(ctx context.Context, id string) (*Record, error) {
	repo, err := h.get()
	if err != nil {
		return nil, err
	}
	return repo.FindByID(ctx, id)
}

// FindAll forwards to the installed repository.
func (h *Handle) FindAll(ctx context.Context) ([]*Record, error) {
	repo, err := h.get()
	if err != nil {
		return nil, err
	}
	return repo.FindAll(ctx)
}

// FindByContentPath forwards to the installed repository.
func (h *Handle) FindByContentPath(ctx context.Context, contentPath string) ([]*Record, error) {
	repo, err := h.get()
	if err != nil {
		return nil, err
	}
	return repo.FindByContentPath(ctx, contentPath)
}

// DeleteByID forwards to the installed repository.
func (h *Handle) DeleteByID(ctx context.Context, id string) (*Record, error) {
	repo, err := h.get()
	if err != nil {
		return nil, err
	}
	return repo.DeleteByID(ctx, id)
}

// Ping forwards to the installed repository.
func (h *Handle) Ping(ctx context.Context) error {
	repo, err := h.get()
	if err != nil {
		return err
	}
	return repo.Ping(ctx)
}

// Close closes the installed repository, if any.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.RLock()
	repo := h.repo
	h.mu.RUnlock()
	if repo == nil {
		return nil
	}
	return repo.Close(ctx)
}
