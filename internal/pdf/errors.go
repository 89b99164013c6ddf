package pdf

import (
	"errors"
	"fmt"

	"github.com/mtiwari1/pdfhost/internal/repository"
)

// Error kinds returned by Service. Match them with errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("record not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreWrite       = errors.New("store write failed")
	ErrNotImplemented   = errors.New("not implemented")
)

// Causes of ErrInvalidInput, wrapped alongside it.
var (
	ErrNoFile          = errors.New("no file uploaded")
	ErrInvalidMetadata = errors.New("invalid metadata")
	ErrInvalidFileName = errors.New("invalid file name")
)

// storeError translates a repository failure into a service error kind.
// fallback is used for anything that is neither a miss nor an outage.
func storeError(err error, fallback error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", fallback, err)
	}
}
