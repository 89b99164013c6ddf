package blobstore

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// Disk stores blobs as plain files in a single directory, named after the
// uploaded file.
type Disk struct {
	dir string
}

// NewDisk creates dir if needed and returns a Disk rooted there.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Dir returns the directory blobs are written to.
func (d *Disk) Dir() string {
	return d.dir
}

// Put streams r to <dir>/<base name> atomically and returns that path.
func (d *Disk) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	base, err := cleanName(name)
	if err != nil {
		return "", fmt.Errorf("blobstore put %q: %w", name, err)
	}

	destPath := filepath.Clean(filepath.Join(d.dir, base))
	if !strings.HasPrefix(destPath, filepath.Clean(d.dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("blobstore put %q: %w", name, ErrInvalidName)
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("blobstore put: %w", err)
	}

	if err := atomic.WriteFile(destPath, bufio.NewReader(r)); err != nil {
		return "", fmt.Errorf("blobstore put %q: %w", base, err)
	}
	if err := os.Chmod(destPath, 0o644); err != nil {
		return "", fmt.Errorf("blobstore chmod %q: %w", base, err)
	}
	return destPath, nil
}
