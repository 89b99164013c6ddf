// Package blobstore persists uploaded file bytes and hands back a storage path.
package blobstore

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned when an upload name cannot be turned into a file name.
var ErrInvalidName = errors.New("invalid blob name")

// Store persists a raw file stream under a name and returns where it landed.
// Writing the same name twice overwrites the earlier content.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) (string, error)
}

// cleanName reduces a client-supplied filename to its base component.
func cleanName(name string) (string, error) {
	// Clients on Windows send backslash-separated paths.
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(filepath.ToSlash(name))
	switch base {
	case "", ".", "..", "/":
		return "", ErrInvalidName
	}
	return base, nil
}
