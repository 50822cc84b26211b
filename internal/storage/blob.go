// Package storage provides the blob-storage collaborator used to hold the
// uploaded PDF bytes. The metadata row in the database references a blob by
// its file id; the concrete backend is hidden behind the BlobStore interface
// so a cloud bucket can replace the filesystem implementation without
// touching callers.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound is returned when the requested object does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the minimal contract the document pipeline needs.
// Delete is idempotent: deleting an absent object is not an error.
type BlobStore interface {
	Put(fileID string, r io.Reader) (int64, error)
	Get(fileID string) ([]byte, error)
	Delete(fileID string) error
}

// FSStore stores blobs as files under a root directory. File ids are
// restricted to a safe alphabet so a crafted id cannot escape the root.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns a store.
func NewFSStore(root string) (*FSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: root}, nil
}

// Put writes the blob and returns the number of bytes stored. The write goes
// through a temp file and rename so readers never observe a partial object.
func (s *FSStore) Put(fileID string, r io.Reader) (int64, error) {
	path, err := s.path(fileID)
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	cerr := tmp.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

// Get returns the blob bytes, or ErrBlobNotFound.
func (s *FSStore) Get(fileID string) ([]byte, error) {
	path, err := s.path(fileID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return b, err
}

// Delete removes the blob. Absence is not an error.
func (s *FSStore) Delete(fileID string) error {
	path, err := s.path(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// path validates the id and maps it inside the root.
func (s *FSStore) path(fileID string) (string, error) {
	if fileID == "" || !safeID(fileID) {
		return "", fmt.Errorf("storage: invalid file id %q", fileID)
	}
	return filepath.Join(s.root, fileID), nil
}

// safeID accepts UUID-shaped ids: hex, dashes, dots excluded.
func safeID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
