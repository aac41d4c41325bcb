package record

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"medihub/pkg/platform/sentinel"
)

// FSBlobStore keeps document bytes under a root directory, one file per key.
// Keys are opaque UUID-derived strings; anything resembling a path escape is
// rejected.
type FSBlobStore struct {
	root string
}

func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSBlobStore{root: root}, nil
}

func (s *FSBlobStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, key), nil
}

func (s *FSBlobStore) Put(ctx context.Context, key string, contentType string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func (s *FSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FSBlobStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

var _ BlobStore = (*FSBlobStore)(nil)
