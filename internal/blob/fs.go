package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// metaDir holds content-type sidecars, outside every bucket.
const metaDir = ".meta"

// FSStore keeps objects as files under root/<bucket>/<path>.
type FSStore struct {
	root string
}

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) objectPath(bucket, path string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(path))
}

func (s *FSStore) metaPath(bucket, path string) string {
	return filepath.Join(s.root, metaDir, bucket, filepath.FromSlash(path))
}

// Put implements Store. The body is written to a temp file and renamed into
// place so readers never observe a partial object.
func (s *FSStore) Put(_ context.Context, obj Object) error {
	if err := ValidateName(obj.Bucket, obj.Path); err != nil {
		return err
	}
	if err := writeAtomic(s.objectPath(obj.Bucket, obj.Path), obj.Body); err != nil {
		return fmt.Errorf("blob: put %s/%s: %w", obj.Bucket, obj.Path, err)
	}
	if err := writeAtomic(s.metaPath(obj.Bucket, obj.Path), []byte(obj.ContentType)); err != nil {
		return fmt.Errorf("blob: put meta %s/%s: %w", obj.Bucket, obj.Path, err)
	}
	return nil
}

// Get implements Store.
func (s *FSStore) Get(_ context.Context, bucket, path string) (Object, error) {
	if err := ValidateName(bucket, path); err != nil {
		return Object{}, err
	}
	body, err := os.ReadFile(s.objectPath(bucket, path))
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("blob: get %s/%s: %w", bucket, path, err)
	}
	ct, err := os.ReadFile(s.metaPath(bucket, path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Object{}, fmt.Errorf("blob: get meta %s/%s: %w", bucket, path, err)
	}
	contentType := string(ct)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Object{Bucket: bucket, Path: path, ContentType: contentType, Body: body}, nil
}

func writeAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
