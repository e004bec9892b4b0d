package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexdesk/lexagent/internal/storage"
)

// PostgresStore keeps objects in the blob_objects table.
type PostgresStore struct {
	db *storage.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *storage.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, obj Object) error {
	if err := ValidateName(obj.Bucket, obj.Path); err != nil {
		return err
	}
	if err := s.db.PutBlob(ctx, obj.Bucket, obj.Path, obj.ContentType, obj.Body); err != nil {
		return fmt.Errorf("blob: put: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, bucket, path string) (Object, error) {
	if err := ValidateName(bucket, path); err != nil {
		return Object{}, err
	}
	body, ct, err := s.db.GetBlob(ctx, bucket, path)
	if errors.Is(err, storage.ErrNotFound) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("blob: get: %w", err)
	}
	return Object{Bucket: bucket, Path: path, ContentType: ct, Body: body}, nil
}
