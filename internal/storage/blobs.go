package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PutBlob stores body at (bucket, path), overwriting any previous object.
func (db *DB) PutBlob(ctx context.Context, bucket, path, contentType string, body []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO blob_objects (bucket, path, content_type, body, size)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (bucket, path) DO UPDATE SET
		     content_type = EXCLUDED.content_type,
		     body = EXCLUDED.body,
		     size = EXCLUDED.size,
		     updated_at = now()`,
		bucket, path, contentType, body, len(body),
	)
	if err != nil {
		return fmt.Errorf("storage: put blob: %w", err)
	}
	return nil
}

// GetBlob returns the object body and content type at (bucket, path).
func (db *DB) GetBlob(ctx context.Context, bucket, path string) ([]byte, string, error) {
	var (
		body        []byte
		contentType string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT body, content_type FROM blob_objects WHERE bucket = $1 AND path = $2`,
		bucket, path,
	).Scan(&body, &contentType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", fmt.Errorf("storage: blob %s/%s: %w", bucket, path, ErrNotFound)
		}
		return nil, "", fmt.Errorf("storage: get blob: %w", err)
	}
	return body, contentType, nil
}
