// Package blob stores named objects in buckets. Writes overwrite.
package blob

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNotFound is returned by Get when no object exists at the path.
	ErrNotFound = errors.New("blob: object not found")

	// ErrInvalidName is returned for bucket names or paths that could escape
	// their bucket or are otherwise unusable.
	ErrInvalidName = errors.New("blob: invalid bucket or path")
)

// Object is a stored blob.
type Object struct {
	Bucket      string
	Path        string
	ContentType string
	Body        []byte
}

// Store persists objects.
type Store interface {
	Put(ctx context.Context, obj Object) error
	Get(ctx context.Context, bucket, path string) (Object, error)
}

var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateName rejects empty, absolute or parent-relative paths and bucket
// names outside [a-z0-9_-].
func ValidateName(bucket, path string) error {
	if !bucketPattern.MatchString(bucket) {
		return fmt.Errorf("%w: bucket %q", ErrInvalidName, bucket)
	}
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "\\") || strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: path %q", ErrInvalidName, path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: path %q", ErrInvalidName, path)
		}
	}
	return nil
}

// PublicURL returns the public address of an object served by this service.
func PublicURL(baseURL, bucket, path string) string {
	return strings.TrimRight(baseURL, "/") + "/storage/v1/object/public/" + bucket + "/" + path
}
