// Package artifact persists agent outputs and generic text objects and
// builds their public URLs.
package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lexdesk/lexagent/internal/blob"
	"github.com/lexdesk/lexagent/internal/model"
)

// Defaults applied by the storage tools and used for agent outputs.
const (
	DefaultBucket      = "outputs"
	DefaultContentType = "text/markdown"
)

// Writer stores artifacts in a blob.Store.
type Writer struct {
	store   blob.Store
	baseURL string
	now     func() time.Time
	newID   func() uuid.UUID
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the clock used for the date prefix of output files.
func WithClock(now func() time.Time) Option { return func(w *Writer) { w.now = now } }

// WithIDs overrides the unique id generator for output file names.
func WithIDs(newID func() uuid.UUID) Option { return func(w *Writer) { w.newID = newID } }

// NewWriter creates a Writer whose URLs are rooted at baseURL.
func NewWriter(store blob.Store, baseURL string, opts ...Option) *Writer {
	w := &Writer{store: store, baseURL: baseURL, now: time.Now, newID: uuid.New}
	for _, o := range opts {
		o(w)
	}
	return w
}

// ShouldWrite reports whether an agent's output is persisted. The deadline
// agent returns structured data inline and never produces a file.
func ShouldWrite(agentKey string) bool {
	return agentKey != model.AgentKeyPrazos
}

// OutputPath returns {org}/{agentKey}/{YYYY-MM-DD}_{uuid}.md for t (UTC).
func OutputPath(orgID uuid.UUID, agentKey string, t time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s_%s.md", orgID, agentKey, t.UTC().Format(time.DateOnly), id)
}

// WriteOutput stores an agent's output as markdown in the outputs bucket and
// returns its path.
func (w *Writer) WriteOutput(ctx context.Context, orgID uuid.UUID, agentKey, content string) (string, error) {
	path := OutputPath(orgID, agentKey, w.now(), w.newID())
	if err := w.put(ctx, DefaultBucket, path, content, DefaultContentType); err != nil {
		return "", err
	}
	return path, nil
}

// PutText stores text at (bucket, path), overwriting any existing object.
// Empty bucket and contentType select the defaults.
func (w *Writer) PutText(ctx context.Context, bucket, path, text, contentType string) (model.PutTextResult, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	if err := w.put(ctx, bucket, path, text, contentType); err != nil {
		return model.PutTextResult{}, err
	}
	return model.PutTextResult{Path: path, FullPath: bucket + "/" + path}, nil
}

// URL returns the public URL of (bucket, path). It does not check that the
// object exists.
func (w *Writer) URL(bucket, path string) string {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return blob.PublicURL(w.baseURL, bucket, path)
}

func (w *Writer) put(ctx context.Context, bucket, path, text, contentType string) error {
	err := w.store.Put(ctx, blob.Object{
		Bucket:      bucket,
		Path:        path,
		ContentType: contentType,
		Body:        []byte(text),
	})
	if err != nil {
		return fmt.Errorf("artifact: write %s/%s: %w", bucket, path, err)
	}
	return nil
}
