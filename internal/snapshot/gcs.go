package snapshot

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSMirror uploads snapshots to a Cloud Storage bucket.
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSMirror connects a Cloud Storage client. Extra client options (for
// example option.WithCredentialsJSON) are passed through.
func NewGCSMirror(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSMirror, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("gcs mirror: bucket is empty")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs mirror: new client: %w", err)
	}
	return &GCSMirror{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Upload writes data to gs://bucket/prefix/key.
func (m *GCSMirror) Upload(ctx context.Context, key string, data []byte) error {
	name := key
	if m.prefix != "" {
		name = path.Join(m.prefix, key)
	}
	w := m.client.Bucket(m.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", name, err)
	}
	return nil
}

// Close releases the storage client.
func (m *GCSMirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
