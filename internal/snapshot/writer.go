package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/iamvazu/SQAN/internal/fileutil"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/textutil"
)

// Writer persists one JSON document and returns the path written.
type Writer interface {
	Write(ctx context.Context, dir, name string, v any) (string, error)
}

// Mirror uploads a snapshot under an object key.
type Mirror interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// Dir returns the snapshot directory of an identity under root.
func Dir(root string, id header.Identity) string {
	return filepath.Join(
		root,
		textutil.OptionalSegment(id.SiteID),
		textutil.SanitizePathSegment(id.SubjectID),
		textutil.SanitizePathSegment(id.StudyInstanceUID),
		textutil.SanitizePathSegment(id.SeriesDescription),
	)
}

// FileName returns the snapshot file name for an instance UID.
func FileName(uid string) string {
	return textutil.SanitizePathSegment(uid) + ".json"
}

// Disk writes indented JSON files, creating directories as needed. When a
// mirror is set, the file is uploaded under its path relative to Root.
type Disk struct {
	Root   string
	Mirror Mirror
	Logger *slog.Logger
}

// NewDisk constructs a Disk writer rooted at root.
func NewDisk(root string, mirror Mirror, logger *slog.Logger) *Disk {
	return &Disk{Root: root, Mirror: mirror, Logger: logging.NewComponentLogger(logger, "snapshot")}
}

// Write marshals v into dir/name atomically.
func (d *Disk) Write(ctx context.Context, dir, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", services.Wrap(services.ErrSnapshot, "snapshot", "encode", name, err)
	}
	path := filepath.Join(dir, name)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrSnapshot, "snapshot", "write", path, err)
	}
	d.mirror(ctx, path, data)
	return path, nil
}

func (d *Disk) mirror(ctx context.Context, path string, data []byte) {
	if d.Mirror == nil {
		return
	}
	key := filepath.Base(path)
	if d.Root != "" {
		if rel, err := filepath.Rel(d.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
			key = rel
		}
	}
	key = filepath.ToSlash(key)
	if err := d.Mirror.Upload(ctx, key, data); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, d.Logger), "snapshot mirror upload failed", "snapshot_mirror_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check snapshot.gcs_bucket permissions"),
			logging.String(logging.FieldImpact, "snapshot kept on local disk only"),
		)
	}
}

// String describes the writer for logs.
func (d *Disk) String() string {
	if d.Mirror != nil {
		return fmt.Sprintf("disk:%s (mirrored)", d.Root)
	}
	return "disk:" + d.Root
}
