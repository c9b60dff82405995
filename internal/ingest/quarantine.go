package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iamvazu/SQAN/internal/broker"
	"github.com/iamvazu/SQAN/internal/fileutil"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/textutil"
)

// Attribute keys set on messages republished to the failed topic.
const (
	AttrFailedStep  = "sqan_failed_step"
	AttrFailedError = "sqan_failed_error"
	AttrMessageID   = "sqan_message_id"
)

// Quarantine stores messages that could not be processed.
type Quarantine struct {
	dir       string
	publisher Publisher
}

// NewQuarantine returns a Quarantine writing into dir.
func NewQuarantine(dir string, publisher Publisher) *Quarantine {
	return &Quarantine{dir: dir, publisher: publisher}
}

// FileName returns the quarantine file name for a message.
func FileName(instanceUID, messageID string) string {
	if strings.TrimSpace(instanceUID) == "" {
		return "unknown-" + textutil.SanitizePathSegment(messageID) + ".json"
	}
	return textutil.SanitizePathSegment(instanceUID) + ".json"
}

// Route republishes d verbatim to the failed topic and then writes it to the
// quarantine directory. Both must succeed; any failure is ErrQuarantine.
func (q *Quarantine) Route(ctx context.Context, d *broker.Delivery, instanceUID, stepName string, cause error) (string, error) {
	attrs := map[string]string{
		AttrFailedStep: stepName,
		AttrMessageID:  d.ID,
	}
	if cause != nil {
		attrs[AttrFailedError] = broker.AttributeValue(cause.Error())
	}
	if err := q.publisher.PublishFailed(ctx, d.Data, attrs); err != nil {
		return "", services.Wrap(services.ErrQuarantine, "ingest", "publish failed", "failed topic unavailable", err)
	}
	path := filepath.Join(q.dir, FileName(instanceUID, d.ID))
	if err := fileutil.WriteFileAtomic(path, d.Data, 0o644); err != nil {
		return "", services.Wrap(services.ErrQuarantine, "ingest", "write quarantine", path, err)
	}
	return path, nil
}

// Entry describes one quarantined message on disk.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
}

// List returns quarantined files in dir, oldest first.
func List(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read quarantine dir: %w", err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Name < out[j].Name
		}
		return out[i].ModTime.Before(out[j].ModTime)
	})
	return out, nil
}

// IncomingPublisher republishes to the incoming topic.
type IncomingPublisher interface {
	PublishIncoming(ctx context.Context, data []byte, attrs map[string]string) error
}

// Replay republishes the quarantined file name in dir to the incoming topic
// and removes it once the publish succeeded.
func Replay(ctx context.Context, dir, name string, publisher IncomingPublisher) error {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid quarantine file name %q", name)
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "quarantine", "replay", name, err)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := publisher.PublishIncoming(ctx, data, map[string]string{"sqan_replayed_from": name}); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove replayed file %s: %w", path, err)
	}
	return nil
}
