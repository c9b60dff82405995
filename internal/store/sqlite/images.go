package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iamvazu/SQAN/internal/store"
)

const imageColumns = "id, research_id, series_id, study_id, acquisition_id, instance_uid, headers_json, qc_json, created_at"

// statsSelect aggregates image QC state; it expects the images table aliased as i.
const statsSelect = `COUNT(i.id),
        COALESCE(SUM(CASE WHEN i.id IS NOT NULL AND i.qc_json IS NULL THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN i.qc_errors > 0 THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN i.qc_warnings > 0 THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(i.qc_notemp), 0)`

// InsertImage appends image, assigning an ID and creation time when unset.
func (s *Store) InsertImage(ctx context.Context, image *store.Image) error {
	if image == nil {
		return errors.New("insert image: image is nil")
	}
	if image.ID == "" {
		image.ID = newID()
	}
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	headers, err := marshalJSON(image.Headers)
	if err != nil {
		return unavailable("insert image", err)
	}
	qcJSON, errCount, warnCount, notemp, err := encodeVerdict(image.QC)
	if err != nil {
		return unavailable("insert image", err)
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO images (
            id, research_id, series_id, study_id, acquisition_id, instance_uid,
            headers_json, qc_json, qc_errors, qc_warnings, qc_notemp, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		image.ID, image.ResearchID, image.SeriesID, image.StudyID, image.AcquisitionID, image.InstanceUID,
		headers, qcJSON, errCount, warnCount, notemp, formatTime(image.CreatedAt),
	); err != nil {
		return unavailable("insert image", err)
	}
	return nil
}

// PendingImages returns up to limit images without a verdict. Unattempted
// images come first, oldest first; failed ones follow by attempt time.
func (s *Store) PendingImages(ctx context.Context, limit int) ([]*store.Image, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+imageColumns+` FROM images WHERE qc_json IS NULL
            ORDER BY qc_attempted_at IS NOT NULL, qc_attempted_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("pending images", err)
	}
	defer rows.Close()

	var images []*store.Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, unavailable("pending images", err)
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("pending images", err)
	}
	return images, nil
}

// CountPendingImages counts images without a verdict.
func (s *Store) CountPendingImages(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM images WHERE qc_json IS NULL").Scan(&count); err != nil {
		return 0, unavailable("count pending images", err)
	}
	return count, nil
}

// SetImageQC stores verdict on the image. A nil verdict unsets it.
func (s *Store) SetImageQC(ctx context.Context, imageID string, verdict *store.Verdict) error {
	qcJSON, errCount, warnCount, notemp, err := encodeVerdict(verdict)
	if err != nil {
		return unavailable("set image qc", err)
	}
	res, err := s.execWithRetry(ctx,
		"UPDATE images SET qc_json = ?, qc_errors = ?, qc_warnings = ?, qc_notemp = ?, qc_attempted_at = NULL WHERE id = ?",
		qcJSON, errCount, warnCount, notemp, imageID,
	)
	if err != nil {
		return unavailable("set image qc", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("image", imageID)
	}
	return nil
}

// MarkImageAttempted records a failed QC attempt on the image.
func (s *Store) MarkImageAttempted(ctx context.Context, imageID string, at time.Time) error {
	res, err := s.execWithRetry(ctx, "UPDATE images SET qc_attempted_at = ? WHERE id = ?", formatTime(at), imageID)
	if err != nil {
		return unavailable("mark image attempted", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("image", imageID)
	}
	return nil
}

// ClearSeriesQC removes the cached rollup of a series.
func (s *Store) ClearSeriesQC(ctx context.Context, seriesID string) error {
	if _, err := s.execWithRetry(ctx, "UPDATE series SET qc_json = NULL WHERE id = ?", seriesID); err != nil {
		return unavailable("clear series qc", err)
	}
	return nil
}

// SetSeriesQC stores the cached rollup of a series.
func (s *Store) SetSeriesQC(ctx context.Context, seriesID string, qc *store.SeriesQC) error {
	var payload any
	if qc != nil {
		encoded, err := marshalJSON(qc)
		if err != nil {
			return unavailable("set series qc", err)
		}
		payload = encoded
	}
	if _, err := s.execWithRetry(ctx, "UPDATE series SET qc_json = ? WHERE id = ?", payload, seriesID); err != nil {
		return unavailable("set series qc", err)
	}
	return nil
}

// SeriesStats counts the images of a series by QC state.
func (s *Store) SeriesStats(ctx context.Context, seriesID string) (store.SeriesStats, error) {
	var stats store.SeriesStats
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+statsSelect+" FROM images i WHERE i.series_id = ?", seriesID,
	).Scan(&stats.Images, &stats.Pending, &stats.Errors, &stats.Warnings, &stats.NoTemplate)
	if err != nil {
		return store.SeriesStats{}, unavailable("series stats", err)
	}
	return stats, nil
}

func encodeVerdict(verdict *store.Verdict) (any, int, int, int, error) {
	if verdict == nil {
		return nil, 0, 0, 0, nil
	}
	encoded, err := marshalJSON(verdict)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	return encoded, len(verdict.Errors), len(verdict.Warnings), boolToInt(verdict.NoTemplate), nil
}

func scanImage(row rowScanner) (*store.Image, error) {
	var (
		image   store.Image
		headers sql.NullString
		qcJSON  sql.NullString
		created string
	)
	if err := row.Scan(&image.ID, &image.ResearchID, &image.SeriesID, &image.StudyID, &image.AcquisitionID,
		&image.InstanceUID, &headers, &qcJSON, &created); err != nil {
		return nil, err
	}
	decoded, err := decodeHeaders(headers)
	if err != nil {
		return nil, err
	}
	image.Headers = decoded
	image.CreatedAt = parseTime(created)
	if qcJSON.Valid && qcJSON.String != "" {
		var verdict store.Verdict
		if err := json.Unmarshal([]byte(qcJSON.String), &verdict); err != nil {
			return nil, err
		}
		image.QC = &verdict
	}
	return &image, nil
}
