package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iamvazu/SQAN/internal/store"
)

const (
	researchColumns    = "id, site_id, modality, station_name, radiotracer, created_at"
	seriesColumns      = "id, research_id, series_desc, series_number, template_exam_id, qc_json, events_json, created_at"
	studyColumns       = "id, series_id, subject, study_instance_uid, timestamp, created_at"
	acquisitionColumns = "id, study_id, acquisition_number, created_at"
)

// EnsureResearch finds or creates the research for key.
func (s *Store) EnsureResearch(ctx context.Context, key store.ResearchKey) (*store.Research, error) {
	dk := dedupKey(key.SiteID, key.Modality, key.StationName, key.Radiotracer)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO research (id, dedup_key, site_id, modality, station_name, radiotracer, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(dedup_key) DO NOTHING`,
		newID(), dk, nullable(key.SiteID), key.Modality, key.StationName, nullable(key.Radiotracer), formatTime(time.Now()),
	); err != nil {
		return nil, unavailable("ensure research", err)
	}
	research, err := scanResearch(s.db.QueryRowContext(ctx, "SELECT "+researchColumns+" FROM research WHERE dedup_key = ?", dk))
	if err != nil {
		return nil, unavailable("ensure research", err)
	}
	return research, nil
}

// EnsureSeries finds or creates the series for key. seriesNumber is only
// recorded when the series is created.
func (s *Store) EnsureSeries(ctx context.Context, key store.SeriesKey, seriesNumber int) (*store.Series, error) {
	dk := dedupKey(key.ResearchID, key.Description)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO series (id, dedup_key, research_id, series_desc, series_number, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(dedup_key) DO NOTHING`,
		newID(), dk, key.ResearchID, key.Description, seriesNumber, formatTime(time.Now()),
	); err != nil {
		return nil, unavailable("ensure series", err)
	}
	series, err := scanSeries(s.db.QueryRowContext(ctx, "SELECT "+seriesColumns+" FROM series WHERE dedup_key = ?", dk))
	if err != nil {
		return nil, unavailable("ensure series", err)
	}
	return series, nil
}

// EnsureStudy finds or creates the study for key.
func (s *Store) EnsureStudy(ctx context.Context, key store.StudyKey, timestamp time.Time) (*store.Study, error) {
	dk := dedupKey(key.SeriesID, key.SubjectID, key.StudyInstanceUID)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO studies (id, dedup_key, series_id, subject, study_instance_uid, timestamp, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(dedup_key) DO NOTHING`,
		newID(), dk, key.SeriesID, key.SubjectID, key.StudyInstanceUID, formatTime(timestamp), formatTime(time.Now()),
	); err != nil {
		return nil, unavailable("ensure study", err)
	}
	study, err := scanStudy(s.db.QueryRowContext(ctx, "SELECT "+studyColumns+" FROM studies WHERE dedup_key = ?", dk))
	if err != nil {
		return nil, unavailable("ensure study", err)
	}
	return study, nil
}

// EnsureAcquisition finds or creates the acquisition for key.
func (s *Store) EnsureAcquisition(ctx context.Context, key store.AcquisitionKey) (*store.Acquisition, error) {
	dk := dedupKey(key.StudyID, key.AcquisitionNumber)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO acquisitions (id, dedup_key, study_id, acquisition_number, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(dedup_key) DO NOTHING`,
		newID(), dk, key.StudyID, nullable(key.AcquisitionNumber), formatTime(time.Now()),
	); err != nil {
		return nil, unavailable("ensure acquisition", err)
	}
	acq, err := scanAcquisition(s.db.QueryRowContext(ctx, "SELECT "+acquisitionColumns+" FROM acquisitions WHERE dedup_key = ?", dk))
	if err != nil {
		return nil, unavailable("ensure acquisition", err)
	}
	return acq, nil
}

// GetResearch returns the research with id.
func (s *Store) GetResearch(ctx context.Context, id string) (*store.Research, error) {
	research, err := scanResearch(s.db.QueryRowContext(ensureContext(ctx), "SELECT "+researchColumns+" FROM research WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("research", id)
	}
	if err != nil {
		return nil, unavailable("get research", err)
	}
	return research, nil
}

// ListResearch returns every research ordered by site, modality and station.
func (s *Store) ListResearch(ctx context.Context) ([]*store.Research, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+researchColumns+" FROM research ORDER BY site_id, modality, station_name, radiotracer")
	if err != nil {
		return nil, unavailable("list research", err)
	}
	defer rows.Close()

	var out []*store.Research
	for rows.Next() {
		research, err := scanResearch(rows)
		if err != nil {
			return nil, unavailable("list research", err)
		}
		out = append(out, research)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list research", err)
	}
	return out, nil
}

// GetSeries returns the series with id.
func (s *Store) GetSeries(ctx context.Context, id string) (*store.Series, error) {
	series, err := scanSeries(s.db.QueryRowContext(ensureContext(ctx), "SELECT "+seriesColumns+" FROM series WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("series", id)
	}
	if err != nil {
		return nil, unavailable("get series", err)
	}
	return series, nil
}

func scanResearch(row rowScanner) (*store.Research, error) {
	var (
		r           store.Research
		site        sql.NullString
		radiotracer sql.NullString
		created     string
	)
	if err := row.Scan(&r.ID, &site, &r.Modality, &r.StationName, &radiotracer, &created); err != nil {
		return nil, err
	}
	r.SiteID = fromNull(site)
	r.Radiotracer = fromNull(radiotracer)
	r.CreatedAt = parseTime(created)
	return &r, nil
}

func scanSeries(row rowScanner) (*store.Series, error) {
	var (
		series  store.Series
		examID  sql.NullString
		qcJSON  sql.NullString
		events  sql.NullString
		created string
	)
	if err := row.Scan(&series.ID, &series.ResearchID, &series.Description, &series.SeriesNumber, &examID, &qcJSON, &events, &created); err != nil {
		return nil, err
	}
	series.TemplateExamID = fromNull(examID)
	series.CreatedAt = parseTime(created)
	if qcJSON.Valid && qcJSON.String != "" {
		var qc store.SeriesQC
		if err := json.Unmarshal([]byte(qcJSON.String), &qc); err != nil {
			return nil, err
		}
		series.QC = &qc
	}
	if events.Valid && events.String != "" {
		if err := json.Unmarshal([]byte(events.String), &series.Events); err != nil {
			return nil, err
		}
	}
	return &series, nil
}

func scanStudy(row rowScanner) (*store.Study, error) {
	var (
		study     store.Study
		timestamp string
		created   string
	)
	if err := row.Scan(&study.ID, &study.SeriesID, &study.SubjectID, &study.StudyInstanceUID, &timestamp, &created); err != nil {
		return nil, err
	}
	study.Timestamp = parseTime(timestamp)
	study.CreatedAt = parseTime(created)
	return &study, nil
}

func scanAcquisition(row rowScanner) (*store.Acquisition, error) {
	var (
		acq     store.Acquisition
		number  sql.NullString
		created string
	)
	if err := row.Scan(&acq.ID, &acq.StudyID, &number, &created); err != nil {
		return nil, err
	}
	acq.AcquisitionNumber = fromNull(number)
	acq.CreatedAt = parseTime(created)
	return &acq, nil
}
