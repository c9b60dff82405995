package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iamvazu/SQAN/internal/store"
)

const (
	examColumns           = "id, research_id, timestamp, created_at"
	templateColumns       = "id, series_id, exam_id, research_id, series_desc, series_number, timestamp, instance_count, headers_json, created_at, updated_at"
	templateHeaderColumns = "id, template_id, instance_number, echo_number, acquisition_number, instance_count, headers_json, updated_at"
)

// EnsureTemplateExam finds or creates the template exam for key.
func (s *Store) EnsureTemplateExam(ctx context.Context, key store.TemplateExamKey) (*store.TemplateExam, error) {
	dk := dedupKey(key.ResearchID, formatTime(key.Timestamp))
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO template_exams (id, dedup_key, research_id, timestamp, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(dedup_key) DO NOTHING`,
		newID(), dk, key.ResearchID, formatTime(key.Timestamp), formatTime(time.Now()),
	); err != nil {
		return nil, unavailable("ensure template exam", err)
	}
	exam, err := scanExam(s.db.QueryRowContext(ctx, "SELECT "+examColumns+" FROM template_exams WHERE dedup_key = ?", dk))
	if err != nil {
		return nil, unavailable("ensure template exam", err)
	}
	return exam, nil
}

// UpsertTemplate creates the template for (SeriesID, Timestamp) or bumps its
// count and replaces its header snapshot.
func (s *Store) UpsertTemplate(ctx context.Context, t *store.Template) (*store.Template, error) {
	if t == nil {
		return nil, errors.New("upsert template: template is nil")
	}
	headers, err := marshalJSON(t.Headers)
	if err != nil {
		return nil, unavailable("upsert template", err)
	}
	now := formatTime(time.Now())
	dk := dedupKey(t.SeriesID, formatTime(t.Timestamp))
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO templates (
            id, dedup_key, series_id, exam_id, research_id, series_desc, series_number,
            timestamp, instance_count, headers_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
        ON CONFLICT(dedup_key) DO UPDATE SET
            instance_count = instance_count + 1,
            headers_json = excluded.headers_json,
            updated_at = excluded.updated_at`,
		newID(), dk, t.SeriesID, t.ExamID, t.ResearchID, t.Description, t.SeriesNumber,
		formatTime(t.Timestamp), headers, now, now,
	); err != nil {
		return nil, unavailable("upsert template", err)
	}
	out, err := scanTemplate(s.db.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM templates WHERE dedup_key = ?", dk))
	if err != nil {
		return nil, unavailable("upsert template", err)
	}
	return out, nil
}

// UpsertTemplateHeader creates the header for (TemplateID, InstanceNumber,
// EchoNumber) or bumps its count and replaces its header snapshot.
func (s *Store) UpsertTemplateHeader(ctx context.Context, th *store.TemplateHeader) (*store.TemplateHeader, error) {
	if th == nil {
		return nil, errors.New("upsert template header: header is nil")
	}
	headers, err := marshalJSON(th.Headers)
	if err != nil {
		return nil, unavailable("upsert template header", err)
	}
	dk := templateHeaderKey(store.TemplateHeaderKey{TemplateID: th.TemplateID, InstanceNumber: th.InstanceNumber, EchoNumber: th.EchoNumber})
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO template_headers (
            id, dedup_key, template_id, instance_number, echo_number, acquisition_number,
            instance_count, headers_json, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
        ON CONFLICT(dedup_key) DO UPDATE SET
            instance_count = instance_count + 1,
            acquisition_number = excluded.acquisition_number,
            headers_json = excluded.headers_json,
            updated_at = excluded.updated_at`,
		newID(), dk, th.TemplateID, nullable(th.InstanceNumber), nullable(th.EchoNumber), nullable(th.AcquisitionNumber),
		headers, formatTime(time.Now()),
	); err != nil {
		return nil, unavailable("upsert template header", err)
	}
	out, err := scanTemplateHeader(s.db.QueryRowContext(ctx, "SELECT "+templateHeaderColumns+" FROM template_headers WHERE dedup_key = ?", dk))
	if err != nil {
		return nil, unavailable("upsert template header", err)
	}
	return out, nil
}

// LatestTemplateExam returns the newest template exam of a research, or nil.
func (s *Store) LatestTemplateExam(ctx context.Context, researchID string) (*store.TemplateExam, error) {
	exam, err := scanExam(s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+examColumns+" FROM template_exams WHERE research_id = ? ORDER BY timestamp DESC, id LIMIT 1", researchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("latest template exam", err)
	}
	return exam, nil
}

// TemplatesByExam lists the templates of an exam.
func (s *Store) TemplatesByExam(ctx context.Context, examID string) ([]*store.Template, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+templateColumns+" FROM templates WHERE exam_id = ? ORDER BY series_number, id", examID)
	if err != nil {
		return nil, unavailable("templates by exam", err)
	}
	defer rows.Close()

	var out []*store.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, unavailable("templates by exam", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("templates by exam", err)
	}
	return out, nil
}

// FindTemplateHeader returns the header matching key, or nil.
func (s *Store) FindTemplateHeader(ctx context.Context, key store.TemplateHeaderKey) (*store.TemplateHeader, error) {
	th, err := scanTemplateHeader(s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+templateHeaderColumns+" FROM template_headers WHERE dedup_key = ?", templateHeaderKey(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find template header", err)
	}
	return th, nil
}

// GetTemplate returns the template with id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*store.Template, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ensureContext(ctx), "SELECT "+templateColumns+" FROM templates WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("template", id)
	}
	if err != nil {
		return nil, unavailable("get template", err)
	}
	return t, nil
}

// TemplateHeaders lists the headers of a template by acquisition and instance number.
func (s *Store) TemplateHeaders(ctx context.Context, templateID string) ([]*store.TemplateHeader, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+templateHeaderColumns+` FROM template_headers WHERE template_id = ?
         ORDER BY CAST(acquisition_number AS INTEGER), CAST(instance_number AS INTEGER), echo_number`, templateID)
	if err != nil {
		return nil, unavailable("template headers", err)
	}
	defer rows.Close()

	var out []*store.TemplateHeader
	for rows.Next() {
		th, err := scanTemplateHeader(rows)
		if err != nil {
			return nil, unavailable("template headers", err)
		}
		out = append(out, th)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("template headers", err)
	}
	return out, nil
}

func templateHeaderKey(key store.TemplateHeaderKey) string {
	return dedupKey(key.TemplateID, key.InstanceNumber, key.EchoNumber)
}

func scanExam(row rowScanner) (*store.TemplateExam, error) {
	var (
		exam      store.TemplateExam
		timestamp string
		created   string
	)
	if err := row.Scan(&exam.ID, &exam.ResearchID, &timestamp, &created); err != nil {
		return nil, err
	}
	exam.Timestamp = parseTime(timestamp)
	exam.CreatedAt = parseTime(created)
	return &exam, nil
}

func scanTemplate(row rowScanner) (*store.Template, error) {
	var (
		t         store.Template
		timestamp string
		headers   sql.NullString
		created   string
		updated   string
	)
	if err := row.Scan(&t.ID, &t.SeriesID, &t.ExamID, &t.ResearchID, &t.Description, &t.SeriesNumber,
		&timestamp, &t.Count, &headers, &created, &updated); err != nil {
		return nil, err
	}
	decoded, err := decodeHeaders(headers)
	if err != nil {
		return nil, err
	}
	t.Headers = decoded
	t.Timestamp = parseTime(timestamp)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

func scanTemplateHeader(row rowScanner) (*store.TemplateHeader, error) {
	var (
		th       store.TemplateHeader
		instance sql.NullString
		echo     sql.NullString
		acq      sql.NullString
		headers  sql.NullString
		updated  string
	)
	if err := row.Scan(&th.ID, &th.TemplateID, &instance, &echo, &acq, &th.Count, &headers, &updated); err != nil {
		return nil, err
	}
	decoded, err := decodeHeaders(headers)
	if err != nil {
		return nil, err
	}
	th.Headers = decoded
	th.InstanceNumber = fromNull(instance)
	th.EchoNumber = fromNull(echo)
	th.AcquisitionNumber = fromNull(acq)
	th.UpdatedAt = parseTime(updated)
	return &th, nil
}
