package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/iamvazu/SQAN/internal/store"
)

// SummarizeResearch lists the series of a research with image counts.
func (s *Store) SummarizeResearch(ctx context.Context, researchID string) ([]store.SeriesSummary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT s.id, s.series_desc, s.series_number, s.qc_json,
            (SELECT COUNT(DISTINCT st.subject) FROM studies st WHERE st.series_id = s.id),
            `+statsSelect+`
        FROM series s
        LEFT JOIN images i ON i.series_id = s.id
        WHERE s.research_id = ?
        GROUP BY s.id
        ORDER BY s.series_desc`, researchID)
	if err != nil {
		return nil, unavailable("summarize research", err)
	}
	defer rows.Close()

	var out []store.SeriesSummary
	for rows.Next() {
		var (
			summary store.SeriesSummary
			qcJSON  sql.NullString
		)
		if err := rows.Scan(&summary.SeriesID, &summary.Description, &summary.SeriesNumber, &qcJSON, &summary.Subjects,
			&summary.Stats.Images, &summary.Stats.Pending, &summary.Stats.Errors, &summary.Stats.Warnings, &summary.Stats.NoTemplate); err != nil {
			return nil, unavailable("summarize research", err)
		}
		if qcJSON.Valid && qcJSON.String != "" {
			var qc store.SeriesQC
			if err := json.Unmarshal([]byte(qcJSON.String), &qc); err != nil {
				return nil, unavailable("summarize research", err)
			}
			summary.QC = &qc
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("summarize research", err)
	}
	return out, nil
}

// SetSeriesTemplateExam pins a series to a template exam; nil unpins it.
func (s *Store) SetSeriesTemplateExam(ctx context.Context, seriesID string, examID *string) error {
	res, err := s.execWithRetry(ctx, "UPDATE series SET template_exam_id = ? WHERE id = ?", nullable(examID), seriesID)
	if err != nil {
		return unavailable("set series template exam", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("series", seriesID)
	}
	return nil
}

// ReQC clears the QC state of every series and image in scope inside one
// transaction and returns the number of images re-enrolled.
func (s *Store) ReQC(ctx context.Context, scope store.Scope, event store.Event) (int64, error) {
	column, id := scopeColumn(scope)
	eventJSON, err := marshalJSON(event)
	if err != nil {
		return 0, unavailable("reqc", err)
	}

	var modified int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		seriesFilter := "research_id = ?"
		if column == "series_id" {
			seriesFilter = "id = ?"
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE series SET qc_json = NULL, events_json = json_insert(events_json, '$[#]', json(?))
             WHERE `+seriesFilter, eventJSON, id); err != nil {
			return err
		}

		var query strings.Builder
		query.WriteString("UPDATE images SET qc_json = NULL, qc_errors = 0, qc_warnings = 0, qc_notemp = 0 WHERE ")
		query.WriteString(column)
		query.WriteString(" = ? AND qc_json IS NOT NULL")
		if scope.FailedOnly {
			query.WriteString(" AND (qc_errors > 0 OR qc_warnings > 0 OR qc_notemp = 1)")
		}
		res, err := tx.ExecContext(ctx, query.String(), id)
		if err != nil {
			return err
		}
		modified, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, unavailable("reqc", err)
	}
	return modified, nil
}

func scopeColumn(scope store.Scope) (string, string) {
	if scope.SeriesID != "" {
		return "series_id", scope.SeriesID
	}
	return "research_id", scope.ResearchID
}
