package upsert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/store"
)

// Result carries every document touched by one upsert. The template branch
// leaves Study, Acquisition and Image nil; the subject branch leaves the
// template fields nil.
type Result struct {
	Research       *store.Research
	Series         *store.Series
	Study          *store.Study
	Acquisition    *store.Acquisition
	Image          *store.Image
	Exam           *store.TemplateExam
	Template       *store.Template
	TemplateHeader *store.TemplateHeader
}

// Upserter writes normalized headers through a store.Store.
type Upserter struct {
	store  store.Store
	logger *slog.Logger
}

// New constructs an Upserter.
func New(s store.Store, logger *slog.Logger) *Upserter {
	return &Upserter{store: s, logger: logging.NewComponentLogger(logger, "upsert")}
}

// Upsert files cleaned under the hierarchy derived from id.
func (u *Upserter) Upsert(ctx context.Context, id header.Identity, cleaned header.Headers) (*Result, error) {
	research, err := u.store.EnsureResearch(ctx, store.ResearchKey{
		SiteID:      id.SiteID,
		Modality:    id.Modality,
		StationName: id.StationName,
		Radiotracer: id.Radiotracer,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert research: %w", err)
	}

	series, err := u.store.EnsureSeries(ctx, store.SeriesKey{
		ResearchID:  research.ID,
		Description: id.SeriesDescription,
	}, id.SeriesNumber)
	if err != nil {
		return nil, fmt.Errorf("upsert series: %w", err)
	}

	result := &Result{Research: research, Series: series}
	if id.IsTemplate {
		err = u.upsertTemplate(ctx, id, cleaned, result)
	} else {
		err = u.upsertImage(ctx, id, cleaned, result)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (u *Upserter) upsertTemplate(ctx context.Context, id header.Identity, cleaned header.Headers, result *Result) error {
	exam, err := u.store.EnsureTemplateExam(ctx, store.TemplateExamKey{
		ResearchID: result.Research.ID,
		Timestamp:  id.StudyTimestamp,
	})
	if err != nil {
		return fmt.Errorf("upsert template exam: %w", err)
	}

	tmpl, err := u.store.UpsertTemplate(ctx, &store.Template{
		SeriesID:     result.Series.ID,
		ExamID:       exam.ID,
		ResearchID:   result.Research.ID,
		Description:  id.SeriesDescription,
		SeriesNumber: id.SeriesNumber,
		Timestamp:    id.StudyTimestamp,
		Headers:      cleaned,
	})
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}

	th, err := u.store.UpsertTemplateHeader(ctx, &store.TemplateHeader{
		TemplateID:        tmpl.ID,
		InstanceNumber:    id.InstanceNumber,
		EchoNumber:        id.EchoNumber,
		AcquisitionNumber: id.AcquisitionNumber,
		Headers:           cleaned,
	})
	if err != nil {
		return fmt.Errorf("upsert template header: %w", err)
	}

	if th.Count > 1 {
		u.logger.Debug("template header replaced",
			logging.String("template_id", tmpl.ID),
			logging.Int64("count", th.Count),
		)
	}
	result.Exam = exam
	result.Template = tmpl
	result.TemplateHeader = th
	return nil
}

func (u *Upserter) upsertImage(ctx context.Context, id header.Identity, cleaned header.Headers, result *Result) error {
	study, err := u.store.EnsureStudy(ctx, store.StudyKey{
		SeriesID:         result.Series.ID,
		SubjectID:        id.SubjectID,
		StudyInstanceUID: id.StudyInstanceUID,
	}, id.StudyTimestamp)
	if err != nil {
		return fmt.Errorf("upsert study: %w", err)
	}

	acq, err := u.store.EnsureAcquisition(ctx, store.AcquisitionKey{
		StudyID:           study.ID,
		AcquisitionNumber: id.AcquisitionNumber,
	})
	if err != nil {
		return fmt.Errorf("upsert acquisition: %w", err)
	}

	image := &store.Image{
		ResearchID:    result.Research.ID,
		SeriesID:      result.Series.ID,
		StudyID:       study.ID,
		AcquisitionID: acq.ID,
		InstanceUID:   id.InstanceUID,
		Headers:       cleaned,
	}
	if err := u.store.InsertImage(ctx, image); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}

	result.Study = study
	result.Acquisition = acq
	result.Image = image
	return nil
}
