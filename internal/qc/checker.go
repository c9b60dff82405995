package qc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/store"
)

// Checker evaluates and records the QC verdict of one image.
type Checker struct {
	store     store.Store
	selector  *Selector
	evaluator Evaluator
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// NewChecker constructs a Checker.
func NewChecker(s store.Store, evaluator Evaluator, logger *slog.Logger) *Checker {
	return &Checker{
		store:     s,
		selector:  NewSelector(s),
		evaluator: evaluator,
		tracer:    otel.Tracer("github.com/iamvazu/SQAN/internal/qc"),
		logger:    logging.NewComponentLogger(logger, "qc"),
		now:       time.Now,
	}
}

// Check computes the verdict of img, stores it, then clears the cached QC of
// the owning series.
func (c *Checker) Check(ctx context.Context, img *store.Image) (*store.Verdict, error) {
	ctx, span := c.tracer.Start(ctx, "qc.check", trace.WithAttributes(
		attribute.String("sqan.image_id", img.ID),
		attribute.String("sqan.series_id", img.SeriesID),
	))
	defer span.End()

	verdict, err := c.Evaluate(ctx, img)
	if err == nil {
		err = c.store.SetImageQC(ctx, img.ID, verdict)
	}
	if err == nil {
		err = c.store.ClearSeriesQC(ctx, img.SeriesID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("sqan.notemp", verdict.NoTemplate),
		attribute.Int("sqan.errors", len(verdict.Errors)),
		attribute.Int("sqan.warnings", len(verdict.Warnings)),
	)
	return verdict, nil
}

// Evaluate computes the verdict of img without storing it.
func (c *Checker) Evaluate(ctx context.Context, img *store.Image) (*store.Verdict, error) {
	now := c.now().UTC()
	series, err := c.store.GetSeries(ctx, img.SeriesID)
	if err != nil {
		return nil, fmt.Errorf("resolve series %s: %w", img.SeriesID, err)
	}
	logger := c.logger.With(logging.String(logging.FieldImageID, img.ID), logging.String(logging.FieldSeriesID, series.ID))

	template, err := c.selector.Select(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("select template: %w", err)
	}
	if template == nil {
		logger.Debug("no template for series", logging.String("research_id", series.ResearchID))
		return noTemplate(now), nil
	}

	th, err := c.store.FindTemplateHeader(ctx, store.TemplateHeaderKey{
		TemplateID:     template.ID,
		InstanceNumber: img.Headers.Optional("InstanceNumber"),
		EchoNumber:     img.Headers.Optional("EchoNumbers"),
	})
	if err != nil {
		return nil, fmt.Errorf("find template header: %w", err)
	}
	if th == nil {
		logger.Debug("no template header for instance", logging.String("template_id", template.ID))
		return noTemplate(now), nil
	}

	errs, warnings := c.evaluator.Evaluate(img.Headers, th.Headers)
	templateID := template.ID
	return &store.Verdict{
		TemplateID: &templateID,
		Date:       now,
		Errors:     errs,
		Warnings:   warnings,
	}, nil
}

func noTemplate(now time.Time) *store.Verdict {
	return &store.Verdict{
		Date:       now,
		Errors:     []store.Finding{},
		Warnings:   []store.Finding{},
		NoTemplate: true,
	}
}
