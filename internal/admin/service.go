package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/notifications"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/store"
)

const (
	// TitleResearchReQC is recorded on every series of a re-checked research.
	TitleResearchReQC = "Research-level ReQC"
	// TitleSeriesReQC is recorded on a re-checked series.
	TitleSeriesReQC = "Series-level ReQC"
)

// Service runs admin operations against a store.
type Service struct {
	store    store.Store
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service. notifier may be nil.
func NewService(s store.Store, notifier notifications.Service, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Service{
		store:    s,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "admin"),
		now:      time.Now,
	}
}

// ReQCRequest identifies who asked for a re-QC and how wide it is.
type ReQCRequest struct {
	UserID string
	// FailedOnly limits re-enrolment to images whose verdict has errors,
	// warnings or no template.
	FailedOnly bool
}

func (r ReQCRequest) validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return services.Wrap(services.ErrConfiguration, "admin", "reqc", "user id is required", nil)
	}
	return nil
}

func (r ReQCRequest) detail() string {
	if r.FailedOnly {
		return "failed images only"
	}
	return "all images"
}

// ResearchReQC clears the QC of every series in the research and returns the
// number of images re-enrolled for checking.
func (s *Service) ResearchReQC(ctx context.Context, researchID string, req ReQCRequest) (int64, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}
	if _, err := s.store.GetResearch(ctx, researchID); err != nil {
		return 0, err
	}
	return s.reqc(ctx, store.Scope{ResearchID: researchID, FailedOnly: req.FailedOnly}, TitleResearchReQC, req)
}

// SeriesReQC clears the QC of one series and returns the number of images
// re-enrolled for checking.
func (s *Service) SeriesReQC(ctx context.Context, seriesID string, req ReQCRequest) (int64, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}
	if _, err := s.store.GetSeries(ctx, seriesID); err != nil {
		return 0, err
	}
	return s.reqc(ctx, store.Scope{SeriesID: seriesID, FailedOnly: req.FailedOnly}, TitleSeriesReQC, req)
}

func (s *Service) reqc(ctx context.Context, scope store.Scope, title string, req ReQCRequest) (int64, error) {
	event := store.Event{
		UserID: strings.TrimSpace(req.UserID),
		Title:  title,
		Date:   s.now().UTC(),
		Detail: req.detail(),
	}
	n, err := s.store.ReQC(ctx, scope, event)
	if err != nil {
		return 0, err
	}
	s.logger.Info("reqc requested",
		logging.String("title", title),
		logging.String("user_id", event.UserID),
		logging.String("research_id", scope.ResearchID),
		logging.String(logging.FieldSeriesID, scope.SeriesID),
		logging.Bool("failed_only", scope.FailedOnly),
		logging.Int64("images", n),
	)
	if err := s.notifier.Publish(ctx, notifications.EventReQC, notifications.Payload{
		"title": title,
		"user":  event.UserID,
		"count": n,
	}); err != nil {
		s.logger.Debug("reqc notification failed", logging.Error(err))
	}
	return n, nil
}

// PinTemplateExam makes the series compare against examID instead of the
// latest template exam of its research.
func (s *Service) PinTemplateExam(ctx context.Context, seriesID, examID string) error {
	series, err := s.store.GetSeries(ctx, seriesID)
	if err != nil {
		return err
	}
	templates, err := s.store.TemplatesByExam(ctx, examID)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return services.Wrap(services.ErrNotFound, "admin", "pin template exam", examID, nil)
	}
	if templates[0].ResearchID != series.ResearchID {
		return services.Wrap(services.ErrConfiguration, "admin", "pin template exam",
			fmt.Sprintf("template exam %s belongs to research %s, not %s", examID, templates[0].ResearchID, series.ResearchID), nil)
	}
	if err := s.store.SetSeriesTemplateExam(ctx, seriesID, &examID); err != nil {
		return err
	}
	s.logger.Info("series pinned to template exam",
		logging.String(logging.FieldSeriesID, seriesID),
		logging.String("template_exam_id", examID),
	)
	return nil
}

// UnpinTemplateExam returns the series to following the latest template exam.
func (s *Service) UnpinTemplateExam(ctx context.Context, seriesID string) error {
	if err := s.store.SetSeriesTemplateExam(ctx, seriesID, nil); err != nil {
		return err
	}
	s.logger.Info("series unpinned", logging.String(logging.FieldSeriesID, seriesID))
	return nil
}

// ListResearch returns every research.
func (s *Service) ListResearch(ctx context.Context) ([]*store.Research, error) {
	return s.store.ListResearch(ctx)
}

// ResearchSummary is a research with per-series counts.
type ResearchSummary struct {
	Research *store.Research       `json:"research"`
	Series   []store.SeriesSummary `json:"series"`
}

// Summary describes the series of a research.
func (s *Service) Summary(ctx context.Context, researchID string) (*ResearchSummary, error) {
	research, err := s.store.GetResearch(ctx, researchID)
	if err != nil {
		return nil, err
	}
	series, err := s.store.SummarizeResearch(ctx, researchID)
	if err != nil {
		return nil, err
	}
	return &ResearchSummary{Research: research, Series: series}, nil
}

// TemplateHead is a template with its research and instance headers.
type TemplateHead struct {
	Template *store.Template         `json:"template"`
	Research *store.Research         `json:"research"`
	Headers  []*store.TemplateHeader `json:"headers"`
}

// TemplateHead loads a template for inspection, headers ordered by
// acquisition and instance number.
func (s *Service) TemplateHead(ctx context.Context, templateID string) (*TemplateHead, error) {
	template, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	research, err := s.store.GetResearch(ctx, template.ResearchID)
	if err != nil {
		return nil, err
	}
	headers, err := s.store.TemplateHeaders(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return &TemplateHead{Template: template, Research: research, Headers: headers}, nil
}
