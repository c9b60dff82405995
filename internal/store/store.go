package store

import (
	"context"
	"time"
)

// ResearchKey is the identity of a Research. Nil pointers are a legitimate
// group of their own and only match nil.
type ResearchKey struct {
	SiteID      *string
	Modality    string
	StationName string
	Radiotracer *string
}

// SeriesKey is the identity of a Series.
type SeriesKey struct {
	ResearchID  string
	Description string
}

// StudyKey is the identity of a Study.
type StudyKey struct {
	SeriesID         string
	SubjectID        string
	StudyInstanceUID string
}

// AcquisitionKey is the identity of an Acquisition.
type AcquisitionKey struct {
	StudyID           string
	AcquisitionNumber *string
}

// TemplateExamKey is the identity of a TemplateExam.
type TemplateExamKey struct {
	ResearchID string
	Timestamp  time.Time
}

// TemplateHeaderKey selects the template header matching one image.
type TemplateHeaderKey struct {
	TemplateID     string
	InstanceNumber *string
	EchoNumber     *string
}

// Scope selects the series and images touched by a re-QC request. Exactly
// one of ResearchID and SeriesID is set.
type Scope struct {
	ResearchID string
	SeriesID   string
	// FailedOnly limits image re-enrolment to verdicts with errors,
	// warnings or a missing template.
	FailedOnly bool
}

// SeriesStats counts the images of one series by QC state.
type SeriesStats struct {
	Images     int64 `json:"images"`
	Pending    int64 `json:"pending"`
	Errors     int64 `json:"errors"`
	Warnings   int64 `json:"warnings"`
	NoTemplate int64 `json:"notemp"`
}

// SeriesSummary describes one series of a research for the summary view.
type SeriesSummary struct {
	SeriesID     string      `json:"series_id"`
	Description  string      `json:"series_desc"`
	SeriesNumber int         `json:"series_number"`
	Subjects     int64       `json:"subjects"`
	Stats        SeriesStats `json:"stats"`
	QC           *SeriesQC   `json:"qc,omitempty"`
}

// Store is the document-store capability consumed by the upsert layer, the
// QC engine and the admin commands.
//
// Ensure* operations find the document with the given identity or create it
// without overwriting an existing one. They are safe to call concurrently
// from several processes. Lookups of a single document by ID return an error
// wrapping services.ErrNotFound when it does not exist.
type Store interface {
	EnsureResearch(ctx context.Context, key ResearchKey) (*Research, error)
	EnsureSeries(ctx context.Context, key SeriesKey, seriesNumber int) (*Series, error)
	EnsureStudy(ctx context.Context, key StudyKey, timestamp time.Time) (*Study, error)
	EnsureAcquisition(ctx context.Context, key AcquisitionKey) (*Acquisition, error)
	EnsureTemplateExam(ctx context.Context, key TemplateExamKey) (*TemplateExam, error)
	// InsertImage appends a new image. Images are never deduplicated.
	InsertImage(ctx context.Context, image *Image) error
	// UpsertTemplate creates the template for (SeriesID, Timestamp) or
	// increments its count and replaces its header snapshot.
	UpsertTemplate(ctx context.Context, template *Template) (*Template, error)
	// UpsertTemplateHeader creates the header for its key or increments its
	// count and replaces its header snapshot.
	UpsertTemplateHeader(ctx context.Context, th *TemplateHeader) (*TemplateHeader, error)

	// PendingImages returns up to limit images without a QC verdict. Images
	// never attempted come first in insertion order, then attempted ones by
	// oldest attempt.
	PendingImages(ctx context.Context, limit int) ([]*Image, error)
	// MarkImageAttempted records a failed QC attempt so the image yields its
	// place in PendingImages. SetImageQC clears the mark.
	MarkImageAttempted(ctx context.Context, imageID string, at time.Time) error
	CountPendingImages(ctx context.Context) (int64, error)
	GetSeries(ctx context.Context, id string) (*Series, error)
	// LatestTemplateExam returns nil without error when the research has no
	// template exam.
	LatestTemplateExam(ctx context.Context, researchID string) (*TemplateExam, error)
	TemplatesByExam(ctx context.Context, examID string) ([]*Template, error)
	// FindTemplateHeader returns nil without error when nothing matches.
	FindTemplateHeader(ctx context.Context, key TemplateHeaderKey) (*TemplateHeader, error)
	SetImageQC(ctx context.Context, imageID string, verdict *Verdict) error
	ClearSeriesQC(ctx context.Context, seriesID string) error
	SetSeriesQC(ctx context.Context, seriesID string, qc *SeriesQC) error
	SeriesStats(ctx context.Context, seriesID string) (SeriesStats, error)

	ListResearch(ctx context.Context) ([]*Research, error)
	GetResearch(ctx context.Context, id string) (*Research, error)
	SummarizeResearch(ctx context.Context, researchID string) ([]SeriesSummary, error)
	// SetSeriesTemplateExam pins a series to a template exam so the selector
	// stops following the latest one. A nil examID unpins it.
	SetSeriesTemplateExam(ctx context.Context, seriesID string, examID *string) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	// TemplateHeaders lists the headers of a template ordered by acquisition
	// and instance number.
	TemplateHeaders(ctx context.Context, templateID string) ([]*TemplateHeader, error)
	// ReQC unsets the cached QC of every series in scope, records event on
	// them, and unsets the verdict of their images. It returns the number of
	// images re-enrolled.
	ReQC(ctx context.Context, scope Scope, event Event) (int64, error)

	Close() error
}
