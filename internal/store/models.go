package store

import (
	"time"

	"github.com/iamvazu/SQAN/internal/header"
)

// Research groups every series acquired at one site on one scanner with the
// same radio-tracer.
type Research struct {
	ID          string    `json:"id" bson:"_id"`
	SiteID      *string   `json:"site_id" bson:"site_id"`
	Modality    string    `json:"modality" bson:"modality"`
	StationName string    `json:"station_name" bson:"station_name"`
	Radiotracer *string   `json:"radiotracer" bson:"radiotracer"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// Event is an audit entry pushed onto a Series, e.g. by a re-QC request.
type Event struct {
	UserID string    `json:"user_id" bson:"user_id"`
	Title  string    `json:"title" bson:"title"`
	Date   time.Time `json:"date" bson:"date"`
	Detail string    `json:"detail" bson:"detail"`
}

// SeriesQC is the cached rollup of the image verdicts of one series.
type SeriesQC struct {
	Images     int64     `json:"images" bson:"images"`
	Errors     int64     `json:"errors" bson:"errors"`
	Warnings   int64     `json:"warnings" bson:"warnings"`
	NoTemplate int64     `json:"notemp" bson:"notemp"`
	Date       time.Time `json:"date" bson:"date"`
}

// Series is identified by (ResearchID, Description) and never changes
// identity once created.
type Series struct {
	ID             string    `json:"id" bson:"_id"`
	ResearchID     string    `json:"research_id" bson:"research_id"`
	Description    string    `json:"series_desc" bson:"series_desc"`
	SeriesNumber   int       `json:"series_number" bson:"series_number"`
	TemplateExamID *string   `json:"template_exam_id,omitempty" bson:"template_exam_id,omitempty"`
	QC             *SeriesQC `json:"qc,omitempty" bson:"qc,omitempty"`
	Events         []Event   `json:"events" bson:"events"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// Study is one subject's visit within a series.
type Study struct {
	ID               string    `json:"id" bson:"_id"`
	SeriesID         string    `json:"series_id" bson:"series_id"`
	SubjectID        string    `json:"subject" bson:"subject"`
	StudyInstanceUID string    `json:"study_instance_uid" bson:"study_instance_uid"`
	Timestamp        time.Time `json:"timestamp" bson:"timestamp"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
}

// Acquisition groups the images of one acquisition number within a study.
type Acquisition struct {
	ID                string    `json:"id" bson:"_id"`
	StudyID           string    `json:"study_id" bson:"study_id"`
	AcquisitionNumber *string   `json:"acquisition_number" bson:"acquisition_number"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// Image is one ingested DICOM instance. A nil QC means the image is waiting
// for the QC engine.
type Image struct {
	ID            string         `json:"id"`
	ResearchID    string         `json:"research_id"`
	SeriesID      string         `json:"series_id"`
	StudyID       string         `json:"study_id"`
	AcquisitionID string         `json:"acquisition_id"`
	InstanceUID   string         `json:"instance_uid"`
	Headers       header.Headers `json:"headers"`
	QC            *Verdict       `json:"qc,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TemplateExam groups the template series of one research acquired in the
// same session.
type TemplateExam struct {
	ID         string    `json:"id" bson:"_id"`
	ResearchID string    `json:"research_id" bson:"research_id"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// Template is a template series at one study timestamp. Count records how
// many instances were submitted under it; Headers holds the latest one.
type Template struct {
	ID           string         `json:"id"`
	SeriesID     string         `json:"series_id"`
	ExamID       string         `json:"exam_id"`
	ResearchID   string         `json:"research_id"`
	Description  string         `json:"series_desc"`
	SeriesNumber int            `json:"series_number"`
	Timestamp    time.Time      `json:"timestamp"`
	Count        int64          `json:"count"`
	Headers      header.Headers `json:"headers,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TemplateHeader is the reference header of one template instance, keyed by
// (TemplateID, InstanceNumber, EchoNumber). A nil EchoNumber only matches a
// nil EchoNumber.
type TemplateHeader struct {
	ID                string         `json:"id"`
	TemplateID        string         `json:"template_id"`
	InstanceNumber    *string        `json:"instance_number"`
	EchoNumber        *string        `json:"echo_number"`
	AcquisitionNumber *string        `json:"acquisition_number"`
	Count             int64          `json:"count"`
	Headers           header.Headers `json:"headers"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Finding is one discrepancy between an image and its template header.
type Finding struct {
	Field    string `json:"k" bson:"k"`
	Check    string `json:"c" bson:"c"`
	Message  string `json:"msg" bson:"msg"`
	Expected string `json:"tv,omitempty" bson:"tv,omitempty"`
	Actual   string `json:"v,omitempty" bson:"v,omitempty"`
}

// Verdict is the QC outcome stored on an Image.
type Verdict struct {
	TemplateID *string   `json:"template_id" bson:"template_id"`
	Date       time.Time `json:"date" bson:"date"`
	Errors     []Finding `json:"errors" bson:"errors"`
	Warnings   []Finding `json:"warnings" bson:"warnings"`
	NoTemplate bool      `json:"notemp" bson:"notemp"`
}

// Failed reports whether the verdict needs attention.
func (v *Verdict) Failed() bool {
	if v == nil {
		return false
	}
	return v.NoTemplate || len(v.Errors) > 0 || len(v.Warnings) > 0
}
