package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/store"
)

// Header blobs are carried as raw BSON so nested documents and arrays come
// back as plain JSON values instead of driver-specific types.

type imageDoc struct {
	ID            string         `bson:"_id"`
	ResearchID    string         `bson:"research_id"`
	SeriesID      string         `bson:"series_id"`
	StudyID       string         `bson:"study_id"`
	AcquisitionID string         `bson:"acquisition_id"`
	InstanceUID   string         `bson:"instance_uid"`
	Headers       bson.Raw       `bson:"headers,omitempty"`
	QC            *store.Verdict `bson:"qc,omitempty"`
	AttemptedAt   *time.Time     `bson:"qc_attempted_at,omitempty"`
	CreatedAt     time.Time      `bson:"created_at"`
}

type templateDoc struct {
	ID           string    `bson:"_id"`
	SeriesID     string    `bson:"series_id"`
	ExamID       string    `bson:"exam_id"`
	ResearchID   string    `bson:"research_id"`
	Description  string    `bson:"series_desc"`
	SeriesNumber int       `bson:"series_number"`
	Timestamp    time.Time `bson:"timestamp"`
	Count        int64     `bson:"count"`
	Headers      bson.Raw  `bson:"headers,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type templateHeaderDoc struct {
	ID                string    `bson:"_id"`
	TemplateID        string    `bson:"template_id"`
	InstanceNumber    *string   `bson:"instance_number"`
	EchoNumber        *string   `bson:"echo_number"`
	AcquisitionNumber *string   `bson:"acquisition_number"`
	Count             int64     `bson:"count"`
	Headers           bson.Raw  `bson:"headers,omitempty"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func encodeHeaders(h header.Headers) (bson.Raw, error) {
	if h == nil {
		return nil, nil
	}
	data, err := bson.Marshal(h)
	if err != nil {
		return nil, err
	}
	return bson.Raw(data), nil
}

func decodeHeaders(raw bson.Raw) (header.Headers, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, err
	}
	return header.Decode(data)
}

func newImageDoc(image *store.Image) (*imageDoc, error) {
	headers, err := encodeHeaders(image.Headers)
	if err != nil {
		return nil, err
	}
	return &imageDoc{
		ID:            image.ID,
		ResearchID:    image.ResearchID,
		SeriesID:      image.SeriesID,
		StudyID:       image.StudyID,
		AcquisitionID: image.AcquisitionID,
		InstanceUID:   image.InstanceUID,
		Headers:       headers,
		QC:            image.QC,
		CreatedAt:     image.CreatedAt,
	}, nil
}

func (d *imageDoc) model() (*store.Image, error) {
	headers, err := decodeHeaders(d.Headers)
	if err != nil {
		return nil, err
	}
	return &store.Image{
		ID:            d.ID,
		ResearchID:    d.ResearchID,
		SeriesID:      d.SeriesID,
		StudyID:       d.StudyID,
		AcquisitionID: d.AcquisitionID,
		InstanceUID:   d.InstanceUID,
		Headers:       headers,
		QC:            d.QC,
		CreatedAt:     d.CreatedAt.UTC(),
	}, nil
}

func (d *templateDoc) model() (*store.Template, error) {
	headers, err := decodeHeaders(d.Headers)
	if err != nil {
		return nil, err
	}
	return &store.Template{
		ID:           d.ID,
		SeriesID:     d.SeriesID,
		ExamID:       d.ExamID,
		ResearchID:   d.ResearchID,
		Description:  d.Description,
		SeriesNumber: d.SeriesNumber,
		Timestamp:    d.Timestamp.UTC(),
		Count:        d.Count,
		Headers:      headers,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

func (d *templateHeaderDoc) model() (*store.TemplateHeader, error) {
	headers, err := decodeHeaders(d.Headers)
	if err != nil {
		return nil, err
	}
	return &store.TemplateHeader{
		ID:                d.ID,
		TemplateID:        d.TemplateID,
		InstanceNumber:    d.InstanceNumber,
		EchoNumber:        d.EchoNumber,
		AcquisitionNumber: d.AcquisitionNumber,
		Count:             d.Count,
		Headers:           headers,
		UpdatedAt:         d.UpdatedAt.UTC(),
	}, nil
}
