package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamvazu/SQAN/internal/store"
)

// EnsureResearch finds or creates the research for key.
func (s *Store) EnsureResearch(ctx context.Context, key store.ResearchKey) (*store.Research, error) {
	filter := bson.D{
		{Key: "site_id", Value: nullable(key.SiteID)},
		{Key: "modality", Value: key.Modality},
		{Key: "station_name", Value: key.StationName},
		{Key: "radiotracer", Value: nullable(key.Radiotracer)},
	}
	onInsert := bson.D{
		{Key: "_id", Value: uuid.NewString()},
		{Key: "created_at", Value: time.Now().UTC()},
	}
	var research store.Research
	if err := s.ensure(ctx, collResearch, filter, onInsert, &research); err != nil {
		return nil, unavailable("ensure research", err)
	}
	research.CreatedAt = research.CreatedAt.UTC()
	return &research, nil
}

// EnsureSeries finds or creates the series for key.
func (s *Store) EnsureSeries(ctx context.Context, key store.SeriesKey, seriesNumber int) (*store.Series, error) {
	filter := bson.D{
		{Key: "research_id", Value: key.ResearchID},
		{Key: "series_desc", Value: key.Description},
	}
	onInsert := bson.D{
		{Key: "_id", Value: uuid.NewString()},
		{Key: "series_number", Value: seriesNumber},
		{Key: "events", Value: bson.A{}},
		{Key: "created_at", Value: time.Now().UTC()},
	}
	var series store.Series
	if err := s.ensure(ctx, collSeries, filter, onInsert, &series); err != nil {
		return nil, unavailable("ensure series", err)
	}
	normalizeSeries(&series)
	return &series, nil
}

// EnsureStudy finds or creates the study for key.
func (s *Store) EnsureStudy(ctx context.Context, key store.StudyKey, timestamp time.Time) (*store.Study, error) {
	filter := bson.D{
		{Key: "series_id", Value: key.SeriesID},
		{Key: "subject", Value: key.SubjectID},
		{Key: "study_instance_uid", Value: key.StudyInstanceUID},
	}
	onInsert := bson.D{
		{Key: "_id", Value: uuid.NewString()},
		{Key: "timestamp", Value: timestamp.UTC()},
		{Key: "created_at", Value: time.Now().UTC()},
	}
	var study store.Study
	if err := s.ensure(ctx, collStudies, filter, onInsert, &study); err != nil {
		return nil, unavailable("ensure study", err)
	}
	study.Timestamp = study.Timestamp.UTC()
	study.CreatedAt = study.CreatedAt.UTC()
	return &study, nil
}

// EnsureAcquisition finds or creates the acquisition for key.
func (s *Store) EnsureAcquisition(ctx context.Context, key store.AcquisitionKey) (*store.Acquisition, error) {
	filter := bson.D{
		{Key: "study_id", Value: key.StudyID},
		{Key: "acquisition_number", Value: nullable(key.AcquisitionNumber)},
	}
	onInsert := bson.D{
		{Key: "_id", Value: uuid.NewString()},
		{Key: "created_at", Value: time.Now().UTC()},
	}
	var acq store.Acquisition
	if err := s.ensure(ctx, collAcquisitions, filter, onInsert, &acq); err != nil {
		return nil, unavailable("ensure acquisition", err)
	}
	acq.CreatedAt = acq.CreatedAt.UTC()
	return &acq, nil
}

// GetResearch returns the research with id.
func (s *Store) GetResearch(ctx context.Context, id string) (*store.Research, error) {
	var research store.Research
	if err := s.findByID(ctx, collResearch, "research", id, &research); err != nil {
		return nil, err
	}
	research.CreatedAt = research.CreatedAt.UTC()
	return &research, nil
}

// ListResearch returns every research ordered by site, modality and station.
func (s *Store) ListResearch(ctx context.Context) ([]*store.Research, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "site_id", Value: 1},
		{Key: "modality", Value: 1},
		{Key: "station_name", Value: 1},
		{Key: "radiotracer", Value: 1},
	})
	cur, err := s.coll(collResearch).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, unavailable("list research", err)
	}
	var out []*store.Research
	if err := cur.All(ctx, &out); err != nil {
		return nil, unavailable("list research", err)
	}
	for _, r := range out {
		r.CreatedAt = r.CreatedAt.UTC()
	}
	return out, nil
}

// GetSeries returns the series with id.
func (s *Store) GetSeries(ctx context.Context, id string) (*store.Series, error) {
	var series store.Series
	if err := s.findByID(ctx, collSeries, "series", id, &series); err != nil {
		return nil, err
	}
	normalizeSeries(&series)
	return &series, nil
}

func normalizeSeries(series *store.Series) {
	series.CreatedAt = series.CreatedAt.UTC()
	if series.QC != nil {
		series.QC.Date = series.QC.Date.UTC()
	}
	for i := range series.Events {
		series.Events[i].Date = series.Events[i].Date.UTC()
	}
}
