package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamvazu/SQAN/internal/store"
)

// SummarizeResearch lists the series of a research with image counts.
func (s *Store) SummarizeResearch(ctx context.Context, researchID string) ([]store.SeriesSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "series_desc", Value: 1}})
	cur, err := s.coll(collSeries).Find(ctx, bson.D{{Key: "research_id", Value: researchID}}, opts)
	if err != nil {
		return nil, unavailable("summarize research", err)
	}
	var series []store.Series
	if err := cur.All(ctx, &series); err != nil {
		return nil, unavailable("summarize research", err)
	}

	out := make([]store.SeriesSummary, 0, len(series))
	for i := range series {
		normalizeSeries(&series[i])
		stats, err := s.SeriesStats(ctx, series[i].ID)
		if err != nil {
			return nil, err
		}
		subjects, err := s.coll(collStudies).Distinct(ctx, "subject", bson.D{{Key: "series_id", Value: series[i].ID}})
		if err != nil {
			return nil, unavailable("summarize research", err)
		}
		out = append(out, store.SeriesSummary{
			SeriesID:     series[i].ID,
			Description:  series[i].Description,
			SeriesNumber: series[i].SeriesNumber,
			Subjects:     int64(len(subjects)),
			Stats:        stats,
			QC:           series[i].QC,
		})
	}
	return out, nil
}

// SetSeriesTemplateExam pins a series to a template exam; nil unpins it.
func (s *Store) SetSeriesTemplateExam(ctx context.Context, seriesID string, examID *string) error {
	update := bson.D{{Key: "$unset", Value: bson.D{{Key: "template_exam_id", Value: 1}}}}
	if examID != nil {
		update = bson.D{{Key: "$set", Value: bson.D{{Key: "template_exam_id", Value: *examID}}}}
	}
	res, err := s.coll(collSeries).UpdateByID(ctx, seriesID, update)
	if err != nil {
		return unavailable("set series template exam", err)
	}
	if res.MatchedCount == 0 {
		return notFound("series", seriesID)
	}
	return nil
}

// ReQC clears the QC state of every series and image in scope and returns
// the number of images re-enrolled.
func (s *Store) ReQC(ctx context.Context, scope store.Scope, event store.Event) (int64, error) {
	seriesFilter := bson.D{{Key: "research_id", Value: scope.ResearchID}}
	imageFilter := bson.D{{Key: "research_id", Value: scope.ResearchID}}
	if scope.SeriesID != "" {
		seriesFilter = bson.D{{Key: "_id", Value: scope.SeriesID}}
		imageFilter = bson.D{{Key: "series_id", Value: scope.SeriesID}}
	}

	seriesUpdate := bson.D{
		{Key: "$unset", Value: bson.D{{Key: "qc", Value: 1}}},
		{Key: "$push", Value: bson.D{{Key: "events", Value: event}}},
	}
	if _, err := s.coll(collSeries).UpdateMany(ctx, seriesFilter, seriesUpdate); err != nil {
		return 0, unavailable("reqc", err)
	}

	imageFilter = append(imageFilter, bson.E{Key: "qc", Value: bson.D{{Key: "$exists", Value: true}}})
	if scope.FailedOnly {
		exists := bson.D{{Key: "$exists", Value: true}}
		imageFilter = append(imageFilter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "qc.notemp", Value: true}},
			bson.D{{Key: "qc.errors.0", Value: exists}},
			bson.D{{Key: "qc.warnings.0", Value: exists}},
		}})
	}
	res, err := s.coll(collImages).UpdateMany(ctx, imageFilter, bson.D{{Key: "$unset", Value: bson.D{{Key: "qc", Value: 1}}}})
	if err != nil {
		return 0, unavailable("reqc", err)
	}
	return res.ModifiedCount, nil
}
