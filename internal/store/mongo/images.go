package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamvazu/SQAN/internal/store"
)

var pendingFilter = bson.D{{Key: "qc", Value: bson.D{{Key: "$exists", Value: false}}}}

// InsertImage appends image, assigning an ID and creation time when unset.
func (s *Store) InsertImage(ctx context.Context, image *store.Image) error {
	if image == nil {
		return errors.New("insert image: image is nil")
	}
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}
	doc, err := newImageDoc(image)
	if err != nil {
		return unavailable("insert image", err)
	}
	if _, err := s.coll(collImages).InsertOne(ctx, doc); err != nil {
		return unavailable("insert image", err)
	}
	return nil
}

// PendingImages returns up to limit images without a verdict. Missing
// qc_attempted_at sorts first, so unattempted images precede failed ones.
func (s *Store) PendingImages(ctx context.Context, limit int) ([]*store.Image, error) {
	if limit <= 0 {
		limit = 1
	}
	opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{
		{Key: "qc_attempted_at", Value: 1},
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := s.coll(collImages).Find(ctx, pendingFilter, opts)
	if err != nil {
		return nil, unavailable("pending images", err)
	}
	var docs []imageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("pending images", err)
	}
	images := make([]*store.Image, 0, len(docs))
	for i := range docs {
		image, err := docs[i].model()
		if err != nil {
			return nil, unavailable("pending images", err)
		}
		images = append(images, image)
	}
	return images, nil
}

// CountPendingImages counts images without a verdict.
func (s *Store) CountPendingImages(ctx context.Context) (int64, error) {
	count, err := s.coll(collImages).CountDocuments(ctx, pendingFilter)
	if err != nil {
		return 0, unavailable("count pending images", err)
	}
	return count, nil
}

// SetImageQC stores verdict on the image. A nil verdict unsets it.
func (s *Store) SetImageQC(ctx context.Context, imageID string, verdict *store.Verdict) error {
	update := bson.D{{Key: "$unset", Value: bson.D{{Key: "qc", Value: 1}, {Key: "qc_attempted_at", Value: 1}}}}
	if verdict != nil {
		update = bson.D{
			{Key: "$set", Value: bson.D{{Key: "qc", Value: verdict}}},
			{Key: "$unset", Value: bson.D{{Key: "qc_attempted_at", Value: 1}}},
		}
	}
	res, err := s.coll(collImages).UpdateByID(ctx, imageID, update)
	if err != nil {
		return unavailable("set image qc", err)
	}
	if res.MatchedCount == 0 {
		return notFound("image", imageID)
	}
	return nil
}

// MarkImageAttempted records a failed QC attempt on the image.
func (s *Store) MarkImageAttempted(ctx context.Context, imageID string, at time.Time) error {
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "qc_attempted_at", Value: at.UTC()}}}}
	res, err := s.coll(collImages).UpdateByID(ctx, imageID, update)
	if err != nil {
		return unavailable("mark image attempted", err)
	}
	if res.MatchedCount == 0 {
		return notFound("image", imageID)
	}
	return nil
}

// ClearSeriesQC removes the cached rollup of a series.
func (s *Store) ClearSeriesQC(ctx context.Context, seriesID string) error {
	update := bson.D{{Key: "$unset", Value: bson.D{{Key: "qc", Value: 1}}}}
	if _, err := s.coll(collSeries).UpdateByID(ctx, seriesID, update); err != nil {
		return unavailable("clear series qc", err)
	}
	return nil
}

// SetSeriesQC stores the cached rollup of a series.
func (s *Store) SetSeriesQC(ctx context.Context, seriesID string, qc *store.SeriesQC) error {
	if qc == nil {
		return s.ClearSeriesQC(ctx, seriesID)
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "qc", Value: qc}}}}
	if _, err := s.coll(collSeries).UpdateByID(ctx, seriesID, update); err != nil {
		return unavailable("set series qc", err)
	}
	return nil
}

// SeriesStats counts the images of a series by QC state.
func (s *Store) SeriesStats(ctx context.Context, seriesID string) (store.SeriesStats, error) {
	base := bson.E{Key: "series_id", Value: seriesID}
	exists := bson.D{{Key: "$exists", Value: true}}
	var stats store.SeriesStats
	queries := []struct {
		filter bson.D
		dst    *int64
	}{
		{bson.D{base}, &stats.Images},
		{bson.D{base, {Key: "qc", Value: bson.D{{Key: "$exists", Value: false}}}}, &stats.Pending},
		{bson.D{base, {Key: "qc.errors.0", Value: exists}}, &stats.Errors},
		{bson.D{base, {Key: "qc.warnings.0", Value: exists}}, &stats.Warnings},
		{bson.D{base, {Key: "qc.notemp", Value: true}}, &stats.NoTemplate},
	}
	for _, q := range queries {
		count, err := s.coll(collImages).CountDocuments(ctx, q.filter)
		if err != nil {
			return store.SeriesStats{}, unavailable("series stats", err)
		}
		*q.dst = count
	}
	return stats, nil
}
