package mongo

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamvazu/SQAN/internal/store"
)

// EnsureTemplateExam finds or creates the template exam for key.
func (s *Store) EnsureTemplateExam(ctx context.Context, key store.TemplateExamKey) (*store.TemplateExam, error) {
	filter := bson.D{
		{Key: "research_id", Value: key.ResearchID},
		{Key: "timestamp", Value: key.Timestamp.UTC()},
	}
	onInsert := bson.D{
		{Key: "_id", Value: uuid.NewString()},
		{Key: "created_at", Value: time.Now().UTC()},
	}
	var exam store.TemplateExam
	if err := s.ensure(ctx, collTemplateExams, filter, onInsert, &exam); err != nil {
		return nil, unavailable("ensure template exam", err)
	}
	exam.Timestamp = exam.Timestamp.UTC()
	exam.CreatedAt = exam.CreatedAt.UTC()
	return &exam, nil
}

// UpsertTemplate creates the template for (SeriesID, Timestamp) or bumps its
// count and replaces its header snapshot.
func (s *Store) UpsertTemplate(ctx context.Context, t *store.Template) (*store.Template, error) {
	if t == nil {
		return nil, errors.New("upsert template: template is nil")
	}
	headers, err := encodeHeaders(t.Headers)
	if err != nil {
		return nil, unavailable("upsert template", err)
	}
	now := time.Now().UTC()
	filter := bson.D{
		{Key: "series_id", Value: t.SeriesID},
		{Key: "timestamp", Value: t.Timestamp.UTC()},
	}
	update := bson.D{
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: uuid.NewString()},
			{Key: "exam_id", Value: t.ExamID},
			{Key: "research_id", Value: t.ResearchID},
			{Key: "series_desc", Value: t.Description},
			{Key: "series_number", Value: t.SeriesNumber},
			{Key: "created_at", Value: now},
		}},
		{Key: "$set", Value: withHeaders(bson.D{{Key: "updated_at", Value: now}}, headers)},
		{Key: "$inc", Value: bson.D{{Key: "count", Value: 1}}},
	}
	var doc templateDoc
	if err := s.upsert(ctx, collTemplates, filter, update, &doc); err != nil {
		return nil, unavailable("upsert template", err)
	}
	out, err := doc.model()
	if err != nil {
		return nil, unavailable("upsert template", err)
	}
	return out, nil
}

// UpsertTemplateHeader creates the header for (TemplateID, InstanceNumber,
// EchoNumber) or bumps its count and replaces its header snapshot.
func (s *Store) UpsertTemplateHeader(ctx context.Context, th *store.TemplateHeader) (*store.TemplateHeader, error) {
	if th == nil {
		return nil, errors.New("upsert template header: header is nil")
	}
	headers, err := encodeHeaders(th.Headers)
	if err != nil {
		return nil, unavailable("upsert template header", err)
	}
	update := bson.D{
		{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: uuid.NewString()}}},
		{Key: "$set", Value: withHeaders(bson.D{
			{Key: "acquisition_number", Value: nullable(th.AcquisitionNumber)},
			{Key: "updated_at", Value: time.Now().UTC()},
		}, headers)},
		{Key: "$inc", Value: bson.D{{Key: "count", Value: 1}}},
	}
	filter := templateHeaderFilter(store.TemplateHeaderKey{TemplateID: th.TemplateID, InstanceNumber: th.InstanceNumber, EchoNumber: th.EchoNumber})
	var doc templateHeaderDoc
	if err := s.upsert(ctx, collTemplateHeaders, filter, update, &doc); err != nil {
		return nil, unavailable("upsert template header", err)
	}
	out, err := doc.model()
	if err != nil {
		return nil, unavailable("upsert template header", err)
	}
	return out, nil
}

// LatestTemplateExam returns the newest template exam of a research, or nil.
func (s *Store) LatestTemplateExam(ctx context.Context, researchID string) (*store.TemplateExam, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: 1}})
	var exam store.TemplateExam
	err := s.coll(collTemplateExams).FindOne(ctx, bson.D{{Key: "research_id", Value: researchID}}, opts).Decode(&exam)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("latest template exam", err)
	}
	exam.Timestamp = exam.Timestamp.UTC()
	exam.CreatedAt = exam.CreatedAt.UTC()
	return &exam, nil
}

// TemplatesByExam lists the templates of an exam.
func (s *Store) TemplatesByExam(ctx context.Context, examID string) ([]*store.Template, error) {
	opts := options.Find().SetSort(bson.D{{Key: "series_number", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll(collTemplates).Find(ctx, bson.D{{Key: "exam_id", Value: examID}}, opts)
	if err != nil {
		return nil, unavailable("templates by exam", err)
	}
	var docs []templateDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("templates by exam", err)
	}
	out := make([]*store.Template, 0, len(docs))
	for i := range docs {
		t, err := docs[i].model()
		if err != nil {
			return nil, unavailable("templates by exam", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// FindTemplateHeader returns the header matching key, or nil.
func (s *Store) FindTemplateHeader(ctx context.Context, key store.TemplateHeaderKey) (*store.TemplateHeader, error) {
	var doc templateHeaderDoc
	err := s.coll(collTemplateHeaders).FindOne(ctx, templateHeaderFilter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find template header", err)
	}
	th, err := doc.model()
	if err != nil {
		return nil, unavailable("find template header", err)
	}
	return th, nil
}

// GetTemplate returns the template with id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*store.Template, error) {
	var doc templateDoc
	if err := s.findByID(ctx, collTemplates, "template", id, &doc); err != nil {
		return nil, err
	}
	t, err := doc.model()
	if err != nil {
		return nil, unavailable("get template", err)
	}
	return t, nil
}

// TemplateHeaders lists the headers of a template by acquisition and instance number.
func (s *Store) TemplateHeaders(ctx context.Context, templateID string) ([]*store.TemplateHeader, error) {
	cur, err := s.coll(collTemplateHeaders).Find(ctx, bson.D{{Key: "template_id", Value: templateID}})
	if err != nil {
		return nil, unavailable("template headers", err)
	}
	var docs []templateHeaderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("template headers", err)
	}
	out := make([]*store.TemplateHeader, 0, len(docs))
	for i := range docs {
		th, err := docs[i].model()
		if err != nil {
			return nil, unavailable("template headers", err)
		}
		out = append(out, th)
	}
	// Numbers are stored as strings, so order numerically here.
	sort.SliceStable(out, func(i, j int) bool {
		if a, b := numeric(out[i].AcquisitionNumber), numeric(out[j].AcquisitionNumber); a != b {
			return a < b
		}
		if a, b := numeric(out[i].InstanceNumber), numeric(out[j].InstanceNumber); a != b {
			return a < b
		}
		return deref(out[i].EchoNumber) < deref(out[j].EchoNumber)
	})
	return out, nil
}

// upsert applies update to the document matching filter, creating it if
// needed, and decodes the result.
func (s *Store) upsert(ctx context.Context, coll string, filter, update bson.D, out any) error {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.coll(coll).FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	if mongo.IsDuplicateKeyError(err) {
		err = s.coll(coll).FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	}
	return err
}

func withHeaders(set bson.D, headers bson.Raw) bson.D {
	if headers == nil {
		return set
	}
	return append(set, bson.E{Key: "headers", Value: headers})
}

func templateHeaderFilter(key store.TemplateHeaderKey) bson.D {
	return bson.D{
		{Key: "template_id", Value: key.TemplateID},
		{Key: "instance_number", Value: nullable(key.InstanceNumber)},
		{Key: "echo_number", Value: nullable(key.EchoNumber)},
	}
}

func numeric(value *string) int64 {
	if value == nil {
		return 0
	}
	n, err := strconv.ParseInt(*value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
