package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/store"
)

const (
	collResearch        = "research"
	collSeries          = "series"
	collStudies         = "studies"
	collAcquisitions    = "acquisitions"
	collImages          = "images"
	collTemplateExams   = "template_exams"
	collTemplates       = "templates"
	collTemplateHeaders = "template_headers"
)

// Store implements store.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open connects to cfg.Store.MongoURI, verifies the connection and creates
// the unique identity indexes.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("mongo store: config is nil")
	}
	uri := strings.TrimSpace(cfg.Store.MongoURI)
	if uri == "" {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open mongo", "store.mongo_uri is empty", nil)
	}
	timeout := time.Duration(cfg.Store.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "mongo", "connect", "", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, services.Wrap(services.ErrStoreUnavailable, "mongo", "ping", "", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Store.MongoDatabase)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := func(keys ...string) mongo.IndexModel {
		doc := bson.D{}
		for _, key := range keys {
			doc = append(doc, bson.E{Key: key, Value: 1})
		}
		return mongo.IndexModel{Keys: doc, Options: options.Index().SetUnique(true)}
	}
	plain := func(keys ...string) mongo.IndexModel {
		doc := bson.D{}
		for _, key := range keys {
			doc = append(doc, bson.E{Key: key, Value: 1})
		}
		return mongo.IndexModel{Keys: doc}
	}

	indexes := map[string][]mongo.IndexModel{
		collResearch:        {unique("site_id", "modality", "station_name", "radiotracer")},
		collSeries:          {unique("research_id", "series_desc")},
		collStudies:         {unique("series_id", "subject", "study_instance_uid")},
		collAcquisitions:    {unique("study_id", "acquisition_number")},
		collImages:          {plain("series_id"), plain("research_id"), plain("qc.date"), plain("qc_attempted_at", "created_at")},
		collTemplateExams:   {unique("research_id", "timestamp")},
		collTemplates:       {unique("series_id", "timestamp"), plain("exam_id")},
		collTemplateHeaders: {unique("template_id", "instance_number", "echo_number")},
	}
	for name, models := range indexes {
		if _, err := s.coll(name).Indexes().CreateMany(ctx, models); err != nil {
			return services.Wrap(services.ErrStoreUnavailable, "mongo", "create indexes", name, err)
		}
	}
	return nil
}

// ensure finds the document matching filter or inserts it with onInsert.
// Two racing upserts on the same unique key can make one of them fail with a
// duplicate key error; upsert retries once and then finds the winner's
// document.
func (s *Store) ensure(ctx context.Context, coll string, filter, onInsert bson.D, out any) error {
	return s.upsert(ctx, coll, filter, bson.D{{Key: "$setOnInsert", Value: onInsert}}, out)
}

func (s *Store) findByID(ctx context.Context, coll, kind, id string, out any) error {
	err := s.coll(coll).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound(kind, id)
	}
	if err != nil {
		return unavailable("get "+kind, err)
	}
	return nil
}

func unavailable(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrNotFound) {
		return err
	}
	return services.Wrap(services.ErrStoreUnavailable, "mongo", operation, "", err)
}

func notFound(kind, id string) error {
	return services.Wrap(services.ErrNotFound, "mongo", "get "+kind, id, nil)
}

func nullable(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
