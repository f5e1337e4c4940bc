// Package sink writes migrated documents to MongoDB. One sink wraps the
// single destination database handle shared by all migrations in a run.
package sink

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/pkg/logger"
)

const writeTimeout = 60 * time.Second

// duplicateKeyCode is the server error for a unique-index violation.
const duplicateKeyCode = 11000

// MongoSink implements migrate.Sink against a mongo database.
type MongoSink struct {
	db *mongo.Database
}

func New(db *mongo.Database) *MongoSink {
	return &MongoSink{db: db}
}

// ExistingKeys returns the subset of keys already present in collection
// under keyField.
func (s *MongoSink) ExistingKeys(ctx context.Context, collection, keyField string, keys []interface{}) (map[interface{}]struct{}, error) {
	if len(keys) == 0 {
		return map[interface{}]struct{}{}, nil
	}
	coll := s.db.Collection(collection)
	cursor, err := coll.Find(ctx,
		bson.M{keyField: bson.M{"$in": keys}},
		options.Find().SetProjection(bson.M{keyField: 1, "_id": 0}))
	if err != nil {
		return nil, errors.Wrapf(err, "querying existing keys in %s", collection)
	}
	defer cursor.Close(ctx)

	existing := make(map[interface{}]struct{})
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decoding key document")
		}
		existing[normalizeKey(doc[keyField])] = struct{}{}
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating existing keys in %s", collection)
	}
	return existing, nil
}

// normalizeKey folds the driver's integer decodings onto the values the
// transform layer produces, so map lookups match.
func normalizeKey(v interface{}) interface{} {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	}
	return v
}

// InsertMany performs an unordered bulk insert. Duplicate-key failures
// (code 11000) on individual documents are logged and skipped; the rest
// of the batch still lands. Any other write error fails the batch.
func (s *MongoSink) InsertMany(ctx context.Context, collection string, docs []migrate.Doc) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	payload := make([]interface{}, len(docs))
	for i, d := range docs {
		payload[i] = bson.M(d)
	}

	res, err := s.db.Collection(collection).InsertMany(wctx, payload, options.InsertMany().SetOrdered(false))
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if errors.As(err, &bulkErr) {
			return countBulkInserts(len(docs), collection, bulkErr)
		}
		return 0, errors.Wrapf(err, "inserting into %s", collection)
	}
	return len(res.InsertedIDs), nil
}

// countBulkInserts derives the landed-document count from a partial
// bulk-write failure. The driver pre-populates InsertedIDs client-side
// for every attempted document, so on partial failure the write errors
// are the only reliable record of rejects: each tolerated duplicate is
// one document that did not land.
func countBulkInserts(attempted int, collection string, bulkErr mongo.BulkWriteException) (int, error) {
	duplicates := 0
	for _, we := range bulkErr.WriteErrors {
		if we.Code != duplicateKeyCode {
			return 0, errors.Wrapf(bulkErr, "bulk insert into %s", collection)
		}
		logger.Infof("%s: skipping duplicate at batch index %d", collection, we.Index)
		duplicates++
	}
	return attempted - duplicates, nil
}

// BulkUpsert writes each document keyed by keyField in one BulkWrite,
// inserting new documents and setting the fields of existing ones.
func (s *MongoSink) BulkUpsert(ctx context.Context, collection, keyField string, docs []migrate.Doc) (int, int, error) {
	if len(docs) == 0 {
		return 0, 0, nil
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	writes := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{keyField: d[keyField]}).
			SetUpdate(bson.M{"$set": bson.M(d)}).
			SetUpsert(true))
	}

	res, err := s.db.Collection(collection).BulkWrite(wctx, writes)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "bulk upsert into %s", collection)
	}
	return int(res.UpsertedCount), int(res.MatchedCount), nil
}

// EnsureIndexes creates the declared index set. CreateMany is a no-op
// for indexes that already exist with the same spec.
func (s *MongoSink) EnsureIndexes(ctx context.Context, collection string, specs []migrate.IndexSpec) error {
	if len(specs) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(specs))
	for _, spec := range specs {
		keys := bson.D{}
		for _, f := range spec.Fields {
			dir := 1
			if f.Descending {
				dir = -1
			}
			keys = append(keys, bson.E{Key: f.Name, Value: dir})
		}
		opts := options.Index()
		if spec.Unique {
			opts.SetUnique(true)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := s.db.Collection(collection).Indexes().CreateMany(wctx, models); err != nil {
		return errors.Wrapf(err, "creating indexes on %s", collection)
	}
	logger.Infof("%s: ensured %d indexes", collection, len(models))
	return nil
}

// CountDocuments counts documents matching filter.
func (s *MongoSink) CountDocuments(ctx context.Context, collection string, filter migrate.Doc) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.M(filter))
	if err != nil {
		return 0, errors.Wrapf(err, "counting documents in %s", collection)
	}
	return n, nil
}

// Aggregate runs pipeline and decodes every result document.
func (s *MongoSink) Aggregate(ctx context.Context, collection string, pipeline []migrate.Doc) ([]migrate.Doc, error) {
	stages := make(mongo.Pipeline, 0, len(pipeline))
	for _, stage := range pipeline {
		d := bson.D{}
		for k, v := range stage {
			d = append(d, bson.E{Key: k, Value: v})
		}
		stages = append(stages, d)
	}

	cursor, err := s.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregating %s", collection)
	}
	defer cursor.Close(ctx)

	var out []migrate.Doc
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decoding aggregation result")
		}
		out = append(out, migrate.Doc(doc))
	}
	return out, errors.Wrapf(cursor.Err(), "iterating aggregation of %s", collection)
}
