// Package migrate contains the batch-migration engine: the per-entity
// runner, its options and result types, and the manager that executes a
// dependency-ordered plan of migrations.
package migrate

import (
	"context"
)

// Row is a flat legacy record keyed by source column name.
type Row = map[string]interface{}

// Doc is a nested destination document keyed by field name.
type Doc = map[string]interface{}

// ConflictMode decides what happens when a document with the same
// natural key already exists in the destination.
type ConflictMode int

const (
	// ConflictSkip leaves existing documents untouched and only inserts
	// records whose natural key is not present yet.
	ConflictSkip ConflictMode = iota
	// ConflictUpsert inserts new documents and updates existing ones.
	ConflictUpsert
)

// IndexField is one component of a (possibly compound) index.
type IndexField struct {
	Name       string
	Descending bool
}

// IndexSpec declares one destination index. The unique index on the
// natural key is what makes re-runs idempotent, so index declarations
// are part of a migration's correctness contract, not tuning.
type IndexSpec struct {
	Fields []IndexField
	Unique bool
}

// Sink is the destination-store surface the engine needs. The Mongo
// implementation lives in internal/sink; tests substitute fakes.
type Sink interface {
	// ExistingKeys returns which of the given natural-key values are
	// already present in the collection.
	ExistingKeys(ctx context.Context, collection, keyField string, keys []interface{}) (map[interface{}]struct{}, error)
	// InsertMany performs an unordered bulk insert, tolerating
	// duplicate-key failures on individual documents. It returns the
	// number of documents actually inserted.
	InsertMany(ctx context.Context, collection string, docs []Doc) (int, error)
	// BulkUpsert writes each document keyed by keyField, inserting new
	// ones and replacing the fields of existing ones.
	BulkUpsert(ctx context.Context, collection, keyField string, docs []Doc) (inserted, updated int, err error)
	// EnsureIndexes creates the declared indexes if missing.
	EnsureIndexes(ctx context.Context, collection string, specs []IndexSpec) error
	// CountDocuments counts documents matching a filter.
	CountDocuments(ctx context.Context, collection string, filter Doc) (int64, error)
	// Aggregate runs an aggregation pipeline and decodes the results.
	Aggregate(ctx context.Context, collection string, pipeline []Doc) ([]Doc, error)
}

// Spec defines one migration as data plus behavior closures. The engine
// drives the shared fetch → filter → transform → validate → dedup →
// write loop; a Spec supplies only what varies per entity.
type Spec struct {
	// Name is the registry key, e.g. "clients".
	Name string
	// Table is the source table identifier reported in results.
	Table string
	// Collection is the destination collection name.
	Collection string

	// KeyField names the natural key in the destination document, and
	// KeyOf extracts it. Both are required.
	KeyField string
	KeyOf    func(Doc) interface{}

	// Conflict is this migration's documented behavior for records that
	// already exist by natural key.
	Conflict ConflictMode

	// Count returns the total number of source rows.
	Count func(ctx context.Context) (int, error)

	// Exactly one of FetchPage and FetchAll must be set. FetchPage is
	// for large tables using keyset pagination; FetchAll is for small
	// reference tables read in one query.
	FetchPage func(ctx context.Context, offset, limit int) ([]Row, error)
	FetchAll  func(ctx context.Context) ([]Row, error)
	// PageSize overrides Options.BatchSize for FetchPage migrations.
	PageSize int

	// Filter applies the business-retention rules. Optional.
	Filter func([]Row) []Row

	// Transform maps one legacy row to a destination document.
	Transform func(Row) (Doc, error)

	// Validate rejects documents that fail entity-specific checks. The
	// returned error text should carry the natural key. Optional.
	Validate func(Doc) error

	// Indexes is the definitive index set for the collection.
	Indexes []IndexSpec

	// PostCheck runs consistency queries after the run and returns
	// warnings. It never fails the run. Optional.
	PostCheck func(ctx context.Context, sink Sink) []string
}
