package migrations

import (
	"context"
	"sync"

	"github.com/visiocare/clinic-migrator/internal/migrate"
)

// memSink is an in-memory migrate.Sink for spec-level tests.
type memSink struct {
	mu          sync.Mutex
	collections map[string]map[interface{}]migrate.Doc
	keyFields   map[string]string
	indexes     map[string][]migrate.IndexSpec
	inserted    int
	updated     int
}

func newMemSink() *memSink {
	return &memSink{
		collections: make(map[string]map[interface{}]migrate.Doc),
		keyFields:   make(map[string]string),
		indexes:     make(map[string][]migrate.IndexSpec),
	}
}

func (s *memSink) coll(name string) map[interface{}]migrate.Doc {
	if s.collections[name] == nil {
		s.collections[name] = make(map[interface{}]migrate.Doc)
	}
	return s.collections[name]
}

func (s *memSink) seed(collection, keyField string, keys ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyFields[collection] = keyField
	for _, k := range keys {
		s.coll(collection)[k] = migrate.Doc{keyField: k}
	}
}

func (s *memSink) ExistingKeys(_ context.Context, collection, _ string, keys []interface{}) (map[interface{}]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[interface{}]struct{})
	for _, k := range keys {
		if _, ok := s.coll(collection)[k]; ok {
			existing[k] = struct{}{}
		}
	}
	return existing, nil
}

func (s *memSink) InsertMany(_ context.Context, collection string, docs []migrate.Doc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keyField := s.keyFields[collection]
	n := 0
	for _, d := range docs {
		key := d[keyField]
		if _, dup := s.coll(collection)[key]; dup {
			continue
		}
		s.coll(collection)[key] = d
		n++
	}
	s.inserted += n
	return n, nil
}

func (s *memSink) BulkUpsert(_ context.Context, collection, keyField string, docs []migrate.Doc) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyFields[collection] = keyField
	inserted, updated := 0, 0
	for _, d := range docs {
		key := d[keyField]
		if _, ok := s.coll(collection)[key]; ok {
			updated++
		} else {
			inserted++
		}
		s.coll(collection)[key] = d
	}
	s.inserted += inserted
	s.updated += updated
	return inserted, updated, nil
}

func (s *memSink) EnsureIndexes(_ context.Context, collection string, specs []migrate.IndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[collection] = specs
	return nil
}

func (s *memSink) CountDocuments(context.Context, string, migrate.Doc) (int64, error) {
	return 0, nil
}

func (s *memSink) Aggregate(context.Context, string, []migrate.Doc) ([]migrate.Doc, error) {
	return nil, nil
}

func (s *memSink) size(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coll(collection))
}
