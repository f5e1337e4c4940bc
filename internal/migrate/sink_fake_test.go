package migrate

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// fakeSink is an in-memory Sink for engine tests. Collections are maps
// keyed by natural-key value.
type fakeSink struct {
	mu          sync.Mutex
	collections map[string]map[interface{}]Doc
	indexes     map[string][]IndexSpec
	inserted    int
	updated     int
	failInsert  bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		collections: make(map[string]map[interface{}]Doc),
		indexes:     make(map[string][]IndexSpec),
	}
}

func (s *fakeSink) coll(name string) map[interface{}]Doc {
	if s.collections[name] == nil {
		s.collections[name] = make(map[interface{}]Doc)
	}
	return s.collections[name]
}

func (s *fakeSink) seed(collection, keyField string, keys ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.coll(collection)[k] = Doc{keyField: k}
	}
}

func (s *fakeSink) ExistingKeys(_ context.Context, collection, _ string, keys []interface{}) (map[interface{}]struct{}, error) {
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

func (s *fakeSink) InsertMany(_ context.Context, collection string, docs []Doc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return 0, errors.New("insert failed")
	}
	n := 0
	for _, d := range docs {
		key := docKey(d)
		if _, dup := s.coll(collection)[key]; dup {
			continue
		}
		s.coll(collection)[key] = d
		n++
	}
	s.inserted += n
	return n, nil
}

func (s *fakeSink) BulkUpsert(_ context.Context, collection, keyField string, docs []Doc) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *fakeSink) EnsureIndexes(_ context.Context, collection string, specs []IndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[collection] = specs
	return nil
}

func (s *fakeSink) CountDocuments(context.Context, string, Doc) (int64, error) {
	return 0, nil
}

func (s *fakeSink) Aggregate(context.Context, string, []Doc) ([]Doc, error) {
	return nil, nil
}

func (s *fakeSink) size(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coll(collection))
}

// docKey mirrors the engine's convention that test docs carry their
// natural key under "id".
func docKey(d Doc) interface{} {
	return d["id"]
}
