// Package migrations defines the per-entity migration specs: source
// queries against the legacy schema, the row-to-document transforms,
// entity validation, business filtering, and the destination index sets.
package migrations

import (
	"context"
	"fmt"
	"sync"

	"github.com/visiocare/clinic-migrator/internal/migrate"
)

// runChecks runs independent consistency queries concurrently and joins
// their warnings in declaration order. Checks only read aggregates, so
// the fan-out never races destination writes.
func runChecks(checks ...func() string) []string {
	results := make([]string, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check func() string) {
			defer wg.Done()
			results[i] = check()
		}(i, check)
	}
	wg.Wait()

	var warnings []string
	for _, r := range results {
		if r != "" {
			warnings = append(warnings, r)
		}
	}
	return warnings
}

// duplicateKeyWarning reports how many natural-key values appear on more
// than one document. Non-zero means the unique index and dedup logic
// disagree and re-runs are no longer safe.
func duplicateKeyWarning(ctx context.Context, snk migrate.Sink, collection, keyField string) string {
	pipeline := []migrate.Doc{
		{"$group": migrate.Doc{"_id": "$" + keyField, "n": migrate.Doc{"$sum": 1}}},
		{"$match": migrate.Doc{"n": migrate.Doc{"$gt": 1}}},
		{"$count": "duplicates"},
	}
	out, err := snk.Aggregate(ctx, collection, pipeline)
	if err != nil {
		return fmt.Sprintf("duplicate-key check on %s failed: %v", collection, err)
	}
	if len(out) == 0 {
		return ""
	}
	return fmt.Sprintf("%s has %v duplicated %s values", collection, out[0]["duplicates"], keyField)
}

// missingFieldWarning reports documents whose required field is absent,
// null, or empty.
func missingFieldWarning(ctx context.Context, snk migrate.Sink, collection, field string) string {
	n, err := snk.CountDocuments(ctx, collection, migrate.Doc{
		field: migrate.Doc{"$in": []interface{}{nil, ""}},
	})
	if err != nil {
		return fmt.Sprintf("missing-field check on %s.%s failed: %v", collection, field, err)
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d documents in %s are missing %s", n, collection, field)
}
