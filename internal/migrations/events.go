package migrations

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
	"github.com/visiocare/clinic-migrator/pkg/typeconv"
)

var eventTypeNames = map[int]string{
	1: "registration",
	2: "visit",
	3: "referral",
	4: "discharge",
	5: "note",
}

// eventsSpec migrates sb_events (clinical timeline entries). Existing
// events are skipped on re-run.
func eventsSpec(src *source.SQLSource, f *filter.DataFilter) migrate.Spec {
	const (
		table      = "sb_events"
		collection = "events"
	)
	baseQuery := `SELECT sb_events_id, sb_events_type, sb_events_client_id,
		sb_events_clinic, sb_events_date, sb_events_description, sb_events_user
	FROM sb_events`

	return migrate.Spec{
		Name:       "events",
		Table:      table,
		Collection: collection,
		KeyField:   "eventId",
		KeyOf:      func(d migrate.Doc) interface{} { return d["eventId"] },
		Conflict:   migrate.ConflictSkip,
		PageSize:   2000,
		Count: func(ctx context.Context) (int, error) {
			return src.Count(ctx, table)
		},
		FetchPage: func(ctx context.Context, offset, limit int) ([]migrate.Row, error) {
			return src.Page(ctx, baseQuery, "sb_events_id", offset, limit)
		},
		Filter: func(rows []migrate.Row) []migrate.Row {
			return f.ApplyVisioFilters(rows, filter.Accessors{
				ClinicField: "sb_events_clinic",
				DateField:   "sb_events_date",
				TextFields:  []string{"sb_events_description"},
			})
		},
		Transform: transformEvent,
		Validate:  validateEvent,
		Indexes: []migrate.IndexSpec{
			{Fields: []migrate.IndexField{{Name: "eventId"}}, Unique: true},
			{Fields: []migrate.IndexField{{Name: "clientId"}, {Name: "occurredAt", Descending: true}}},
			{Fields: []migrate.IndexField{{Name: "clinic"}, {Name: "type"}}},
		},
		PostCheck: func(ctx context.Context, snk migrate.Sink) []string {
			return runChecks(
				func() string { return duplicateKeyWarning(ctx, snk, collection, "eventId") },
				func() string { return missingFieldWarning(ctx, snk, collection, "clientId") },
			)
		},
	}
}

func transformEvent(row migrate.Row) (migrate.Doc, error) {
	id := typeconv.Int(row["sb_events_id"])
	if id == 0 {
		return nil, errors.New("missing sb_events_id")
	}

	doc := migrate.Doc{
		"eventId":     id,
		"type":        typeconv.Enum(row["sb_events_type"], eventTypeNames, "other"),
		"clientId":    typeconv.Int(row["sb_events_client_id"]),
		"clinic":      typeconv.String(row["sb_events_clinic"]),
		"description": typeconv.String(row["sb_events_description"]),
		"recordedBy":  typeconv.String(row["sb_events_user"]),
	}
	if occurred, ok := typeconv.Date(row["sb_events_date"]); ok {
		doc["occurredAt"] = occurred
	}
	return doc, nil
}

func validateEvent(doc migrate.Doc) error {
	if typeconv.Int(doc["eventId"]) == 0 {
		return errors.New("missing eventId")
	}
	if typeconv.Int(doc["clientId"]) == 0 {
		return errors.New("missing clientId")
	}
	if _, ok := doc["occurredAt"]; !ok {
		return errors.New("missing event date")
	}
	return nil
}
