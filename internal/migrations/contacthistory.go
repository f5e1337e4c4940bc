package migrations

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
	"github.com/visiocare/clinic-migrator/pkg/typeconv"
)

var contactChannelNames = map[int]string{
	1: "phone",
	2: "email",
	3: "sms",
	4: "letter",
}

// contactHistorySpec migrates sb_contact_log, the per-client contact
// journal. Depends on clients. Existing entries are skipped on re-run.
func contactHistorySpec(src *source.SQLSource, f *filter.DataFilter) migrate.Spec {
	const (
		table      = "sb_contact_log"
		collection = "contact_history"
	)
	baseQuery := `SELECT sb_contact_id, sb_contact_client_id, sb_contact_clinic,
		sb_contact_channel, sb_contact_direction, sb_contact_date, sb_contact_summary
	FROM sb_contact_log`

	return migrate.Spec{
		Name:       "contact_history",
		Table:      table,
		Collection: collection,
		KeyField:   "contactId",
		KeyOf:      func(d migrate.Doc) interface{} { return d["contactId"] },
		Conflict:   migrate.ConflictSkip,
		PageSize:   5000,
		Count: func(ctx context.Context) (int, error) {
			return src.Count(ctx, table)
		},
		FetchPage: func(ctx context.Context, offset, limit int) ([]migrate.Row, error) {
			return src.Page(ctx, baseQuery, "sb_contact_id", offset, limit)
		},
		Filter: func(rows []migrate.Row) []migrate.Row {
			return f.ApplyVisioFilters(rows, filter.Accessors{
				ClinicField: "sb_contact_clinic",
				DateField:   "sb_contact_date",
				TextFields:  []string{"sb_contact_summary"},
			})
		},
		Transform: transformContact,
		Validate:  validateContact,
		Indexes: []migrate.IndexSpec{
			{Fields: []migrate.IndexField{{Name: "contactId"}}, Unique: true},
			{Fields: []migrate.IndexField{{Name: "clientId"}, {Name: "occurredAt", Descending: true}}},
		},
		PostCheck: func(ctx context.Context, snk migrate.Sink) []string {
			return runChecks(
				func() string { return duplicateKeyWarning(ctx, snk, collection, "contactId") },
				func() string { return missingFieldWarning(ctx, snk, collection, "clientId") },
			)
		},
	}
}

func transformContact(row migrate.Row) (migrate.Doc, error) {
	id := typeconv.Int(row["sb_contact_id"])
	if id == 0 {
		return nil, errors.New("missing sb_contact_id")
	}

	direction := "outbound"
	if typeconv.String(row["sb_contact_direction"]) == "I" {
		direction = "inbound"
	}

	doc := migrate.Doc{
		"contactId": id,
		"clientId":  typeconv.Int(row["sb_contact_client_id"]),
		"clinic":    typeconv.String(row["sb_contact_clinic"]),
		"channel":   typeconv.Enum(row["sb_contact_channel"], contactChannelNames, "other"),
		"direction": direction,
		"summary":   typeconv.String(row["sb_contact_summary"]),
	}
	if occurred, ok := typeconv.Date(row["sb_contact_date"]); ok {
		doc["occurredAt"] = occurred
	}
	return doc, nil
}

func validateContact(doc migrate.Doc) error {
	if typeconv.Int(doc["contactId"]) == 0 {
		return errors.New("missing contactId")
	}
	if typeconv.Int(doc["clientId"]) == 0 {
		return errors.New("missing clientId")
	}
	return nil
}
