package migrations

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
	"github.com/visiocare/clinic-migrator/pkg/typeconv"
)

// clientsSpec migrates sb_clients into the clients collection. Existing
// clients are skipped on re-run; a re-imported client would otherwise
// lose edits made in the new system after cutover.
func clientsSpec(src *source.SQLSource, f *filter.DataFilter) migrate.Spec {
	const (
		table      = "sb_clients"
		collection = "clients"
	)
	baseQuery := `SELECT sb_clients_id, sb_clients_first_name, sb_clients_last_name,
		sb_clients_birth_date, sb_clients_street, sb_clients_city, sb_clients_zip,
		sb_clients_phone, sb_clients_mobile, sb_clients_email, sb_clients_clinic,
		sb_clients_active, sb_clients_insurance_provider, sb_clients_insurance_number,
		sb_clients_insurance_group, sb_clients_insurance_notes, sb_clients_created_at
	FROM sb_clients`

	return migrate.Spec{
		Name:       "clients",
		Table:      table,
		Collection: collection,
		KeyField:   "clientId",
		KeyOf:      func(d migrate.Doc) interface{} { return d["clientId"] },
		Conflict:   migrate.ConflictSkip,
		PageSize:   1000,
		Count: func(ctx context.Context) (int, error) {
			return src.Count(ctx, table)
		},
		FetchPage: func(ctx context.Context, offset, limit int) ([]migrate.Row, error) {
			return src.Page(ctx, baseQuery, "sb_clients_id", offset, limit)
		},
		Filter: func(rows []migrate.Row) []migrate.Row {
			return f.ApplyVisioFilters(rows, filter.Accessors{
				ClinicField: "sb_clients_clinic",
				DateField:   "sb_clients_created_at",
				TextFields:  []string{"sb_clients_first_name", "sb_clients_last_name", "sb_clients_email"},
			})
		},
		Transform: transformClient(f),
		Validate:  validateClient,
		Indexes: []migrate.IndexSpec{
			{Fields: []migrate.IndexField{{Name: "clientId"}}, Unique: true},
			{Fields: []migrate.IndexField{{Name: "clinic"}, {Name: "active"}}},
			{Fields: []migrate.IndexField{{Name: "lastName"}, {Name: "firstName"}}},
		},
		PostCheck: func(ctx context.Context, snk migrate.Sink) []string {
			return runChecks(
				func() string { return duplicateKeyWarning(ctx, snk, collection, "clientId") },
				func() string { return missingFieldWarning(ctx, snk, collection, "address.city") },
				func() string { return missingFieldWarning(ctx, snk, collection, "lastName") },
			)
		},
	}
}

// transformClient maps a flat sb_clients row onto the nested client
// document, then strips the sub-fields the retention policy disallows.
func transformClient(f *filter.DataFilter) func(migrate.Row) (migrate.Doc, error) {
	return func(row migrate.Row) (migrate.Doc, error) {
		id := typeconv.Int(row["sb_clients_id"])
		if id == 0 {
			return nil, errors.New("missing sb_clients_id")
		}

		doc := migrate.Doc{
			"clientId":  id,
			"firstName": typeconv.String(row["sb_clients_first_name"]),
			"lastName":  typeconv.String(row["sb_clients_last_name"]),
			"clinic":    typeconv.String(row["sb_clients_clinic"]),
			"active":    typeconv.Bool(row["sb_clients_active"]),
			"address": migrate.Doc{
				"street": typeconv.String(row["sb_clients_street"]),
				"city":   typeconv.String(row["sb_clients_city"]),
				"zip":    typeconv.String(row["sb_clients_zip"]),
			},
			"contact": migrate.Doc{
				"phone":  typeconv.String(row["sb_clients_phone"]),
				"mobile": typeconv.String(row["sb_clients_mobile"]),
				"email":  typeconv.String(row["sb_clients_email"]),
			},
			"insurance": migrate.Doc{
				"provider":     typeconv.String(row["sb_clients_insurance_provider"]),
				"policyNumber": typeconv.String(row["sb_clients_insurance_number"]),
				"groupNumber":  typeconv.String(row["sb_clients_insurance_group"]),
				"notes":        typeconv.String(row["sb_clients_insurance_notes"]),
			},
		}
		if birth, ok := typeconv.Date(row["sb_clients_birth_date"]); ok {
			doc["birthDate"] = birth
		}
		if created, ok := typeconv.Date(row["sb_clients_created_at"]); ok {
			doc["legacyCreatedAt"] = created
		}
		return f.FilterClientData(doc), nil
	}
}

func validateClient(doc migrate.Doc) error {
	if typeconv.Int(doc["clientId"]) == 0 {
		return errors.New("missing clientId")
	}
	if typeconv.String(doc["lastName"]) == "" {
		return errors.New("missing last name")
	}
	addr, _ := doc["address"].(migrate.Doc)
	if typeconv.String(addr["city"]) == "" {
		return errors.New("missing city")
	}
	return nil
}
