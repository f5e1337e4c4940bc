package migrations

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
	"github.com/visiocare/clinic-migrator/pkg/typeconv"
)

// clientClinicsSpec migrates sb_client_clinic_rel, the client-to-clinic
// relationship table. It depends on clients having been migrated first.
// Existing relationships are skipped on re-run.
func clientClinicsSpec(src *source.SQLSource, f *filter.DataFilter) migrate.Spec {
	const (
		table      = "sb_client_clinic_rel"
		collection = "client_clinics"
	)
	baseQuery := `SELECT sb_rel_id, sb_rel_client_id, sb_rel_clinic,
		sb_rel_primary, sb_rel_since
	FROM sb_client_clinic_rel`

	return migrate.Spec{
		Name:       "client_clinics",
		Table:      table,
		Collection: collection,
		KeyField:   "relationshipId",
		KeyOf:      func(d migrate.Doc) interface{} { return d["relationshipId"] },
		Conflict:   migrate.ConflictSkip,
		PageSize:   2000,
		Count: func(ctx context.Context) (int, error) {
			return src.Count(ctx, table)
		},
		FetchPage: func(ctx context.Context, offset, limit int) ([]migrate.Row, error) {
			return src.Page(ctx, baseQuery, "sb_rel_id", offset, limit)
		},
		Filter: func(rows []migrate.Row) []migrate.Row {
			return f.FilterRecordsByClinic(rows, "sb_rel_clinic")
		},
		Transform: transformClientClinic,
		Validate:  validateClientClinic,
		Indexes: []migrate.IndexSpec{
			{Fields: []migrate.IndexField{{Name: "relationshipId"}}, Unique: true},
			{Fields: []migrate.IndexField{{Name: "clientId"}, {Name: "clinic"}}},
		},
		PostCheck: func(ctx context.Context, snk migrate.Sink) []string {
			return runChecks(
				func() string { return duplicateKeyWarning(ctx, snk, collection, "relationshipId") },
				func() string { return missingFieldWarning(ctx, snk, collection, "clinic") },
			)
		},
	}
}

func transformClientClinic(row migrate.Row) (migrate.Doc, error) {
	id := typeconv.Int(row["sb_rel_id"])
	if id == 0 {
		return nil, errors.New("missing sb_rel_id")
	}

	doc := migrate.Doc{
		"relationshipId": id,
		"clientId":       typeconv.Int(row["sb_rel_client_id"]),
		"clinic":         typeconv.String(row["sb_rel_clinic"]),
		"primary":        typeconv.Bool(row["sb_rel_primary"]),
	}
	if since, ok := typeconv.Date(row["sb_rel_since"]); ok {
		doc["since"] = since
	}
	return doc, nil
}

func validateClientClinic(doc migrate.Doc) error {
	if typeconv.Int(doc["relationshipId"]) == 0 {
		return errors.New("missing relationshipId")
	}
	if typeconv.Int(doc["clientId"]) == 0 {
		return errors.New("missing clientId")
	}
	if typeconv.String(doc["clinic"]) == "" {
		return errors.New("missing clinic")
	}
	return nil
}
