package migrations

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
	"github.com/visiocare/clinic-migrator/pkg/typeconv"
)

// insuranceRefsSpec migrates sb_insurance_refs, a small reference table
// of insurance providers, in one bulk query. Reference data is owned by
// the legacy system until cutover, so re-runs upsert.
func insuranceRefsSpec(src *source.SQLSource, f *filter.DataFilter) migrate.Spec {
	const (
		table      = "sb_insurance_refs"
		collection = "insurance_references"
	)
	baseQuery := `SELECT sb_ins_id, sb_ins_code, sb_ins_name, sb_ins_phone,
		sb_ins_billing_module
	FROM sb_insurance_refs`

	return migrate.Spec{
		Name:       "insurance_references",
		Table:      table,
		Collection: collection,
		KeyField:   "insurerId",
		KeyOf:      func(d migrate.Doc) interface{} { return d["insurerId"] },
		Conflict:   migrate.ConflictUpsert,
		Count: func(ctx context.Context) (int, error) {
			return src.Count(ctx, table)
		},
		FetchAll: func(ctx context.Context) ([]migrate.Row, error) {
			return src.Query(ctx, baseQuery)
		},
		Filter: func(rows []migrate.Row) []migrate.Row {
			// Providers handled by a retired billing module are out of
			// scope entirely.
			kept := make([]migrate.Row, 0, len(rows))
			for _, row := range rows {
				if !f.ModuleExcluded(typeconv.String(row["sb_ins_billing_module"])) {
					kept = append(kept, row)
				}
			}
			return kept
		},
		Transform: transformInsuranceRef,
		Validate:  validateInsuranceRef,
		Indexes: []migrate.IndexSpec{
			{Fields: []migrate.IndexField{{Name: "insurerId"}}, Unique: true},
			{Fields: []migrate.IndexField{{Name: "code"}}},
		},
		PostCheck: func(ctx context.Context, snk migrate.Sink) []string {
			return runChecks(
				func() string { return duplicateKeyWarning(ctx, snk, collection, "insurerId") },
				func() string { return missingFieldWarning(ctx, snk, collection, "code") },
			)
		},
	}
}

func transformInsuranceRef(row migrate.Row) (migrate.Doc, error) {
	id := typeconv.Int(row["sb_ins_id"])
	if id == 0 {
		return nil, errors.New("missing sb_ins_id")
	}
	return migrate.Doc{
		"insurerId":     id,
		"code":          typeconv.String(row["sb_ins_code"]),
		"name":          typeconv.String(row["sb_ins_name"]),
		"phone":         typeconv.String(row["sb_ins_phone"]),
		"billingModule": typeconv.String(row["sb_ins_billing_module"]),
	}, nil
}

func validateInsuranceRef(doc migrate.Doc) error {
	if typeconv.Int(doc["insurerId"]) == 0 {
		return errors.New("missing insurerId")
	}
	if typeconv.String(doc["code"]) == "" {
		return errors.New("missing insurer code")
	}
	return nil
}
