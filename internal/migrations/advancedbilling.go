package migrations

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
	"github.com/visiocare/clinic-migrator/pkg/typeconv"
)

var billingCycleNames = map[int]string{
	1: "monthly",
	2: "quarterly",
	3: "annual",
}

// advancedBillingSpec migrates sb_adv_billing, a tiny table (single-digit
// rows) read in one bulk query. Unlike the other migrations it upserts:
// billing plans are corrected in the legacy system right up to cutover,
// so a re-run must carry updates into already-migrated documents.
func advancedBillingSpec(src *source.SQLSource, f *filter.DataFilter) migrate.Spec {
	const (
		table      = "sb_adv_billing"
		collection = "advanced_billing"
	)
	baseQuery := `SELECT sb_billing_id, sb_billing_client_id, sb_billing_clinic,
		sb_billing_product_code, sb_billing_amount, sb_billing_currency,
		sb_billing_cycle, sb_billing_insurance_ref, sb_billing_active,
		sb_billing_start_date
	FROM sb_adv_billing`

	return migrate.Spec{
		Name:       "advanced_billing",
		Table:      table,
		Collection: collection,
		KeyField:   "billingId",
		KeyOf:      func(d migrate.Doc) interface{} { return d["billingId"] },
		Conflict:   migrate.ConflictUpsert,
		Count: func(ctx context.Context) (int, error) {
			return src.Count(ctx, table)
		},
		FetchAll: func(ctx context.Context) ([]migrate.Row, error) {
			return src.Query(ctx, baseQuery)
		},
		Filter: func(rows []migrate.Row) []migrate.Row {
			rows = f.ApplyVisioFilters(rows, filter.Accessors{
				ClinicField: "sb_billing_clinic",
				DateField:   "sb_billing_start_date",
			})
			kept := make([]migrate.Row, 0, len(rows))
			for _, row := range rows {
				if f.ShouldIncludeProduct(typeconv.String(row["sb_billing_product_code"])) {
					kept = append(kept, row)
				}
			}
			return kept
		},
		Transform: transformBilling,
		Validate:  validateBilling,
		Indexes: []migrate.IndexSpec{
			{Fields: []migrate.IndexField{{Name: "billingId"}}, Unique: true},
			{Fields: []migrate.IndexField{{Name: "clientId"}, {Name: "active"}}},
		},
		PostCheck: func(ctx context.Context, snk migrate.Sink) []string {
			return runChecks(
				func() string { return duplicateKeyWarning(ctx, snk, collection, "billingId") },
				func() string { return missingFieldWarning(ctx, snk, collection, "product.code") },
			)
		},
	}
}

func transformBilling(row migrate.Row) (migrate.Doc, error) {
	id := typeconv.Int(row["sb_billing_id"])
	if id == 0 {
		return nil, errors.New("missing sb_billing_id")
	}

	doc := migrate.Doc{
		"billingId": id,
		"clientId":  typeconv.Int(row["sb_billing_client_id"]),
		"clinic":    typeconv.String(row["sb_billing_clinic"]),
		"product": migrate.Doc{
			"code": typeconv.String(row["sb_billing_product_code"]),
		},
		"amount":       typeconv.Float(row["sb_billing_amount"]),
		"currency":     typeconv.String(row["sb_billing_currency"]),
		"cycle":        typeconv.Enum(row["sb_billing_cycle"], billingCycleNames, "monthly"),
		"insuranceRef": typeconv.String(row["sb_billing_insurance_ref"]),
		"active":       typeconv.Bool(row["sb_billing_active"]),
	}
	if start, ok := typeconv.Date(row["sb_billing_start_date"]); ok {
		doc["startDate"] = start
	}
	return doc, nil
}

func validateBilling(doc migrate.Doc) error {
	if typeconv.Int(doc["billingId"]) == 0 {
		return errors.New("missing billingId")
	}
	if typeconv.Int(doc["clientId"]) == 0 {
		return errors.New("missing clientId")
	}
	if typeconv.Float(doc["amount"]) < 0 {
		return errors.New("negative amount")
	}
	return nil
}
