package migrations

import (
	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
)

// Plans builds the full migration registry. Priorities order independent
// migrations; dependencies express real data prerequisites (everything
// referencing a client requires clients; billing also needs the insurer
// reference table for its insuranceRef lookups).
func Plans(src *source.SQLSource, snk migrate.Sink, f *filter.DataFilter, opts migrate.Options) []migrate.Plan {
	plan := func(spec migrate.Spec, priority int, deps ...string) migrate.Plan {
		return migrate.Plan{
			Name:         spec.Name,
			Priority:     priority,
			Dependencies: deps,
			Factory: func() *migrate.Runner {
				return migrate.NewRunner(spec, snk, opts)
			},
		}
	}

	return []migrate.Plan{
		plan(clientsSpec(src, f), 10),
		plan(insuranceRefsSpec(src, f), 20),
		plan(clientClinicsSpec(src, f), 30, "clients"),
		plan(appointmentsSpec(src, f), 40, "clients"),
		plan(eventsSpec(src, f), 50, "clients"),
		plan(contactHistorySpec(src, f), 60, "clients"),
		plan(advancedBillingSpec(src, f), 70, "clients", "insurance_references"),
	}
}
