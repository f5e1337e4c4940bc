package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
	"github.com/visiocare/clinic-migrator/pkg/typeconv"
)

// The legacy scheduler stores status as a small integer.
var appointmentStatusNames = map[int]string{
	0: "scheduled",
	1: "completed",
	2: "cancelled",
	3: "no_show",
	4: "rescheduled",
}

const maxAppointmentMinutes = 1440

// appointmentsSpec migrates sb_appointments, the largest source table
// (~149k rows), with 5000-row pages. Existing appointments are skipped
// on re-run.
func appointmentsSpec(src *source.SQLSource, f *filter.DataFilter) migrate.Spec {
	const (
		table      = "sb_appointments"
		collection = "appointments"
	)
	baseQuery := `SELECT sb_appt_id, sb_appt_client_id, sb_appt_clinic, sb_appt_start,
		sb_appt_end, sb_appt_duration_min, sb_appt_status, sb_appt_provider,
		sb_appt_reason, sb_appt_created_at
	FROM sb_appointments`

	return migrate.Spec{
		Name:       "appointments",
		Table:      table,
		Collection: collection,
		KeyField:   "appointmentId",
		KeyOf:      func(d migrate.Doc) interface{} { return d["appointmentId"] },
		Conflict:   migrate.ConflictSkip,
		PageSize:   5000,
		Count: func(ctx context.Context) (int, error) {
			return src.Count(ctx, table)
		},
		FetchPage: func(ctx context.Context, offset, limit int) ([]migrate.Row, error) {
			return src.Page(ctx, baseQuery, "sb_appt_id", offset, limit)
		},
		Filter: func(rows []migrate.Row) []migrate.Row {
			return f.ApplyVisioFilters(rows, filter.Accessors{
				ClinicField: "sb_appt_clinic",
				DateField:   "sb_appt_start",
				TextFields:  []string{"sb_appt_reason"},
			})
		},
		Transform: transformAppointment,
		Validate:  validateAppointment,
		Indexes: []migrate.IndexSpec{
			{Fields: []migrate.IndexField{{Name: "appointmentId"}}, Unique: true},
			{Fields: []migrate.IndexField{{Name: "clientId"}, {Name: "start"}}},
			{Fields: []migrate.IndexField{{Name: "clinic"}, {Name: "status"}}},
		},
		PostCheck: func(ctx context.Context, snk migrate.Sink) []string {
			return runChecks(
				func() string { return duplicateKeyWarning(ctx, snk, collection, "appointmentId") },
				func() string { return missingFieldWarning(ctx, snk, collection, "clientId") },
				func() string { return endBeforeStartWarning(ctx, snk, collection) },
			)
		},
	}
}

func transformAppointment(row migrate.Row) (migrate.Doc, error) {
	id := typeconv.Int(row["sb_appt_id"])
	if id == 0 {
		return nil, errors.New("missing sb_appt_id")
	}

	doc := migrate.Doc{
		"appointmentId":   id,
		"clientId":        typeconv.Int(row["sb_appt_client_id"]),
		"clinic":          typeconv.String(row["sb_appt_clinic"]),
		"durationMinutes": typeconv.Int(row["sb_appt_duration_min"]),
		"status":          typeconv.Enum(row["sb_appt_status"], appointmentStatusNames, "unknown"),
		"provider":        typeconv.String(row["sb_appt_provider"]),
		"reason":          typeconv.String(row["sb_appt_reason"]),
	}
	if start, ok := typeconv.Date(row["sb_appt_start"]); ok {
		doc["start"] = start
	}
	if end, ok := typeconv.Date(row["sb_appt_end"]); ok {
		doc["end"] = end
	}
	if created, ok := typeconv.Date(row["sb_appt_created_at"]); ok {
		doc["legacyCreatedAt"] = created
	}
	return doc, nil
}

func validateAppointment(doc migrate.Doc) error {
	if typeconv.Int(doc["appointmentId"]) == 0 {
		return errors.New("missing appointmentId")
	}
	if typeconv.Int(doc["clientId"]) == 0 {
		return errors.New("missing clientId")
	}
	if d := typeconv.Int(doc["durationMinutes"]); d < 0 || d > maxAppointmentMinutes {
		return errors.Newf("duration %d outside [0, %d] minutes", d, maxAppointmentMinutes)
	}
	start, hasStart := doc["start"].(time.Time)
	end, hasEnd := doc["end"].(time.Time)
	if hasStart && hasEnd && end.Before(start) {
		return errors.Newf("end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

// endBeforeStartWarning counts appointments whose end precedes start,
// which would mean a validation gap rather than bad source data.
func endBeforeStartWarning(ctx context.Context, snk migrate.Sink, collection string) string {
	n, err := snk.CountDocuments(ctx, collection, migrate.Doc{
		"$expr": migrate.Doc{"$lt": []interface{}{"$end", "$start"}},
	})
	if err != nil {
		return "date-order check failed: " + err.Error()
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d appointments end before they start", n)
}
