package migrations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiocare/clinic-migrator/internal/migrate"
)

func TestTransformAppointment(t *testing.T) {
	doc, err := transformAppointment(migrate.Row{
		"sb_appt_id":           int64(9001),
		"sb_appt_client_id":    int64(101),
		"sb_appt_clinic":       "Century Care",
		"sb_appt_start":        "2019-04-02 09:00:00",
		"sb_appt_end":          "2019-04-02 09:30:00",
		"sb_appt_duration_min": "30",
		"sb_appt_status":       2,
		"sb_appt_provider":     "Dr. Patel",
	})
	require.NoError(t, err)

	assert.Equal(t, 9001, doc["appointmentId"])
	assert.Equal(t, 101, doc["clientId"])
	assert.Equal(t, 30, doc["durationMinutes"])
	assert.Equal(t, "cancelled", doc["status"])
	assert.Equal(t, time.Date(2019, 4, 2, 9, 0, 0, 0, time.UTC), doc["start"])
}

func TestTransformAppointmentUnknownStatus(t *testing.T) {
	doc, err := transformAppointment(migrate.Row{
		"sb_appt_id":     int64(1),
		"sb_appt_status": 77,
	})
	require.NoError(t, err)
	assert.Equal(t, "unknown", doc["status"])
}

func TestValidateAppointment(t *testing.T) {
	start := time.Date(2019, 4, 2, 9, 0, 0, 0, time.UTC)
	base := func() migrate.Doc {
		return migrate.Doc{
			"appointmentId":   1,
			"clientId":        2,
			"durationMinutes": 30,
			"start":           start,
			"end":             start.Add(30 * time.Minute),
		}
	}

	assert.NoError(t, validateAppointment(base()))

	cases := []struct {
		name   string
		mutate func(migrate.Doc)
	}{
		{"missing appointment id", func(d migrate.Doc) { delete(d, "appointmentId") }},
		{"missing client id", func(d migrate.Doc) { delete(d, "clientId") }},
		{"negative duration", func(d migrate.Doc) { d["durationMinutes"] = -1 }},
		{"duration over a day", func(d migrate.Doc) { d["durationMinutes"] = 1441 }},
		{"end before start", func(d migrate.Doc) { d["end"] = start.Add(-time.Hour) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := base()
			tc.mutate(doc)
			assert.Error(t, validateAppointment(doc))
		})
	}

	// A full-day slot is the documented upper bound.
	doc := base()
	doc["durationMinutes"] = 1440
	doc["end"] = start.Add(24 * time.Hour)
	assert.NoError(t, validateAppointment(doc))

	// Records without parsed dates skip the ordering check.
	doc = base()
	delete(doc, "start")
	delete(doc, "end")
	assert.NoError(t, validateAppointment(doc))
}
