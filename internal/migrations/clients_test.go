package migrations

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiocare/clinic-migrator/internal/config"
	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/source"
)

func testFilter() *filter.DataFilter {
	return filter.New(config.RetentionRules{
		RetainedClinics:        []string{"Century Care"},
		ExcludedProducts:       []string{"VIS-LEGACY-01"},
		ExcludedModules:        []string{"paper_billing"},
		TestKeywords:           []string{"test", "demo"},
		MinDate:                "1990-01-01",
		MaxDate:                "2030-12-31",
		RestrictedClientFields: []string{"insurance.groupNumber", "insurance.notes"},
	})
}

func clientColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"sb_clients_id", "sb_clients_first_name", "sb_clients_last_name",
		"sb_clients_city", "sb_clients_clinic", "sb_clients_active",
		"sb_clients_insurance_provider", "sb_clients_insurance_group",
		"sb_clients_created_at",
	})
}

func TestClientsMigrationRejectsRecordMissingCity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sb_clients`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))
	mock.ExpectQuery(`(?s)SELECT sb_clients_id.*FROM sb_clients ORDER BY sb_clients_id OFFSET 0 ROWS`).
		WillReturnRows(clientColumns().
			AddRow(101, "Alice", "Smith", "Springfield", "Century Care", "Y", "Acme Health", "G-1", "2015-06-01 09:00:00").
			AddRow(102, "Brianna", "Kowalski", nil, "Century Care", "Y", "Acme Health", "G-2", "2016-02-10 09:00:00").
			AddRow(103, "Carlos", "Nguyen", "Rivertown", "Century Care", "N", "", "", "2017-09-03 09:00:00"))
	mock.ExpectQuery(`(?s)SELECT sb_clients_id.*FROM sb_clients ORDER BY sb_clients_id OFFSET 3 ROWS`).
		WillReturnRows(clientColumns())

	snk := newMemSink()
	snk.seed("clients", "clientId")

	spec := clientsSpec(source.New(db), testFilter())
	result := migrate.NewRunner(spec, snk, migrate.DefaultOptions()).Execute(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 3, result.TotalRecords)
	assert.Equal(t, 2, result.MigratedRecords)
	assert.Equal(t, 1, result.SkippedRecords)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "clientId=102")
	assert.Contains(t, result.Errors[0], "missing city")
	assert.Equal(t, 2, snk.size("clients"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransformClientBuildsNestedDocument(t *testing.T) {
	transform := transformClient(testFilter())
	doc, err := transform(migrate.Row{
		"sb_clients_id":                 int64(7),
		"sb_clients_first_name":         "Alice",
		"sb_clients_last_name":          "Smith",
		"sb_clients_street":             "1 Main St",
		"sb_clients_city":               "Springfield",
		"sb_clients_zip":                "12345",
		"sb_clients_phone":              "555-0100",
		"sb_clients_email":              "a.smith@mail.com",
		"sb_clients_clinic":             "Century Care",
		"sb_clients_active":             "Y",
		"sb_clients_insurance_provider": "Acme Health",
		"sb_clients_insurance_number":   "P-9",
		"sb_clients_insurance_group":    "G-1",
		"sb_clients_insurance_notes":    "internal",
		"sb_clients_birth_date":         "1980-03-15",
	})
	require.NoError(t, err)

	assert.Equal(t, 7, doc["clientId"])
	assert.Equal(t, true, doc["active"])
	addr := doc["address"].(migrate.Doc)
	assert.Equal(t, "Springfield", addr["city"])
	contact := doc["contact"].(migrate.Doc)
	assert.Equal(t, "a.smith@mail.com", contact["email"])

	ins := doc["insurance"].(migrate.Doc)
	assert.Equal(t, "Acme Health", ins["provider"])
	assert.Equal(t, "P-9", ins["policyNumber"])
	assert.NotContains(t, ins, "groupNumber", "restricted sub-fields are stripped")
	assert.NotContains(t, ins, "notes")
	assert.NotNil(t, doc["birthDate"])
}

func TestTransformClientMissingID(t *testing.T) {
	transform := transformClient(testFilter())
	_, err := transform(migrate.Row{"sb_clients_last_name": "Smith"})
	require.Error(t, err)
}

func TestValidateClient(t *testing.T) {
	valid := migrate.Doc{
		"clientId": 1,
		"lastName": "Smith",
		"address":  migrate.Doc{"city": "Springfield"},
	}
	assert.NoError(t, validateClient(valid))

	missingCity := migrate.Doc{
		"clientId": 2,
		"lastName": "Smith",
		"address":  migrate.Doc{"city": ""},
	}
	assert.Error(t, validateClient(missingCity))

	missingName := migrate.Doc{
		"clientId": 3,
		"address":  migrate.Doc{"city": "Springfield"},
	}
	assert.Error(t, validateClient(missingName))

	assert.Error(t, validateClient(migrate.Doc{"lastName": "Smith", "address": migrate.Doc{"city": "X"}}))
}
