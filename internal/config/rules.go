package config

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
)

// RetentionRules is the business-retention policy applied during the
// migration. It is loaded once at startup and treated as immutable; the
// filter layer receives it by value so test runs can substitute their own
// rule sets.
type RetentionRules struct {
	// RetainedClinics are the clinics whose records are in scope.
	// Matching is exact and case-sensitive; everything else is excluded.
	RetainedClinics []string `json:"retainedClinics"`

	// ExcludedProducts are discontinued product codes whose billing
	// records must not be carried over.
	ExcludedProducts []string `json:"excludedProducts"`

	// ExcludedModules are functional areas skipped entirely, such as
	// billing modules retired before the cutover.
	ExcludedModules []string `json:"excludedModules"`

	// TestKeywords mark test/demo records by substring match on the
	// record's text fields.
	TestKeywords []string `json:"testKeywords"`

	// MinDate and MaxDate bound the plausible date range for legacy
	// records, in YYYY-MM-DD form. Records dated outside are dropped.
	MinDate string `json:"minDate"`
	MaxDate string `json:"maxDate"`

	// RestrictedClientFields are client sub-fields outside the retention
	// policy; they are stripped from the document, not the record.
	RestrictedClientFields []string `json:"restrictedClientFields"`
}

// DefaultRules is the policy agreed with the clinics for the cutover.
func DefaultRules() RetentionRules {
	return RetentionRules{
		RetainedClinics: []string{
			"Century Care",
			"Harborview Clinic",
			"Lakeside Family Practice",
			"Northgate Medical",
		},
		ExcludedProducts: []string{
			"VIS-LEGACY-01",
			"VIS-LEGACY-02",
			"OPT-TRIAL-99",
		},
		ExcludedModules: []string{
			"paper_billing",
			"fax_gateway",
		},
		TestKeywords: []string{
			"test", "demo", "dummy", "zzz",
		},
		MinDate: "1990-01-01",
		MaxDate: "2030-12-31",
		RestrictedClientFields: []string{
			"insurance.groupNumber",
			"insurance.notes",
		},
	}
}

// LoadRules reads the rule file at path, falling back to the embedded
// defaults when path is empty or the file does not exist. A present but
// malformed file is an error, not a silent fallback.
func LoadRules(path string) (RetentionRules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return RetentionRules{}, errors.Wrapf(err, "reading rules file %q", path)
	}
	var rules RetentionRules
	if err := json.Unmarshal(data, &rules); err != nil {
		return RetentionRules{}, errors.Wrapf(err, "parsing rules file %q", path)
	}
	return rules, nil
}
