// Package filter implements the business-retention rules applied to
// legacy records before they are migrated. All predicates are pure and
// never panic on malformed input: a record that cannot be judged is
// excluded (the policy fails closed) except where noted.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/visiocare/clinic-migrator/internal/config"
	"github.com/visiocare/clinic-migrator/pkg/typeconv"
)

// DataFilter answers whether a clinic, product, or record survives the
// retention policy. It is constructed once from the loaded rules and is
// safe for concurrent use (it only reads its sets).
type DataFilter struct {
	retainedClinics  map[string]struct{}
	excludedProducts map[string]struct{}
	excludedModules  map[string]struct{}
	testKeywords     []string
	restrictedFields []string
	minDate          time.Time
	maxDate          time.Time
}

// Accessors names the legacy columns ApplyVisioFilters inspects on each
// record. Empty field names disable the corresponding check.
type Accessors struct {
	ClinicField string
	DateField   string
	TextFields  []string
}

// New builds a DataFilter from an immutable rule set.
func New(rules config.RetentionRules) *DataFilter {
	f := &DataFilter{
		retainedClinics:  toSet(rules.RetainedClinics),
		excludedProducts: toSet(rules.ExcludedProducts),
		excludedModules:  toSet(rules.ExcludedModules),
		restrictedFields: rules.RestrictedClientFields,
	}
	for _, kw := range rules.TestKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			f.testKeywords = append(f.testKeywords, kw)
		}
	}
	f.minDate, _ = typeconv.Date(rules.MinDate)
	if f.maxDate, _ = typeconv.Date(rules.MaxDate); f.maxDate.IsZero() {
		f.maxDate = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return f
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// ShouldIncludeClinic reports whether the named clinic is retained.
// Blank and unknown names are excluded.
func (f *DataFilter) ShouldIncludeClinic(clinicName string) bool {
	if clinicName == "" {
		return false
	}
	_, ok := f.retainedClinics[clinicName]
	return ok
}

// ShouldIncludeProduct reports whether a product code survives. Codes not
// on the exclusion list pass, including blank codes.
func (f *DataFilter) ShouldIncludeProduct(productCode string) bool {
	_, excluded := f.excludedProducts[productCode]
	return !excluded
}

// ModuleExcluded reports whether a functional area is skipped entirely.
func (f *DataFilter) ModuleExcluded(module string) bool {
	_, ok := f.excludedModules[module]
	return ok
}

// FilterRecordsByClinic keeps records whose clinicField value names a
// retained clinic, preserving input order.
func (f *DataFilter) FilterRecordsByClinic(records []map[string]interface{}, clinicField string) []map[string]interface{} {
	kept := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		if f.ShouldIncludeClinic(typeconv.String(rec[clinicField])) {
			kept = append(kept, rec)
		}
	}
	return kept
}

// FilterClientData strips restricted sub-fields from a client document in
// place and returns it. The record itself is always kept. Restricted
// fields use dotted paths ("insurance.notes") one level deep.
func (f *DataFilter) FilterClientData(doc map[string]interface{}) map[string]interface{} {
	for _, path := range f.restrictedFields {
		parent, field, found := strings.Cut(path, ".")
		if !found {
			delete(doc, parent)
			continue
		}
		if sub, ok := doc[parent].(map[string]interface{}); ok {
			delete(sub, field)
		}
	}
	return doc
}

// ApplyVisioFilters drops records that fail any retention predicate:
// test/demo keyword match, implausible date, or non-retained clinic. The
// predicates are independent, so the surviving set does not depend on
// evaluation order; only the per-predicate drop counts do.
func (f *DataFilter) ApplyVisioFilters(records []map[string]interface{}, acc Accessors) []map[string]interface{} {
	kept := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		if f.isTestRecord(rec, acc.TextFields) {
			continue
		}
		if !f.dateSane(rec, acc.DateField) {
			continue
		}
		if acc.ClinicField != "" && !f.ShouldIncludeClinic(typeconv.String(rec[acc.ClinicField])) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func (f *DataFilter) isTestRecord(rec map[string]interface{}, textFields []string) bool {
	for _, field := range textFields {
		text := strings.ToLower(typeconv.String(rec[field]))
		if text == "" {
			continue
		}
		for _, kw := range f.testKeywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}

// dateSane accepts records without a parseable date; only dates that
// parse and fall outside the configured bounds disqualify a record.
func (f *DataFilter) dateSane(rec map[string]interface{}, dateField string) bool {
	if dateField == "" {
		return true
	}
	t, ok := typeconv.Date(rec[dateField])
	if !ok {
		return true
	}
	return !t.Before(f.minDate) && !t.After(f.maxDate)
}

// RetainedClinics returns the retained clinic names in sorted order.
func (f *DataFilter) RetainedClinics() []string {
	names := make([]string, 0, len(f.retainedClinics))
	for name := range f.retainedClinics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary describes the loaded policy for run reports.
func (f *DataFilter) Summary() string {
	return fmt.Sprintf("retained clinics: %d, excluded products: %d, excluded modules: %d, test keywords: %d",
		len(f.retainedClinics), len(f.excludedProducts), len(f.excludedModules), len(f.testKeywords))
}
