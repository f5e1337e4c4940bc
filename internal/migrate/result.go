package migrate

import (
	"fmt"
	"time"
)

// maxResultErrors bounds the error list kept on a result; anything past
// the bound is collapsed into a single trailing count marker.
const maxResultErrors = 25

// Result is the immutable outcome of one migration run.
type Result struct {
	Success         bool
	TotalRecords    int
	MigratedRecords int
	SkippedRecords  int
	Errors          []string
	Duration        time.Duration
	TableName       string
}

// NewResult builds a result, enforcing skipped = total - migrated and
// bounding the error list. Callers never set SkippedRecords directly.
func NewResult(table string, success bool, total, migrated int, errs []string, duration time.Duration) *Result {
	if len(errs) > maxResultErrors {
		overflow := len(errs) - maxResultErrors
		errs = append(errs[:maxResultErrors:maxResultErrors],
			fmt.Sprintf("... and %d more errors", overflow))
	}
	return &Result{
		Success:         success,
		TotalRecords:    total,
		MigratedRecords: migrated,
		SkippedRecords:  total - migrated,
		Errors:          errs,
		Duration:        duration,
		TableName:       table,
	}
}
