package migrate

// DefaultBatchSize is used when the caller does not set one.
const DefaultBatchSize = 1000

// Options configure one migration run. A value is normalized once and
// not mutated afterwards.
type Options struct {
	// BatchSize is the number of records per processing chunk. Values
	// <= 0 are normalized to DefaultBatchSize.
	BatchSize int

	// SkipExisting controls ConflictSkip migrations on re-runs: true
	// leaves existing documents untouched, false overwrites them via
	// upsert. ConflictUpsert migrations always update existing docs.
	SkipExisting bool

	// ValidateData enables per-document validation.
	ValidateData bool

	// DryRun performs every read, filter, transform, and validation
	// step but writes nothing and creates no indexes.
	DryRun bool

	// QuarantineBadRecords controls transform failures: true excludes
	// and logs the bad row, false aborts the whole batch (fail-fast).
	QuarantineBadRecords bool
}

// DefaultOptions are the production settings for a full run.
func DefaultOptions() Options {
	return Options{
		BatchSize:            DefaultBatchSize,
		SkipExisting:         true,
		ValidateData:         true,
		QuarantineBadRecords: true,
	}
}

func (o Options) normalize() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}
