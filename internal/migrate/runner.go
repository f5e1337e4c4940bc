package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/visiocare/clinic-migrator/pkg/logger"
)

// Runner executes one migration Spec against the shared sink. Batches
// are processed strictly sequentially: batch N+1 is not fetched until
// batch N's write completed. That bounds resident memory to one batch
// and keeps log order identical to completion order, which is what makes
// a failing batch attributable to a concrete record range.
type Runner struct {
	spec Spec
	sink Sink
	opts Options
}

// NewRunner builds a runner with normalized options.
func NewRunner(spec Spec, sink Sink, opts Options) *Runner {
	return &Runner{spec: spec, sink: sink, opts: opts.normalize()}
}

// Name returns the migration's registry key.
func (r *Runner) Name() string {
	return r.spec.Name
}

type runStats struct {
	total    int
	migrated int
	errs     []string
}

// Execute runs the migration and always returns a result, never an
// error: any failure, including a panic in a transform closure, is
// captured on the result with Success=false.
func (r *Runner) Execute(ctx context.Context) (res *Result) {
	start := time.Now()
	st := &runStats{}

	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("%s: panic during migration: %v", r.spec.Name, p)
			errs := append(st.errs, fmt.Sprintf("panic: %v", p))
			res = NewResult(r.spec.Table, false, st.total, st.migrated, errs, time.Since(start))
		}
	}()

	if err := r.run(ctx, st); err != nil {
		logger.Errorf("%s: migration failed: %v", r.spec.Name, err)
		st.errs = append(st.errs, err.Error())
		return NewResult(r.spec.Table, false, st.total, st.migrated, st.errs, time.Since(start))
	}

	elapsed := time.Since(start)
	logger.Infof("%s: done, migrated %d of %d records in %s",
		r.spec.Name, st.migrated, st.total, elapsed.Round(time.Millisecond))
	return NewResult(r.spec.Table, true, st.total, st.migrated, st.errs, elapsed)
}

func (r *Runner) run(ctx context.Context, st *runStats) error {
	logger.Infof("%s: starting migration of %s (dry run: %v)", r.spec.Name, r.spec.Table, r.opts.DryRun)

	total, err := r.spec.Count(ctx)
	if err != nil {
		return errors.Wrapf(err, "%s: counting source rows", r.spec.Name)
	}
	st.total = total
	logger.Infof("%s: %d source records", r.spec.Name, total)

	if r.spec.FetchAll != nil {
		rows, err := r.spec.FetchAll(ctx)
		if err != nil {
			return errors.Wrapf(err, "%s: fetching source rows", r.spec.Name)
		}
		if _, err := ProcessBatch(rows, r.opts.BatchSize, func(batch []Row) ([]Doc, error) {
			return nil, r.processRows(ctx, batch, st)
		}); err != nil {
			return err
		}
	} else {
		pageSize := r.spec.PageSize
		if pageSize <= 0 {
			pageSize = r.opts.BatchSize
		}
		offset := 0
		for {
			page, err := r.spec.FetchPage(ctx, offset, pageSize)
			if err != nil {
				return errors.Wrapf(err, "%s: fetching page at offset %d", r.spec.Name, offset)
			}
			if len(page) == 0 {
				break
			}
			if err := r.processRows(ctx, page, st); err != nil {
				return err
			}
			offset += len(page)
			logger.Infof("%s: processed %d/%d source records", r.spec.Name, offset, total)
		}
	}

	if r.opts.DryRun {
		logger.Infof("%s: [dry run] skipping index creation and post-run checks", r.spec.Name)
		return nil
	}

	if len(r.spec.Indexes) > 0 {
		if err := r.sink.EnsureIndexes(ctx, r.spec.Collection, r.spec.Indexes); err != nil {
			return errors.Wrapf(err, "%s: creating indexes on %s", r.spec.Name, r.spec.Collection)
		}
	}
	if r.spec.PostCheck != nil {
		for _, warning := range r.spec.PostCheck(ctx, r.sink) {
			logger.Warnf("%s: post-run check: %s", r.spec.Name, warning)
		}
	}
	return nil
}

// processRows pushes one batch of legacy rows through filter, transform,
// validation, dedup, and write.
func (r *Runner) processRows(ctx context.Context, rows []Row, st *runStats) error {
	if r.spec.Filter != nil {
		before := len(rows)
		rows = r.spec.Filter(rows)
		if dropped := before - len(rows); dropped > 0 {
			logger.Infof("%s: business filters dropped %d of %d records", r.spec.Name, dropped, before)
		}
	}

	docs, transformErrs, err := TransformAll(rows, r.spec.Transform, r.opts.QuarantineBadRecords)
	if err != nil {
		return errors.Wrapf(err, "%s: transforming batch", r.spec.Name)
	}
	for _, msg := range transformErrs {
		logger.Warnf("%s: %s", r.spec.Name, msg)
	}
	st.errs = append(st.errs, transformErrs...)

	if r.opts.ValidateData && r.spec.Validate != nil {
		valid, invalid := PartitionValid(docs, r.spec.Validate)
		for _, iv := range invalid {
			msg := fmt.Sprintf("invalid record %s=%v: %v", r.spec.KeyField, r.spec.KeyOf(iv.Doc), iv.Err)
			logger.Warnf("%s: %s", r.spec.Name, msg)
			st.errs = append(st.errs, msg)
		}
		docs = valid
	}

	if len(docs) == 0 {
		return nil
	}
	return r.writeDocs(ctx, docs, st)
}

func (r *Runner) writeDocs(ctx context.Context, docs []Doc, st *runStats) error {
	mode := r.spec.Conflict
	if mode == ConflictSkip && !r.opts.SkipExisting {
		// Overwrite-on-rerun was requested, so existing documents get
		// updated instead of left alone.
		mode = ConflictUpsert
	}

	switch mode {
	case ConflictSkip:
		keys := make([]interface{}, 0, len(docs))
		for _, d := range docs {
			keys = append(keys, r.spec.KeyOf(d))
		}
		existing, err := r.sink.ExistingKeys(ctx, r.spec.Collection, r.spec.KeyField, keys)
		if err != nil {
			return errors.Wrapf(err, "%s: checking existing keys", r.spec.Name)
		}
		fresh := make([]Doc, 0, len(docs))
		for _, d := range docs {
			if _, ok := existing[r.spec.KeyOf(d)]; !ok {
				fresh = append(fresh, d)
			}
		}
		if skipped := len(docs) - len(fresh); skipped > 0 {
			logger.Infof("%s: %d records already migrated, skipping", r.spec.Name, skipped)
		}
		if len(fresh) == 0 {
			return nil
		}
		if r.opts.DryRun {
			logger.Infof("%s: [dry run] would insert %d documents", r.spec.Name, len(fresh))
			st.migrated += len(fresh)
			return nil
		}
		n, err := r.sink.InsertMany(ctx, r.spec.Collection, fresh)
		if err != nil {
			return errors.Wrapf(err, "%s: inserting batch", r.spec.Name)
		}
		st.migrated += n

	case ConflictUpsert:
		if r.opts.DryRun {
			logger.Infof("%s: [dry run] would upsert %d documents", r.spec.Name, len(docs))
			st.migrated += len(docs)
			return nil
		}
		inserted, updated, err := r.sink.BulkUpsert(ctx, r.spec.Collection, r.spec.KeyField, docs)
		if err != nil {
			return errors.Wrapf(err, "%s: upserting batch", r.spec.Name)
		}
		logger.Infof("%s: inserted %d, updated %d", r.spec.Name, inserted, updated)
		st.migrated += inserted + updated
	}
	return nil
}

// ProcessBatch splits records into fixed-size chunks and runs processor
// over them sequentially, concatenating the outputs. Empty input returns
// immediately without invoking processor. A processor error is logged
// and rethrown; remaining chunks are not attempted.
func ProcessBatch(records []Row, batchSize int, processor func([]Row) ([]Doc, error)) ([]Doc, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	chunks := (len(records) + batchSize - 1) / batchSize

	var out []Doc
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := i/batchSize + 1
		results, err := processor(records[i:end])
		if err != nil {
			logger.Errorf("batch %d/%d failed: %v", chunk, chunks, err)
			return nil, err
		}
		out = append(out, results...)
		logger.Infof("batch %d/%d done (%d records)", chunk, chunks, end-i)
	}
	return out, nil
}

// InvalidDoc pairs a rejected document with its validation error.
type InvalidDoc struct {
	Doc Doc
	Err error
}

// PartitionValid splits docs by the validator in a single pass,
// preserving input order within each partition.
func PartitionValid(docs []Doc, validate func(Doc) error) (valid []Doc, invalid []InvalidDoc) {
	valid = make([]Doc, 0, len(docs))
	for _, d := range docs {
		if err := validate(d); err != nil {
			invalid = append(invalid, InvalidDoc{Doc: d, Err: err})
		} else {
			valid = append(valid, d)
		}
	}
	return valid, invalid
}

// TransformAll maps rows to documents one-to-one, preserving order. When
// quarantine is true, a failing row is reported in the returned messages
// and excluded; otherwise the first failure aborts the whole batch.
func TransformAll(rows []Row, transform func(Row) (Doc, error), quarantine bool) ([]Doc, []string, error) {
	docs := make([]Doc, 0, len(rows))
	var msgs []string
	for i, row := range rows {
		doc, err := transform(row)
		if err != nil {
			if !quarantine {
				return nil, nil, errors.Wrapf(err, "transforming record %d", i)
			}
			msgs = append(msgs, fmt.Sprintf("transform failed for record %d: %v", i, err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, msgs, nil
}
