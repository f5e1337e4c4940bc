package cli

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/visiocare/clinic-migrator/internal/config"
	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/migrations"
	"github.com/visiocare/clinic-migrator/internal/sink"
	"github.com/visiocare/clinic-migrator/internal/source"
	"github.com/visiocare/clinic-migrator/pkg/database"
	"github.com/visiocare/clinic-migrator/pkg/logger"
)

type runOptions struct {
	dryRun    bool
	force     bool
	failFast  bool
	overwrite bool
	batchSize int
	rulesFile string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [migration]",
		Short: "Run all migrations in dependency order, or a single named one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runMigrations(c.Context(), opts, name)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Read, filter, and validate without writing")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Continue past failed migrations")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Abort a batch on the first bad record instead of quarantining it")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "Overwrite already-migrated records instead of skipping them")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", migrate.DefaultBatchSize, "Records per processing batch")
	cmd.Flags().StringVar(&opts.rulesFile, "rules", "", "Path to a retention-rules JSON file (defaults to the built-in policy)")

	return cmd
}

func runMigrations(ctx context.Context, opts *runOptions, name string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rules, err := config.LoadRules(opts.rulesFile)
	if err != nil {
		return err
	}
	f := filter.New(rules)
	logger.Infof("Retention policy loaded: %s", f.Summary())

	sqlDB, err := database.ConnectSQL(cfg.SQLConnString)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	mongoClient, err := database.ConnectMongo(cfg.MongoConnString)
	if err != nil {
		return err
	}
	defer database.Disconnect(mongoClient)

	src := source.New(sqlDB)
	snk := sink.New(mongoClient.Database(cfg.MongoDatabase))

	mopts := migrate.DefaultOptions()
	mopts.BatchSize = opts.batchSize
	mopts.DryRun = opts.dryRun
	mopts.SkipExisting = !opts.overwrite
	mopts.QuarantineBadRecords = !opts.failFast

	manager, err := migrate.NewManager(migrations.Plans(src, snk, f, mopts), opts.force)
	if err != nil {
		return err
	}

	if name != "" {
		result, err := manager.Execute(ctx, name)
		if err != nil {
			return err
		}
		logger.Infof("%s", migrate.SummaryReport(&migrate.RunReport{
			RunID:    "single",
			Success:  result.Success,
			Results:  []*migrate.Result{result},
			Duration: result.Duration,
		}))
		if !result.Success {
			return errors.Newf("migration %q failed", name)
		}
		return nil
	}

	report, err := manager.ExecuteAll(ctx)
	if err != nil {
		return err
	}
	if !report.Success {
		return errors.New("migration run finished with failures")
	}
	return nil
}
