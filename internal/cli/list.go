package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/visiocare/clinic-migrator/internal/config"
	"github.com/visiocare/clinic-migrator/internal/filter"
	"github.com/visiocare/clinic-migrator/internal/migrate"
	"github.com/visiocare/clinic-migrator/internal/migrations"
)

// newListCmd prints the execution plan without connecting to either
// database or touching any data.
func newListCmd() *cobra.Command {
	var rulesFile string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the ordered migration plan and exit",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			rules, err := config.LoadRules(rulesFile)
			if err != nil {
				return err
			}
			f := filter.New(rules)

			// Plan factories are never invoked here, so nil source and
			// sink handles are safe.
			plans := migrations.Plans(nil, nil, f, migrate.DefaultOptions())
			byName := make(map[string]migrate.Plan, len(plans))
			for _, p := range plans {
				byName[p.Name] = p
			}

			manager, err := migrate.NewManager(plans, false)
			if err != nil {
				return err
			}
			order, err := manager.ExecutionOrder()
			if err != nil {
				return err
			}

			fmt.Printf("Execution order (%d migrations):\n", len(order))
			for i, name := range order {
				p := byName[name]
				deps := "-"
				if len(p.Dependencies) > 0 {
					deps = strings.Join(p.Dependencies, ", ")
				}
				fmt.Printf("  %2d. %-24s priority=%-3d depends on: %s\n", i+1, name, p.Priority, deps)
			}
			fmt.Printf("Retention policy: %s\n", f.Summary())
			fmt.Printf("Retained clinics: %s\n", strings.Join(f.RetainedClinics(), ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesFile, "rules", "", "Path to a retention-rules JSON file (defaults to the built-in policy)")
	return cmd
}
