package migrate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/visiocare/clinic-migrator/pkg/logger"
)

// ErrDependencyCycle is returned when the registered plans contain a
// circular dependency. The cycle is a configuration bug, so ordering
// fails before any migration is attempted.
var ErrDependencyCycle = errors.New("migration dependency cycle")

// ErrUnknownMigration is returned when a requested migration key is not
// registered.
var ErrUnknownMigration = errors.New("unknown migration")

// Plan is one registry entry. Factory produces a fresh runner per run so
// repeated executions never share state.
type Plan struct {
	Name         string
	Priority     int
	Dependencies []string
	Factory      func() *Runner
}

// Manager orders and executes the registered migration plans strictly
// sequentially. Sequential execution across migrations is a correctness
// requirement, not a simplification: later migrations assume the
// entities they reference were already written by earlier ones.
type Manager struct {
	plans map[string]Plan
	force bool
}

// NewManager registers the plans. Duplicate names are rejected.
func NewManager(plans []Plan, force bool) (*Manager, error) {
	byName := make(map[string]Plan, len(plans))
	for _, p := range plans {
		if _, dup := byName[p.Name]; dup {
			return nil, errors.Newf("duplicate migration plan %q", p.Name)
		}
		byName[p.Name] = p
	}
	for _, p := range byName {
		for _, dep := range p.Dependencies {
			if _, ok := byName[dep]; !ok {
				return nil, errors.Newf("migration %q depends on unregistered %q", p.Name, dep)
			}
		}
	}
	return &Manager{plans: byName, force: force}, nil
}

// ExecutionOrder computes a depth-first topological order over the plan
// dependencies. Ties among independent migrations are broken by
// ascending priority, then name. A cycle fails fast with
// ErrDependencyCycle naming the offending chain.
func (m *Manager) ExecutionOrder() ([]string, error) {
	names := make([]string, 0, len(m.plans))
	for name := range m.plans {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := m.plans[names[i]], m.plans[names[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Name < b.Name
	})

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(m.plans))
	order := make([]string, 0, len(m.plans))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			cycle := append(path, name)
			return errors.Wrapf(ErrDependencyCycle, "%s", strings.Join(cycle, " -> "))
		}
		state[name] = visiting

		deps := append([]string(nil), m.plans[name].Dependencies...)
		sort.Slice(deps, func(i, j int) bool {
			a, b := m.plans[deps[i]], m.plans[deps[j]]
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			return a.Name < b.Name
		})
		for _, dep := range deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// RunReport aggregates one ExecuteAll invocation.
type RunReport struct {
	RunID    string
	Success  bool
	Results  []*Result
	Duration time.Duration
}

// ExecuteAll runs every registered migration in dependency order. The
// first failed migration stops the run unless force mode is on, so
// dependent migrations never run against missing upstream data. Every
// attempted migration contributes a result; nothing is dropped silently.
func (m *Manager) ExecuteAll(ctx context.Context) (*RunReport, error) {
	order, err := m.ExecutionOrder()
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:   uuid.NewString(),
		Success: true,
	}
	start := time.Now()
	logger.Infof("Migration run %s: executing %d migrations: %s",
		report.RunID, len(order), strings.Join(order, ", "))

	for _, name := range order {
		runner := m.plans[name].Factory()
		result := runner.Execute(ctx)
		report.Results = append(report.Results, result)

		if !result.Success {
			report.Success = false
			if !m.force {
				logger.Errorf("Migration %s failed, aborting remaining migrations (use force to continue)", name)
				break
			}
			logger.Warnf("Migration %s failed, continuing in force mode", name)
		}
	}

	report.Duration = time.Since(start)
	logger.Infof("%s", SummaryReport(report))
	return report, nil
}

// Execute runs a single migration by name, bypassing ordering and
// dependency checks. The caller is responsible for prerequisites.
func (m *Manager) Execute(ctx context.Context, name string) (*Result, error) {
	plan, ok := m.plans[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMigration, "%q", name)
	}
	return plan.Factory().Execute(ctx), nil
}

// SummaryReport renders the aggregate outcome of a run. Pure formatting;
// it touches no data.
func SummaryReport(report *RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n==== Migration summary (run %s) ====\n", report.RunID)

	var total, migrated, skipped, errCount int
	for _, r := range report.Results {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "  %-24s %-6s total=%d migrated=%d skipped=%d errors=%d duration=%dms\n",
			r.TableName, status, r.TotalRecords, r.MigratedRecords, r.SkippedRecords,
			len(r.Errors), r.Duration.Milliseconds())
		for i, e := range r.Errors {
			if i >= 5 {
				fmt.Fprintf(&b, "      ... %d more errors\n", len(r.Errors)-i)
				break
			}
			fmt.Fprintf(&b, "      - %s\n", e)
		}
		total += r.TotalRecords
		migrated += r.MigratedRecords
		skipped += r.SkippedRecords
		errCount += len(r.Errors)
	}

	outcome := "SUCCESS"
	if !report.Success {
		outcome = "FAILURE"
	}
	fmt.Fprintf(&b, "  overall: %s, %d migrations, total=%d migrated=%d skipped=%d errors=%d in %s\n",
		outcome, len(report.Results), total, migrated, skipped, errCount,
		report.Duration.Round(time.Millisecond))
	return b.String()
}
