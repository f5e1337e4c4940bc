package migrate

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderLog records which migrations actually started, in order.
type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (l *orderLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func orderedPlan(name string, priority int, deps []string, failing bool, snk Sink, log *orderLog) Plan {
	spec := Spec{
		Name:       name,
		Table:      "sb_" + name,
		Collection: name,
		KeyField:   "id",
		KeyOf:      func(d Doc) interface{} { return d["id"] },
		Count: func(context.Context) (int, error) {
			log.add(name)
			if failing {
				return 0, errors.New("count failed")
			}
			return 1, nil
		},
		FetchAll: func(context.Context) ([]Row, error) {
			return []Row{{"legacy_id": 1}}, nil
		},
		Transform: func(r Row) (Doc, error) {
			return Doc{"id": r["legacy_id"]}, nil
		},
	}
	return Plan{
		Name:         name,
		Priority:     priority,
		Dependencies: deps,
		Factory:      func() *Runner { return NewRunner(spec, snk, DefaultOptions()) },
	}
}

func TestExecutionOrderDiamond(t *testing.T) {
	snk := newFakeSink()
	log := &orderLog{}
	m, err := NewManager([]Plan{
		orderedPlan("d", 1, []string{"b", "c"}, false, snk, log),
		orderedPlan("c", 3, []string{"a"}, false, snk, log),
		orderedPlan("b", 2, []string{"a"}, false, snk, log),
		orderedPlan("a", 4, nil, false, snk, log),
	}, false)
	require.NoError(t, err)

	order, err := m.ExecutionOrder()
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
	assert.Less(t, pos["b"], pos["c"], "ties among independents follow ascending priority")
}

func TestExecutionOrderCycleFailsFast(t *testing.T) {
	snk := newFakeSink()
	log := &orderLog{}
	m, err := NewManager([]Plan{
		orderedPlan("x", 1, []string{"y"}, false, snk, log),
		orderedPlan("y", 2, []string{"x"}, false, snk, log),
	}, false)
	require.NoError(t, err)

	_, err = m.ExecutionOrder()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDependencyCycle))

	_, err = m.ExecuteAll(context.Background())
	require.Error(t, err, "nothing may be attempted when the plan has a cycle")
	assert.Empty(t, log.names)
}

func TestNewManagerRejectsUnknownDependency(t *testing.T) {
	snk := newFakeSink()
	log := &orderLog{}
	_, err := NewManager([]Plan{
		orderedPlan("a", 1, []string{"ghost"}, false, snk, log),
	}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestExecuteAllRunsDependenciesFirst(t *testing.T) {
	snk := newFakeSink()
	log := &orderLog{}
	m, err := NewManager([]Plan{
		orderedPlan("appointments", 2, []string{"clients"}, false, snk, log),
		orderedPlan("clients", 1, nil, false, snk, log),
	}, false)
	require.NoError(t, err)

	report, err := m.ExecuteAll(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, []string{"clients", "appointments"}, log.names)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "sb_clients", report.Results[0].TableName)
}

func TestExecuteAllStopsAfterFailure(t *testing.T) {
	snk := newFakeSink()
	log := &orderLog{}
	m, err := NewManager([]Plan{
		orderedPlan("a", 1, nil, true, snk, log),
		orderedPlan("b", 2, []string{"a"}, false, snk, log),
	}, false)
	require.NoError(t, err)

	report, err := m.ExecuteAll(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Success)
	require.Len(t, report.Results, 1, "dependent migrations must not run after a failure")
	assert.Equal(t, []string{"a"}, log.names)
}

func TestExecuteAllForceContinuesPastFailure(t *testing.T) {
	snk := newFakeSink()
	log := &orderLog{}
	m, err := NewManager([]Plan{
		orderedPlan("a", 1, nil, true, snk, log),
		orderedPlan("b", 2, nil, false, snk, log),
	}, true)
	require.NoError(t, err)

	report, err := m.ExecuteAll(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Success, "overall result still reflects the failure")
	assert.Len(t, report.Results, 2)
	assert.Equal(t, []string{"a", "b"}, log.names)
}

func TestExecuteUnknownMigration(t *testing.T) {
	snk := newFakeSink()
	log := &orderLog{}
	m, err := NewManager([]Plan{orderedPlan("a", 1, nil, false, snk, log)}, false)
	require.NoError(t, err)

	_, err = m.Execute(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMigration))
}

func TestSummaryReportAggregates(t *testing.T) {
	report := &RunReport{
		RunID:   "test-run",
		Success: false,
		Results: []*Result{
			NewResult("sb_clients", true, 10, 8, nil, 0),
			NewResult("sb_events", false, 5, 0, []string{"source unreachable"}, 0),
		},
	}
	text := SummaryReport(report)
	assert.Contains(t, text, "sb_clients")
	assert.Contains(t, text, "sb_events")
	assert.Contains(t, text, "FAILED")
	assert.Contains(t, text, "source unreachable")
	assert.Contains(t, text, "FAILURE")
	assert.Contains(t, text, "total=15")
}
