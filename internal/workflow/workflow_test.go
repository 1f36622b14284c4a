package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vvka-141/pgetl/internal/logging"
	"github.com/vvka-141/pgetl/internal/workflow"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

func ok(context.Context) error { return nil }

func fanIn(extractFile, extractTables, load func(context.Context) error) *workflow.Workflow {
	return &workflow.Workflow{
		Name:     "banvic_pipeline",
		Schedule: "35 4 * * *",
		Steps: []workflow.Step{
			{Name: "extract_file", Run: extractFile, Outputs: []string{"csv/transacoes.csv"}},
			{Name: "extract_tables", Run: extractTables, Outputs: []string{"sql/agencias.csv"}},
			{Name: "load_warehouse", DependsOn: []string{"extract_file", "extract_tables"}, Run: load},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		steps []workflow.Step
	}{
		{"empty name", []workflow.Step{{Name: " "}}},
		{"duplicate", []workflow.Step{{Name: "a"}, {Name: "a"}}},
		{"unknown dependency", []workflow.Step{{Name: "a", DependsOn: []string{"b"}}}},
		{"self dependency", []workflow.Step{{Name: "a", DependsOn: []string{"a"}}}},
		{"cycle", []workflow.Step{
			{Name: "a", DependsOn: []string{"c"}},
			{Name: "b", DependsOn: []string{"a"}},
			{Name: "c", DependsOn: []string{"b"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &workflow.Workflow{Name: "w", Steps: tt.steps}
			err := w.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, pgetl.ErrInvalidConfig))
		})
	}

	assert.NoError(t, fanIn(ok, ok, ok).Validate())
}

func TestOrder_IsDeterministic(t *testing.T) {
	w := &workflow.Workflow{Steps: []workflow.Step{
		{Name: "load", DependsOn: []string{"b", "a"}},
		{Name: "b"},
		{Name: "a"},
	}}
	order, err := w.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "load"}, order)
}

func TestRun_LoadWaitsForBothExtractions(t *testing.T) {
	var extracted atomic.Int32
	var sawBoth bool

	slow := func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		extracted.Add(1)
		return nil
	}
	fast := func(context.Context) error {
		extracted.Add(1)
		return nil
	}
	load := func(context.Context) error {
		sawBoth = extracted.Load() == 2
		return nil
	}

	report, err := workflow.NewRunner(logging.NewNullLogger()).Run(context.Background(), fanIn(slow, fast, load))
	require.NoError(t, err)
	assert.True(t, sawBoth)
	for _, s := range report.Steps {
		assert.Equal(t, workflow.StatusSucceeded, s.Status, s.Name)
	}
	assert.NotEqual(t, uuid.Nil, report.RunID)
}

func TestRun_ExtractionsRunConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	rendezvous := func(ctx context.Context) error {
		wg.Done()
		waited := make(chan struct{})
		go func() { wg.Wait(); close(waited) }()
		select {
		case <-waited:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("sibling never started")
		}
	}

	_, err := workflow.NewRunner(logging.NewNullLogger()).Run(context.Background(), fanIn(rendezvous, rendezvous, ok))
	assert.NoError(t, err)
}

func TestRun_FailureSkipsDownstreamButNotSiblings(t *testing.T) {
	boom := errors.New("source file missing")
	var tablesRan, loadRan atomic.Bool

	w := fanIn(
		func(context.Context) error { return boom },
		func(context.Context) error { time.Sleep(10 * time.Millisecond); tablesRan.Store(true); return nil },
		func(context.Context) error { loadRan.Store(true); return nil },
	)

	report, err := workflow.NewRunner(logging.NewNullLogger()).Run(context.Background(), w)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, tablesRan.Load())
	assert.False(t, loadRan.Load())

	file, _ := report.Result("extract_file")
	tables, _ := report.Result("extract_tables")
	load, _ := report.Result("load_warehouse")
	assert.Equal(t, workflow.StatusFailed, file.Status)
	assert.Equal(t, workflow.StatusSucceeded, tables.Status)
	assert.Equal(t, workflow.StatusSkipped, load.Status)
}

func TestRun_ReportsEveryFailedStep(t *testing.T) {
	fileErr := errors.New("source file missing")
	tablesErr := errors.New("connection refused")

	report, err := workflow.NewRunner(logging.NewNullLogger()).Run(context.Background(), fanIn(
		func(context.Context) error { return fileErr },
		func(context.Context) error { return tablesErr },
		ok,
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, fileErr)
	assert.ErrorIs(t, err, tablesErr)
	assert.Contains(t, err.Error(), "step extract_file")
	assert.Contains(t, err.Error(), "step extract_tables")
	assert.Equal(t, err.Error(), report.Err().Error())
}

func TestRun_SuccessHasNoError(t *testing.T) {
	report, err := workflow.NewRunner(logging.NewNullLogger()).Run(context.Background(), fanIn(ok, ok, ok))
	require.NoError(t, err)
	assert.NoError(t, report.Err())
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	w := fanIn(func(context.Context) error { panic("bad") }, ok, ok)

	report, err := workflow.NewRunner(logging.NewNullLogger()).Run(context.Background(), w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	res, _ := report.Result("load_warehouse")
	assert.Equal(t, workflow.StatusSkipped, res.Status)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := workflow.NewRunner(logging.NewNullLogger()).Run(ctx, fanIn(ok, ok, ok))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	res, _ := report.Result("load_warehouse")
	assert.Equal(t, workflow.StatusSkipped, res.Status)
}

func TestRun_InvalidWorkflow(t *testing.T) {
	w := &workflow.Workflow{Steps: []workflow.Step{{Name: "a", DependsOn: []string{"missing"}}}}
	report, err := workflow.NewRunner(logging.NewNullLogger()).Run(context.Background(), w)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, pgetl.ErrInvalidConfig)
}

func TestRun_Hooks(t *testing.T) {
	var mu sync.Mutex
	var events []string
	runner := workflow.NewRunner(logging.NewNullLogger()).WithHook(func(step string, status workflow.Status, _ error) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, step+":"+status.String())
	})

	_, err := runner.Run(context.Background(), fanIn(ok, ok, ok))
	require.NoError(t, err)
	assert.Len(t, events, 6)
	assert.Equal(t, "load_warehouse:succeeded", events[len(events)-1])
}

func TestPlan(t *testing.T) {
	w := fanIn(ok, ok, ok)
	w.Tags = []string{"ingestao", "banvic", "dw"}

	plan, err := w.Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"extract_file", "extract_tables", "load_warehouse"}, plan.Order)

	out, err := plan.YAML()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "banvic_pipeline", decoded["name"])
	assert.Equal(t, "35 4 * * *", decoded["schedule"])
	assert.Contains(t, string(out), "depends_on:")
	assert.NotContains(t, string(out), "run:")
}
