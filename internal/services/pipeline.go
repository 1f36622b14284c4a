package services

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vvka-141/pgetl/internal/metrics"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/internal/workflow"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// PipelineInfo is the scheduler-facing identity of the pipeline.
type PipelineInfo struct {
	Name     string
	Schedule string
	Tags     []string
}

// RunReport is the outcome of one pipeline run.
type RunReport struct {
	RunID     uuid.UUID
	Partition string
	State     pgetl.RunState
	Steps     []workflow.StepResult
	Load      pgetl.LoadResult
}

// Pipeline wires the three stages into the extract_file, extract_tables ->
// load_warehouse graph.
type Pipeline struct {
	info           PipelineInfo
	fileExtractor  *FileExtractor
	tableExtractor *TableExtractor
	loader         *WarehouseLoader
	logger         pgetl.Logger
	metrics        metrics.Client
}

// NewPipeline panics on nil dependencies.
func NewPipeline(
	info PipelineInfo,
	fileExtractor *FileExtractor,
	tableExtractor *TableExtractor,
	loader *WarehouseLoader,
	logger pgetl.Logger,
	metricsClient metrics.Client,
) *Pipeline {
	if fileExtractor == nil {
		panic("fileExtractor cannot be nil")
	}
	if tableExtractor == nil {
		panic("tableExtractor cannot be nil")
	}
	if loader == nil {
		panic("loader cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if metricsClient == nil {
		panic("metrics cannot be nil")
	}
	return &Pipeline{
		info:           info,
		fileExtractor:  fileExtractor,
		tableExtractor: tableExtractor,
		loader:         loader,
		logger:         logger,
		metrics:        metricsClient,
	}
}

// Workflow returns the step graph bound to partition p. The load result is
// stored in *load when the load step succeeds; load may be nil.
func (pl *Pipeline) Workflow(p partition.Partition, runID uuid.UUID, load *pgetl.LoadResult) *workflow.Workflow {
	fileOutput := path.Join(partition.CSVDirName, path.Base(pl.fileExtractor.SourcePath()))
	tableInputs := make([]string, 0, len(pl.tableExtractor.Tables()))
	tableOutputs := make([]string, 0, len(pl.tableExtractor.Tables()))
	loadOutputs := []string{pl.loader.Schema() + "." + partition.LogicalName(fileOutput)}
	for _, t := range pl.tableExtractor.Tables() {
		tableInputs = append(tableInputs, pl.tableExtractor.Schema()+"."+t)
		tableOutputs = append(tableOutputs, path.Join(partition.SQLDirName, t+pgetl.SnapshotExtension))
		loadOutputs = append(loadOutputs, pl.loader.Schema()+"."+t)
	}
	manifestOf := func(stage string) string {
		return path.Join(partition.ManifestDirName, stage+".yaml")
	}

	return &workflow.Workflow{
		Name:     pl.info.Name,
		Schedule: pl.info.Schedule,
		Tags:     pl.info.Tags,
		Steps: []workflow.Step{
			{
				Name:    pgetl.StageExtractFile,
				Inputs:  []string{pl.fileExtractor.SourcePath()},
				Outputs: []string{fileOutput, manifestOf(pgetl.StageExtractFile)},
				Run: func(ctx context.Context) error {
					_, err := pl.fileExtractor.Extract(ctx, p, runID)
					return err
				},
			},
			{
				Name:    pgetl.StageExtractTables,
				Inputs:  tableInputs,
				Outputs: append(tableOutputs, manifestOf(pgetl.StageExtractTables)),
				Run: func(ctx context.Context) error {
					_, err := pl.tableExtractor.Extract(ctx, p, runID)
					return err
				},
			},
			{
				Name:      pgetl.StageLoadWarehouse,
				DependsOn: []string{pgetl.StageExtractFile, pgetl.StageExtractTables},
				Inputs:    []string{fileOutput, manifestOf(pgetl.StageExtractFile), manifestOf(pgetl.StageExtractTables)},
				Outputs:   loadOutputs,
				Run: func(ctx context.Context) error {
					res, err := pl.loader.Load(ctx, p)
					if err == nil && load != nil {
						*load = res
					}
					return err
				},
			},
		},
	}
}

// Plan describes the workflow for schedulers.
func (pl *Pipeline) Plan() (*workflow.Plan, error) {
	return pl.Workflow(partition.Partition{}, uuid.Nil, nil).Plan()
}

// Run executes the whole graph for p. The report is returned even when the
// run fails.
func (pl *Pipeline) Run(ctx context.Context, p partition.Partition) (*RunReport, error) {
	runID := uuid.New()
	report := &RunReport{RunID: runID, Partition: p.Name(), State: pgetl.RunPending}
	sm := &stateMachine{state: pgetl.RunPending, logger: pl.logger, runID: runID}

	runner := workflow.NewRunner(pl.logger).WithHook(func(step string, status workflow.Status, err error) {
		switch status {
		case workflow.StatusRunning:
			if step == pgetl.StageLoadWarehouse {
				sm.advance(pgetl.RunLoading)
			} else {
				sm.advance(pgetl.RunExtracting)
			}
		case workflow.StatusSucceeded:
			pl.metrics.Incr(metrics.StageSucceeded, map[string]string{"stage": step})
		case workflow.StatusFailed:
			pl.metrics.Incr(metrics.StageFailed, map[string]string{"stage": step})
			sm.advance(pgetl.RunFailed)
		}
	})

	pl.logger.Info("Starting %s run %s for partition %s", pl.info.Name, runID, p)
	started := time.Now()
	wfReport, err := runner.RunWithID(ctx, pl.Workflow(p, runID, &report.Load), runID)
	pl.metrics.Timing(metrics.StageDuration, time.Since(started), map[string]string{"stage": "pipeline"})
	if wfReport != nil {
		report.Steps = wfReport.Steps
		for _, s := range wfReport.Steps {
			if !s.Started.IsZero() {
				pl.metrics.Timing(metrics.StageDuration, s.Duration(), map[string]string{"stage": s.Name})
			}
		}
	}

	if err != nil {
		sm.advance(pgetl.RunFailed)
		report.State = sm.current()
		return report, err
	}
	sm.advance(pgetl.RunDone)
	report.State = sm.current()
	pl.logger.Info("Run %s finished: %d tables loaded into %s", runID, len(report.Load.Tables), report.Load.Schema)
	return report, nil
}

// RunStage runs a single stage for p, for schedulers that invoke stages as
// separate units of work. The loader still refuses to start until both
// extractions have completed for p.
func (pl *Pipeline) RunStage(ctx context.Context, stage string, p partition.Partition) (*pgetl.LoadResult, error) {
	runID := uuid.New()
	started := time.Now()
	defer func() {
		pl.metrics.Timing(metrics.StageDuration, time.Since(started), map[string]string{"stage": stage})
	}()

	var err error
	var load *pgetl.LoadResult
	switch stage {
	case pgetl.StageExtractFile:
		_, err = pl.fileExtractor.Extract(ctx, p, runID)
	case pgetl.StageExtractTables:
		_, err = pl.tableExtractor.Extract(ctx, p, runID)
	case pgetl.StageLoadWarehouse:
		var res pgetl.LoadResult
		res, err = pl.loader.Load(ctx, p)
		load = &res
	default:
		return nil, fmt.Errorf("%w: unknown stage %q", pgetl.ErrInvalidConfig, stage)
	}
	if err != nil {
		pl.metrics.Incr(metrics.StageFailed, map[string]string{"stage": stage})
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	return load, nil
}

// stateMachine tracks the coarse run state. Transitions that the state
// does not allow are ignored.
type stateMachine struct {
	mu     sync.Mutex
	state  pgetl.RunState
	runID  uuid.UUID
	logger pgetl.Logger
}

func (s *stateMachine) advance(next pgetl.RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == next || !s.state.CanTransition(next) {
		return
	}
	s.logger.Verbose("run %s: %s -> %s", s.runID, s.state, next)
	s.state = next
}

func (s *stateMachine) current() pgetl.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
