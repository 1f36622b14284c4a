package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// Status is a step's outcome.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StepResult records how one step ended.
type StepResult struct {
	Name     string
	Status   Status
	Err      error
	Started  time.Time
	Finished time.Time
}

func (r StepResult) Duration() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Report is the outcome of one workflow run.
type Report struct {
	RunID    uuid.UUID
	Workflow string

	// Steps are in declaration order.
	Steps []StepResult
}

// Result returns the result of the named step.
func (r *Report) Result(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Err joins the errors of every failed step, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			errs = append(errs, fmt.Errorf("step %s: %w", s.Name, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Hook observes status changes. It may be called from several goroutines.
type Hook func(step string, status Status, err error)

// Runner executes workflows. Independent steps run concurrently; a failed
// step does not cancel its siblings, and every step downstream of it is
// skipped.
type Runner struct {
	logger pgetl.Logger
	hooks  []Hook
}

// NewRunner panics if logger is nil.
func NewRunner(logger pgetl.Logger) *Runner {
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Runner{logger: logger}
}

// WithHook returns a copy of r that also calls hook.
func (r *Runner) WithHook(hook Hook) *Runner {
	clone := *r
	clone.hooks = append(append([]Hook(nil), r.hooks...), hook)
	return &clone
}

func (r *Runner) notify(step string, status Status, err error) {
	for _, h := range r.hooks {
		h(step, status, err)
	}
}

// Run validates w and executes it. The returned error is the joined step
// failures; the report is returned whenever validation passed.
func (r *Runner) Run(ctx context.Context, w *Workflow) (*Report, error) {
	return r.RunWithID(ctx, w, uuid.New())
}

// RunWithID is Run with a caller-chosen run ID.
func (r *Runner) RunWithID(ctx context.Context, w *Workflow, runID uuid.UUID) (*Report, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	report := &Report{RunID: runID, Workflow: w.Name, Steps: make([]StepResult, len(w.Steps))}
	done := make(map[string]chan struct{}, len(w.Steps))
	index := make(map[string]int, len(w.Steps))
	for i, s := range w.Steps {
		report.Steps[i] = StepResult{Name: s.Name, Status: StatusPending}
		done[s.Name] = make(chan struct{})
		index[s.Name] = i
	}

	var mu sync.Mutex
	setResult := func(i int, res StepResult) {
		mu.Lock()
		report.Steps[i] = res
		mu.Unlock()
	}
	statusOf := func(name string) Status {
		mu.Lock()
		defer mu.Unlock()
		return report.Steps[index[name]].Status
	}

	r.logger.Verbose("workflow %s run %s: %d steps", w.Name, runID, len(w.Steps))

	var g errgroup.Group
	for i, step := range w.Steps {
		g.Go(func() error {
			defer close(done[step.Name])

			for _, dep := range step.DependsOn {
				<-done[dep]
			}
			for _, dep := range step.DependsOn {
				if st := statusOf(dep); st != StatusSucceeded {
					r.logger.Info("Skipping %s: dependency %s %s", step.Name, dep, st)
					setResult(i, StepResult{Name: step.Name, Status: StatusSkipped})
					r.notify(step.Name, StatusSkipped, nil)
					return nil
				}
			}

			res := StepResult{Name: step.Name, Status: StatusRunning, Started: time.Now()}
			setResult(i, res)
			r.notify(step.Name, StatusRunning, nil)

			err := r.runStep(ctx, step)
			res.Finished = time.Now()
			if err != nil {
				res.Status, res.Err = StatusFailed, err
				r.logger.Error("Step %s failed after %v: %v", step.Name, res.Duration().Round(time.Millisecond), err)
			} else {
				res.Status = StatusSucceeded
				r.logger.Verbose("Step %s succeeded in %v", step.Name, res.Duration().Round(time.Millisecond))
			}
			setResult(i, res)
			r.notify(step.Name, res.Status, err)
			return err
		})
	}
	// A plain Group never cancels siblings; Wait only says whether any
	// step failed, the report holds every failure.
	if err := g.Wait(); err != nil {
		return report, report.Err()
	}
	return report, nil
}

func (r *Runner) runStep(ctx context.Context, step Step) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if step.Run == nil {
		return fmt.Errorf("step %s has nothing to run", step.Name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("step %s panicked: %v", step.Name, rec)
		}
	}()
	return step.Run(ctx)
}
