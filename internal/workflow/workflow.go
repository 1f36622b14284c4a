// Package workflow describes the pipeline as a directed graph of named steps
// with declared inputs and outputs, and runs such a graph in process.
//
// The description is independent of the runner: schedulers consume it
// through Plan, and Runner executes it with the same precedence rules.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// Step is one unit of work. A step starts only after every step named in
// DependsOn has succeeded.
type Step struct {
	Name      string
	DependsOn []string

	// Inputs and Outputs are informational artifact identifiers.
	Inputs  []string
	Outputs []string

	Run func(ctx context.Context) error
}

// Workflow is a named step graph.
type Workflow struct {
	Name     string
	Schedule string
	Tags     []string
	Steps    []Step
}

// Validate checks names are unique and non-empty, every dependency exists,
// and the graph has no cycle.
func (w *Workflow) Validate() error {
	var errs []error
	index := make(map[string]int, len(w.Steps))
	for i, s := range w.Steps {
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Errorf("step %d has no name", i+1))
			continue
		}
		if _, dup := index[s.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate step %q", s.Name))
			continue
		}
		index[s.Name] = i
	}
	for _, s := range w.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				errs = append(errs, fmt.Errorf("step %q depends on unknown step %q", s.Name, dep))
			}
			if dep == s.Name {
				errs = append(errs, fmt.Errorf("step %q depends on itself", s.Name))
			}
		}
	}
	if len(errs) == 0 {
		if _, err := w.Order(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: workflow %q: %w", pgetl.ErrInvalidConfig, w.Name, errors.Join(errs...))
	}
	return nil
}

// Order returns step names in a topological order. Ties keep declaration order.
func (w *Workflow) Order() ([]string, error) {
	indegree := make(map[string]int, len(w.Steps))
	dependents := make(map[string][]string, len(w.Steps))
	position := make(map[string]int, len(w.Steps))
	for i, s := range w.Steps {
		position[s.Name] = i
		indegree[s.Name] += 0
		for _, dep := range s.DependsOn {
			indegree[s.Name]++
			dependents[dep] = append(dependents[dep], s.Name)
		}
	}

	var ready []string
	for _, s := range w.Steps {
		if indegree[s.Name] == 0 {
			ready = append(ready, s.Name)
		}
	}

	order := make([]string, 0, len(w.Steps))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, d := range dependents[name] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(order) != len(w.Steps) {
		var stuck []string
		for _, s := range w.Steps {
			if indegree[s.Name] > 0 {
				stuck = append(stuck, s.Name)
			}
		}
		return nil, fmt.Errorf("dependency cycle among steps %s", strings.Join(stuck, ", "))
	}
	return order, nil
}
