package workflow

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// Plan is the scheduler-facing description of a workflow.
type Plan struct {
	Name     string     `yaml:"name"`
	Schedule string     `yaml:"schedule,omitempty"`
	Tags     []string   `yaml:"tags,omitempty"`
	Order    []string   `yaml:"order"`
	Steps    []PlanStep `yaml:"steps"`
}

type PlanStep struct {
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Inputs    []string `yaml:"inputs,omitempty"`
	Outputs   []string `yaml:"outputs,omitempty"`
}

// Plan validates w and describes it.
func (w *Workflow) Plan() (*Plan, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	order, err := w.Order()
	if err != nil {
		return nil, err
	}
	p := &Plan{Name: w.Name, Schedule: w.Schedule, Tags: w.Tags, Order: order}
	for _, s := range w.Steps {
		p.Steps = append(p.Steps, PlanStep{
			Name:      s.Name,
			DependsOn: s.DependsOn,
			Inputs:    s.Inputs,
			Outputs:   s.Outputs,
		})
	}
	return p, nil
}

// YAML renders the plan with two-space indentation.
func (p *Plan) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
