package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

func registerScripting(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:        "run_starlark",
		Group:       GroupScripting,
		Description: "Run a Starlark program over selected variables",
		New:         func() engine.Command { return &RunStarlark{} },
	})
	reg.Register(engine.Spec{
		Kind:        "run_task",
		Group:       GroupScripting,
		Description: "Run another script file with its own variables",
		New:         func() engine.Command { return &RunTask{} },
	})
}

// RunTask runs another script in a fresh engine instance. String argument
// values are interpolated before they are passed. Outputs maps the child's
// out arguments to variables of this script.
type RunTask struct {
	Path      string            `yaml:"path"      validate:"required"`
	Arguments map[string]any    `yaml:"arguments"`
	Outputs   map[string]string `yaml:"outputs"   validate:"dive,keys,required,endkeys,required"`
}

func (c *RunTask) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	parent := f.Instance
	p, err := path(parent, c.Path)
	if err != nil {
		return engine.Next, err
	}
	sc, err := script.LoadFile(p)
	if err != nil {
		return engine.Next, err
	}

	args := make(map[string]any, len(c.Arguments))
	for k, v := range c.Arguments {
		if s, ok := v.(string); ok {
			if v, err = parent.Interpolate(s); err != nil {
				return engine.Next, err
			}
		}
		args[k] = v
	}

	child := engine.NewInstance(engine.InstanceConfig{
		Parent:    parent,
		RawMode:   !parent.AutoCalculate(),
		Evaluator: parent.Evaluator(),
		Logger:    parent.Logger.With().Str("task", filepath.Base(p)).Logger(),
		BaseDir:   filepath.Dir(p),
	})
	parent.Report("Running task " + filepath.Base(p))
	res := f.Interpreter().RunScript(ctx, sc, child, args)

	switch {
	case parent.IsCancellationPending():
		return engine.Cancel, nil
	case res.Failed():
		return engine.Next, fmt.Errorf("task %s: %w", filepath.Base(p), res.Error)
	}

	froms := make([]string, 0, len(c.Outputs))
	for from := range c.Outputs {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	var names []string
	values := make(map[string]any, len(c.Outputs))
	for _, from := range froms {
		v, ok := res.Outputs[from]
		if !ok {
			return engine.Next, fmt.Errorf("task %s has no output argument %q", filepath.Base(p), from)
		}
		to := c.Outputs[from]
		if _, dup := values[to]; !dup {
			names = append(names, to)
		}
		values[to] = v
	}
	return engine.Next, parent.SetAll(names, values, true)
}

func (c *RunTask) DisplayText() string {
	return "Run Task " + quote(c.Path)
}
