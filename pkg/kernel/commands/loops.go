package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cast"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

const familyLoop = "loop"

func registerLoops(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:        "begin_loop",
		Group:       GroupLoops,
		Description: "Repeat the body while a condition holds",
		Role:        engine.RoleOpen,
		Family:      familyLoop,
		New:         func() engine.Command { return &BeginLoop{} },
	})
	reg.Register(engine.Spec{
		Kind:        "loop_times",
		Group:       GroupLoops,
		Description: "Repeat the body a fixed number of times",
		Role:        engine.RoleOpen,
		Family:      familyLoop,
		New:         func() engine.Command { return &LoopTimes{} },
	})
	reg.Register(engine.Spec{
		Kind:        "loop_collection",
		Group:       GroupLoops,
		Description: "Run the body once per item of a list",
		Role:        engine.RoleOpen,
		Family:      familyLoop,
		New:         func() engine.Command { return &LoopCollection{} },
	})
	reg.Register(engine.Spec{
		Kind:        "end_loop",
		Group:       GroupLoops,
		Description: "Close a loop",
		Role:        engine.RoleClose,
		Family:      familyLoop,
		New:         func() engine.Command { return &EndLoop{} },
	})
	reg.Register(engine.Spec{
		Kind:        "exit_loop",
		Group:       GroupLoops,
		Description: "Leave the nearest enclosing loop",
		NeedsLoop:   true,
		New:         func() engine.Command { return &ExitLoop{} },
	})
	reg.Register(engine.Spec{
		Kind:        "next_loop",
		Group:       GroupLoops,
		Description: "Skip to the next pass of the nearest enclosing loop",
		NeedsLoop:   true,
		New:         func() engine.Command { return &NextLoop{} },
	})
}

// BeginLoop repeats its body while a condition holds.
type BeginLoop struct {
	Condition `yaml:",inline"`
}

func (c *BeginLoop) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	return f.Loop(ctx, func(ctx context.Context, _ int) (bool, error) {
		return c.Eval(ctx, f.Instance)
	})
}

func (c *BeginLoop) DisplayText() string {
	return "Loop While " + c.Condition.String()
}

// LoopTimes runs its body a fixed number of times. The count is evaluated
// once, when the loop starts.
type LoopTimes struct {
	// Times is a number or an expression.
	Times any `yaml:"times"`
	// Index optionally receives the current pass number.
	Index string `yaml:"index"`
	Start int    `yaml:"start"`
}

func (c *LoopTimes) Check() error {
	if c.Times == nil {
		return errors.New("times is required")
	}
	if c.Index != "" && !vars.ValidName(c.Index) {
		return fmt.Errorf("%w: %q", vars.ErrInvalidName, c.Index)
	}
	return nil
}

func (c *LoopTimes) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	n, err := number(ctx, f.Instance, c.Times)
	if err != nil {
		return engine.Next, err
	}
	return f.Loop(ctx, func(_ context.Context, i int) (bool, error) {
		if int64(i) >= n {
			return false, nil
		}
		if c.Index != "" {
			return true, f.Instance.Set(c.Index, c.Start+i, true)
		}
		return true, nil
	})
}

func (c *LoopTimes) DisplayText() string {
	return fmt.Sprintf("Loop %v Times", c.Times)
}

// LoopCollection runs its body once per item of a list. The collection is
// read once, when the loop starts.
type LoopCollection struct {
	// Collection is an expression producing a list, or JSON list text.
	Collection string `yaml:"collection" validate:"required"`
	Item       string `yaml:"item"       validate:"required"`
	Index      string `yaml:"index"`
}

func (c *LoopCollection) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	in := f.Instance
	v, err := in.Evaluate(ctx, c.Collection, vars.TypeList)
	if err != nil {
		return engine.Next, err
	}
	var items []any
	if v != nil {
		if items, err = cast.ToSliceE(v); err != nil {
			return engine.Next, &vars.TypeError{Declared: vars.TypeSet{vars.TypeList}, Got: vars.TypeName(v)}
		}
	}
	return f.Loop(ctx, func(_ context.Context, i int) (bool, error) {
		if i >= len(items) {
			return false, nil
		}
		names := []string{c.Item}
		values := map[string]any{c.Item: items[i]}
		if c.Index != "" {
			names = append(names, c.Index)
			values[c.Index] = i
		}
		return true, in.SetAll(names, values, true)
	})
}

func (c *LoopCollection) DisplayText() string {
	return fmt.Sprintf("Loop Each %s in %s", orPlaceholder(c.Item), orPlaceholder(c.Collection))
}

// EndLoop closes a loop block.
type EndLoop struct{ marker }

func (*EndLoop) DisplayText() string { return "End Loop" }

// ExitLoop breaks out of the nearest enclosing loop.
type ExitLoop struct{}

func (*ExitLoop) Execute(context.Context, *engine.Frame) (engine.Signal, error) {
	return engine.Break, nil
}

func (*ExitLoop) DisplayText() string { return "Exit Loop" }

// NextLoop skips to the next pass of the nearest enclosing loop.
type NextLoop struct{}

func (*NextLoop) Execute(context.Context, *engine.Frame) (engine.Signal, error) {
	return engine.Continue, nil
}

func (*NextLoop) DisplayText() string { return "Next Loop" }
