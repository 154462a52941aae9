package commands

import (
	"context"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

// RunStarlark executes a Starlark program. Inputs are predeclared from
// variables of the same name; Outputs are read back from the program's
// globals and assigned, creating variables as needed.
type RunStarlark struct {
	Source  string   `yaml:"source"  validate:"required"`
	Inputs  []string `yaml:"inputs"  validate:"dive,required"`
	Outputs []string `yaml:"outputs" validate:"dive,required"`
}

func (c *RunStarlark) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	in := f.Instance
	predeclared := starlark.StringDict{"struct": starlarkstruct.Default}
	for _, name := range c.Inputs {
		v, err := in.Vars.Resolve(name)
		if err != nil {
			return engine.Next, err
		}
		sv, err := toStarlark(v)
		if err != nil {
			return engine.Next, fmt.Errorf("input %s: %w", name, err)
		}
		predeclared[name] = sv
	}

	thread := &starlark.Thread{
		Name: fmt.Sprintf("line %d", f.Line()),
		Print: func(_ *starlark.Thread, msg string) {
			in.Report(msg)
		},
	}
	stop := context.AfterFunc(ctx, func() { thread.Cancel("context cancelled") })
	defer stop()

	globals, err := starlark.ExecFile(thread, fmt.Sprintf("line%d.star", f.Line()), c.Source, predeclared)
	if err != nil {
		return engine.Next, fmt.Errorf("starlark: %w", err)
	}

	// Convert everything before assigning anything, so a failure leaves
	// the variables untouched.
	out := make(map[string]any, len(c.Outputs))
	for _, name := range c.Outputs {
		sv, ok := globals[name]
		if !ok {
			return engine.Next, fmt.Errorf("starlark: output %q not set", name)
		}
		v, err := fromStarlark(sv)
		if err != nil {
			return engine.Next, fmt.Errorf("output %s: %w", name, err)
		}
		out[name] = v
	}
	return engine.Next, in.SetAll(c.Outputs, out, true)
}

func (c *RunStarlark) DisplayText() string {
	return fmt.Sprintf("Run Starlark (%d in, %d out)", len(c.Inputs), len(c.Outputs))
}

func toStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []any:
		list := make([]starlark.Value, len(x))
		for i, item := range x {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(x))
		for _, k := range keys {
			sv, err := toStarlark(x[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func fromStarlark(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", x)
		}
		return i, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	case *starlark.List:
		return fromIterable(x, x.Len())
	case starlark.Tuple:
		return fromIterable(x, x.Len())
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", item[0].Type())
			}
			val, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(k)] = val
		}
		return out, nil
	case *starlarkstruct.Struct:
		out := make(map[string]any)
		for _, name := range x.AttrNames() {
			attr, err := x.Attr(name)
			if err != nil {
				return nil, err
			}
			val, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			out[name] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported starlark type %s", v.Type())
}

func fromIterable(it starlark.Indexable, n int) ([]any, error) {
	out := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := fromStarlark(it.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
