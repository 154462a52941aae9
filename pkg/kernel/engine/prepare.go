package engine

import (
	"fmt"
	"sort"

	"github.com/rpaflow/rpaflow/pkg/kernel/script"
	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

// Prepare declares a script's variables and arguments on in.
//
// Argument values are resolved in order:
//  1. args supplied by the caller (CLI flags or a parent task), for in
//     and inout arguments
//  2. the value declared in the script
//  3. unset (nil)
//
// Supplied values are coerced to the declared type, so callers may pass
// text. Supplying a value for an unknown or out-only argument is an error.
func Prepare(in *Instance, sc *script.Script, args map[string]any) error {
	for _, v := range sc.Meta.Variables {
		t := vars.Type(v.Type)
		value, err := coerceDeclared(v.Name, t, v.Value)
		if err != nil {
			return err
		}
		if err := in.Vars.Declare(v.Name, t, value); err != nil {
			return fmt.Errorf("declare variable: %w", err)
		}
	}

	known := make(map[string]bool, len(sc.Meta.Arguments))
	for _, a := range sc.Meta.Arguments {
		known[a.Name] = true
		dir := vars.Direction(a.Direction)
		if dir == "" {
			dir = vars.DirectionIn
		}
		t := vars.Type(a.Type)

		value := a.Value
		if supplied, ok := args[a.Name]; ok {
			if dir == vars.DirectionOut {
				return fmt.Errorf("argument %q is output-only", a.Name)
			}
			value = supplied
		}
		value, err := coerceDeclared(a.Name, t, value)
		if err != nil {
			return err
		}
		if err := in.Vars.DeclareArgument(a.Name, t, dir, value); err != nil {
			return fmt.Errorf("declare argument: %w", err)
		}
	}

	var unknown []string
	for name := range args {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown arguments: %v", unknown)
	}
	return nil
}

func coerceDeclared(name string, t vars.Type, v any) (any, error) {
	if t == "" {
		t = vars.TypeAny
	}
	if !t.Valid() || t.Compatible().Accepts(v) {
		return v, nil
	}
	out, err := vars.Coerce(v, t)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	return out, nil
}
