// Package commands registers the built-in rpaflow commands.
package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

// Command groups, as listed by `rpaflow commands`.
const (
	GroupVariables = "Variables"
	GroupLoops     = "Loops"
	GroupIf        = "Conditionals"
	GroupSwitch    = "Switch"
	GroupErrors    = "Error Handling"
	GroupFlow      = "Flow"
	GroupData      = "Data"
	GroupFiles     = "Files"
	GroupScripting = "Scripting"
)

// NewRegistry returns a registry holding every built-in command.
func NewRegistry() *engine.Registry {
	reg := engine.NewRegistry()
	Register(reg)
	return reg
}

// Register adds the built-in commands to reg.
func Register(reg *engine.Registry) {
	registerVariables(reg)
	registerLoops(reg)
	registerConditionals(reg)
	registerSwitch(reg)
	registerErrors(reg)
	registerFlow(reg)
	registerData(reg)
	registerFiles(reg)
	registerScripting(reg)
}

// marker is embedded by block dividers and closers. The interpreter never
// runs markers as steps; they only delimit arms.
type marker struct{}

func (marker) Execute(context.Context, *engine.Frame) (engine.Signal, error) {
	return engine.Next, nil
}

// number resolves a param that is either a literal number or an expression.
func number(ctx context.Context, in *engine.Instance, v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case string:
		out, err := in.Evaluate(ctx, x, vars.TypeNumber)
		if err != nil {
			return 0, err
		}
		v = out
	}
	n, err := vars.Coerce(v, vars.TypeNumber)
	if err != nil {
		return 0, err
	}
	switch x := n.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case int:
		return int64(x), nil
	}
	return 0, &vars.TypeError{Declared: vars.TypeSet{vars.TypeNumber}, Got: vars.TypeName(n)}
}

// path resolves a file path relative to the instance's base directory.
func path(in *engine.Instance, p string) (string, error) {
	p, err := in.Interpolate(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) && in.BaseDir != "" {
		p = filepath.Join(in.BaseDir, p)
	}
	return p, nil
}

// orPlaceholder keeps display texts readable when a field is empty.
func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "<empty>"
	}
	return s
}

func quote(s string) string {
	return fmt.Sprintf("'%s'", orPlaceholder(s))
}
