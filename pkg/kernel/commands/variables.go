package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

func registerVariables(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:        "create_variable",
		Group:       GroupVariables,
		Description: "Declare a variable with a type and an initial value",
		New:         func() engine.Command { return &CreateVariable{} },
	})
	reg.Register(engine.Spec{
		Kind:        "set_variable",
		Group:       GroupVariables,
		Description: "Assign a literal value or the result of an expression",
		New:         func() engine.Command { return &SetVariable{} },
	})
	reg.Register(engine.Spec{
		Kind:        "delete_variable",
		Group:       GroupVariables,
		Description: "Remove a variable",
		New:         func() engine.Command { return &DeleteVariable{} },
	})
	reg.Register(engine.Spec{
		Kind:        "set_preference",
		Group:       GroupVariables,
		Description: "Turn expression evaluation on or off",
		New:         func() engine.Command { return &SetPreference{} },
	})
}

// resolveValue computes the value of a value-or-expression pair, converted
// to the declared type.
func resolveValue(ctx context.Context, in *engine.Instance, value any, expression string, t vars.Type) (any, error) {
	if expression != "" {
		return in.Evaluate(ctx, expression, t)
	}
	if s, ok := value.(string); ok {
		text, err := in.Interpolate(s)
		if err != nil {
			return nil, err
		}
		value = text
	}
	if t == "" || t == vars.TypeAny || t.Compatible().Accepts(value) {
		return value, nil
	}
	return vars.Coerce(value, t)
}

// CreateVariable declares a variable.
type CreateVariable struct {
	Name       string `yaml:"name"       validate:"required"`
	Type       string `yaml:"type"       validate:"omitempty,oneof=any string number bool list map"`
	Value      any    `yaml:"value"`
	Expression string `yaml:"expression"`
	// IfExists is error (default), ignore or replace.
	IfExists string `yaml:"if_exists" validate:"omitempty,oneof=error ignore replace"`
}

func (c *CreateVariable) Check() error {
	if !vars.ValidName(c.Name) {
		return fmt.Errorf("%w: %q", vars.ErrInvalidName, c.Name)
	}
	if c.Value != nil && c.Expression != "" {
		return errors.New("value and expression are mutually exclusive")
	}
	return nil
}

func (c *CreateVariable) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	in := f.Instance
	t := vars.Type(c.Type)
	if t == "" {
		t = vars.TypeAny
	}
	exists := in.Vars.Has(c.Name)
	if exists && c.IfExists == "ignore" {
		return engine.Next, nil
	}
	v, err := resolveValue(ctx, in, c.Value, c.Expression, t)
	if err != nil {
		return engine.Next, err
	}
	if exists && c.IfExists == "replace" {
		if err := in.Vars.Delete(c.Name); err != nil {
			return engine.Next, err
		}
	}
	return engine.Next, in.Vars.Declare(c.Name, t, v)
}

func (c *CreateVariable) DisplayText() string {
	t := c.Type
	if t == "" {
		t = "any"
	}
	return fmt.Sprintf("Create Variable %s (%s)", orPlaceholder(c.Name), t)
}

// SetVariable assigns a variable from a literal or an expression.
type SetVariable struct {
	Name       string `yaml:"name"       validate:"required"`
	Value      any    `yaml:"value"`
	Expression string `yaml:"expression"`
	// CreateMissing declares the variable with type any when unknown.
	CreateMissing bool `yaml:"create_missing"`
}

func (c *SetVariable) Check() error {
	switch {
	case c.Value == nil && c.Expression == "":
		return errors.New("one of value or expression is required")
	case c.Value != nil && c.Expression != "":
		return errors.New("value and expression are mutually exclusive")
	}
	return nil
}

func (c *SetVariable) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	in := f.Instance
	t := vars.TypeAny
	if b, ok := in.Vars.Lookup(c.Name); ok {
		t = b.Type
	} else if !c.CreateMissing {
		return engine.Next, fmt.Errorf("%w: %q", vars.ErrNotFound, c.Name)
	}
	v, err := resolveValue(ctx, in, c.Value, c.Expression, t)
	if err != nil {
		return engine.Next, err
	}
	return engine.Next, in.Set(c.Name, v, c.CreateMissing)
}

func (c *SetVariable) DisplayText() string {
	src := c.Expression
	if src == "" {
		src = fmt.Sprint(c.Value)
	}
	return fmt.Sprintf("Set %s = %s", orPlaceholder(c.Name), orPlaceholder(src))
}

// DeleteVariable removes a variable.
type DeleteVariable struct {
	Name string `yaml:"name" validate:"required"`
}

func (c *DeleteVariable) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	return engine.Next, f.Instance.Vars.Delete(c.Name)
}

func (c *DeleteVariable) DisplayText() string {
	return "Delete Variable " + orPlaceholder(c.Name)
}

// SetPreference changes engine preferences for the rest of the run.
type SetPreference struct {
	AutoCalculate *bool `yaml:"auto_calculate" validate:"required"`
}

func (c *SetPreference) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	f.Instance.SetAutoCalculate(*c.AutoCalculate)
	return engine.Next, nil
}

func (c *SetPreference) DisplayText() string {
	if c.AutoCalculate == nil {
		return "Set Preference auto_calculate"
	}
	return fmt.Sprintf("Set Preference auto_calculate = %t", *c.AutoCalculate)
}
