package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

// Condition is the test shared by begin_loop and begin_if. Exactly one of
// its kinds must be set.
type Condition struct {
	// Expression is evaluated as a boolean.
	Expression string `yaml:"condition"`
	// HasValue names a variable; true when it is declared and neither nil
	// nor empty text.
	HasValue string `yaml:"has_value"`
	// IsNumeric is text, usually a placeholder, that must parse as a number.
	IsNumeric string `yaml:"is_numeric"`
	Not       bool   `yaml:"not"`
}

func (c *Condition) Check() error {
	n := 0
	for _, s := range []string{c.Expression, c.HasValue, c.IsNumeric} {
		if s != "" {
			n++
		}
	}
	switch n {
	case 0:
		return errors.New("a condition, has_value or is_numeric is required")
	case 1:
		return nil
	}
	return errors.New("condition, has_value and is_numeric are mutually exclusive")
}

// Eval tests the condition against the instance's current variables.
func (c *Condition) Eval(ctx context.Context, in *engine.Instance) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch {
	case c.Expression != "":
		ok, err = in.EvaluateBool(ctx, c.Expression)
	case c.HasValue != "":
		name := strings.Trim(strings.TrimSpace(c.HasValue), "{}")
		v, rerr := in.Vars.Resolve(name)
		ok = rerr == nil && v != nil && v != ""
	case c.IsNumeric != "":
		var s string
		s, err = in.Interpolate(c.IsNumeric)
		if err == nil {
			_, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
			ok = perr == nil
		}
	}
	if err != nil {
		return false, err
	}
	return ok != c.Not, nil
}

func (c *Condition) String() string {
	var s string
	switch {
	case c.Expression != "":
		s = c.Expression
	case c.HasValue != "":
		s = fmt.Sprintf("%s has value", c.HasValue)
	case c.IsNumeric != "":
		s = fmt.Sprintf("%s is numeric", c.IsNumeric)
	default:
		s = "<no condition>"
	}
	if c.Not {
		return "not (" + s + ")"
	}
	return s
}
