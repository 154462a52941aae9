package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

const familyTry = "try"

func registerErrors(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:        "begin_try",
		Group:       GroupErrors,
		Description: "Run steps and handle their failure",
		Role:        engine.RoleOpen,
		Family:      familyTry,
		New:         func() engine.Command { return &BeginTry{} },
	})
	reg.Register(engine.Spec{
		Kind:        "catch",
		Group:       GroupErrors,
		Description: "Steps run when the try body fails",
		Role:        engine.RoleDivider,
		Family:      familyTry,
		Rank:        1,
		Once:        true,
		New:         func() engine.Command { return &Catch{} },
	})
	reg.Register(engine.Spec{
		Kind:        "finally",
		Group:       GroupErrors,
		Description: "Steps that always run after the try body",
		Role:        engine.RoleDivider,
		Family:      familyTry,
		Rank:        2,
		Once:        true,
		New:         func() engine.Command { return &Finally{} },
	})
	reg.Register(engine.Spec{
		Kind:        "end_try",
		Group:       GroupErrors,
		Description: "Close a try block",
		Role:        engine.RoleClose,
		Family:      familyTry,
		New:         func() engine.Command { return &EndTry{} },
	})
	reg.Register(engine.Spec{
		Kind:        "throw_error",
		Group:       GroupErrors,
		Description: "Fail the step with a message",
		New:         func() engine.Command { return &ThrowError{} },
	})
}

// BeginTry runs its body; on failure it runs the catch arm, and the
// finally arm runs in every case. Signals pass through untouched.
type BeginTry struct{}

func (c *BeginTry) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	sig, err := f.RunArm(ctx, 0)

	if err != nil {
		if ci := f.ArmIndex("catch"); ci >= 0 {
			catch, _ := f.Arms()[ci].Marker.Command.(*Catch)
			if serr := catch.bind(f.Instance, err); serr != nil {
				return engine.Next, serr
			}
			sig, err = f.RunArm(ctx, ci)
		}
	}

	if fi := f.ArmIndex("finally"); fi >= 0 {
		fsig, ferr := f.RunArm(ctx, fi)
		if ferr != nil {
			return fsig, ferr
		}
		if fsig != engine.Next {
			return fsig, nil
		}
	}
	return sig, err
}

func (*BeginTry) DisplayText() string { return "Try" }

// Catch starts the arm run when the try body fails.
type Catch struct {
	marker
	// ErrorVariable receives the error message.
	ErrorVariable string `yaml:"error_variable"`
	// LineVariable receives the line of the failing step.
	LineVariable string `yaml:"line_variable"`
}

func (c *Catch) bind(in *engine.Instance, err error) error {
	if c == nil {
		return nil
	}
	msg, line := err.Error(), 0
	var se *engine.StepError
	if errors.As(err, &se) {
		msg, line = se.Err.Error(), se.Line
	}
	if c.ErrorVariable != "" {
		if err := in.Set(c.ErrorVariable, msg, true); err != nil {
			return err
		}
	}
	if c.LineVariable != "" {
		return in.Set(c.LineVariable, line, true)
	}
	return nil
}

func (c *Catch) DisplayText() string {
	if c.ErrorVariable == "" {
		return "Catch"
	}
	return "Catch into " + c.ErrorVariable
}

// Finally starts the arm that always runs.
type Finally struct{ marker }

func (*Finally) DisplayText() string { return "Finally" }

// EndTry closes a try block.
type EndTry struct{ marker }

func (*EndTry) DisplayText() string { return "End Try" }

// ThrowError fails with a user-supplied message.
type ThrowError struct {
	Message string `yaml:"message" validate:"required"`
}

func (c *ThrowError) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	msg, err := f.Instance.Interpolate(c.Message)
	if err != nil {
		return engine.Next, err
	}
	return engine.Next, &engine.ThrownError{Message: msg}
}

func (c *ThrowError) DisplayText() string {
	return fmt.Sprintf("Throw Error %s", quote(c.Message))
}
