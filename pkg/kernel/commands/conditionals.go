package commands

import (
	"context"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

const familyIf = "if"

func registerConditionals(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:        "begin_if",
		Group:       GroupIf,
		Description: "Run the body when a condition holds",
		Role:        engine.RoleOpen,
		Family:      familyIf,
		New:         func() engine.Command { return &BeginIf{} },
	})
	reg.Register(engine.Spec{
		Kind:        "else",
		Group:       GroupIf,
		Description: "Steps run when the condition does not hold",
		Role:        engine.RoleDivider,
		Family:      familyIf,
		Once:        true,
		New:         func() engine.Command { return &Else{} },
	})
	reg.Register(engine.Spec{
		Kind:        "end_if",
		Group:       GroupIf,
		Description: "Close a conditional",
		Role:        engine.RoleClose,
		Family:      familyIf,
		New:         func() engine.Command { return &EndIf{} },
	})
}

// BeginIf runs its first arm when the condition holds, else the else arm.
type BeginIf struct {
	Condition `yaml:",inline"`
}

func (c *BeginIf) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	ok, err := c.Eval(ctx, f.Instance)
	if err != nil {
		return engine.Next, err
	}
	if ok {
		return f.RunArm(ctx, 0)
	}
	return f.RunArm(ctx, f.ArmIndex("else"))
}

func (c *BeginIf) DisplayText() string {
	return "If " + c.Condition.String()
}

// Else starts the arm run when the condition does not hold.
type Else struct{ marker }

func (*Else) DisplayText() string { return "Else" }

// EndIf closes a conditional.
type EndIf struct{ marker }

func (*EndIf) DisplayText() string { return "End If" }
