package commands

import (
	"context"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

const familySwitch = "switch"

// DefaultCase is the case value that matches when no other case does.
const DefaultCase = "Default"

func registerSwitch(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:         "begin_switch",
		Group:        GroupSwitch,
		Description:  "Run the first case equal to a value",
		Role:         engine.RoleOpen,
		Family:       familySwitch,
		HeadlessBody: true,
		New:          func() engine.Command { return &BeginSwitch{} },
	})
	reg.Register(engine.Spec{
		Kind:        "case",
		Group:       GroupSwitch,
		Description: "Start the steps for one switch value, or Default",
		Role:        engine.RoleDivider,
		Family:      familySwitch,
		New:         func() engine.Command { return &Case{} },
	})
	reg.Register(engine.Spec{
		Kind:        "end_switch",
		Group:       GroupSwitch,
		Description: "Close a switch",
		Role:        engine.RoleClose,
		Family:      familySwitch,
		New:         func() engine.Command { return &EndSwitch{} },
	})
}

// BeginSwitch provides the control value; the interpreter selects the arm.
type BeginSwitch struct {
	Value string `yaml:"value" validate:"required"`
}

func (c *BeginSwitch) ControlValue(_ context.Context, in *engine.Instance) (string, error) {
	return in.Interpolate(c.Value)
}

// Execute is never reached: the interpreter handles Switcher openers.
func (c *BeginSwitch) Execute(context.Context, *engine.Frame) (engine.Signal, error) {
	return engine.Next, nil
}

func (c *BeginSwitch) DisplayText() string {
	return "Switch on " + quote(c.Value)
}

// Case marks the arm for one value of the enclosing switch.
type Case struct {
	marker
	Value string `yaml:"value" validate:"required"`
}

func (c *Case) CaseValue(_ context.Context, in *engine.Instance) (string, bool, error) {
	if strings.EqualFold(strings.TrimSpace(c.Value), DefaultCase) {
		return "", true, nil
	}
	v, err := in.Interpolate(c.Value)
	return v, false, err
}

func (c *Case) DisplayText() string {
	return "Case " + quote(c.Value)
}

// EndSwitch closes a switch.
type EndSwitch struct{ marker }

func (*EndSwitch) DisplayText() string { return "End Switch" }
