package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

// journal records which steps ran.
type journal struct{ entries []string }

func (j *journal) String() string { return strings.Join(j.entries, ",") }

type markCmd struct {
	Name string `yaml:"name"`
	j    *journal
}

func (c *markCmd) Execute(context.Context, *Frame) (Signal, error) {
	c.j.entries = append(c.j.entries, c.Name)
	return Next, nil
}

func (c *markCmd) DisplayText() string { return "mark " + c.Name }

// failCmd fails its first Times executions. Times 0 always fails.
type failCmd struct {
	Times int `yaml:"times"`
	calls *int
}

func (c *failCmd) Execute(context.Context, *Frame) (Signal, error) {
	*c.calls++
	if c.Times == 0 || *c.calls <= c.Times {
		return Next, errors.New("boom")
	}
	return Next, nil
}

func (c *failCmd) DisplayText() string { return "fail" }

type signalCmd struct{ sig Signal }

func (c *signalCmd) Execute(_ context.Context, f *Frame) (Signal, error) {
	if c.sig == Cancel {
		f.Instance.Cancel()
	}
	return c.sig, nil
}

func (c *signalCmd) DisplayText() string { return c.sig.String() }

type repeatCmd struct {
	Times int `yaml:"times"`
}

func (c *repeatCmd) Execute(ctx context.Context, f *Frame) (Signal, error) {
	return f.Loop(ctx, func(_ context.Context, i int) (bool, error) {
		return i < c.Times, nil
	})
}

func (c *repeatCmd) DisplayText() string { return "repeat" }

// tallyCmd is a repeat loop that journals every condition evaluation.
type tallyCmd struct {
	Times int `yaml:"times"`
	j     *journal
}

func (c *tallyCmd) Execute(ctx context.Context, f *Frame) (Signal, error) {
	return f.Loop(ctx, func(_ context.Context, i int) (bool, error) {
		c.j.entries = append(c.j.entries, "check")
		return i < c.Times, nil
	})
}

func (c *tallyCmd) DisplayText() string { return "tally" }

type whenCmd struct {
	Cond bool `yaml:"cond"`
}

func (c *whenCmd) Execute(ctx context.Context, f *Frame) (Signal, error) {
	if c.Cond {
		return f.RunArm(ctx, 0)
	}
	return f.RunArm(ctx, f.ArmIndex("otherwise"))
}

func (c *whenCmd) DisplayText() string { return "when" }

type switchCmd struct {
	Value string `yaml:"value" validate:"required"`
}

func (c *switchCmd) ControlValue(_ context.Context, in *Instance) (string, error) {
	return in.Interpolate(c.Value)
}

func (c *switchCmd) Execute(context.Context, *Frame) (Signal, error) {
	return Next, errors.New("switch must be run by the interpreter")
}

func (c *switchCmd) DisplayText() string { return "switch " + c.Value }

type caseCmd struct {
	noop
	Value string `yaml:"value"`
}

func (c *caseCmd) CaseValue(context.Context, *Instance) (string, bool, error) {
	return c.Value, c.Value == "Default", nil
}

type noop struct{}

func (noop) Execute(context.Context, *Frame) (Signal, error) { return Next, nil }
func (noop) DisplayText() string                             { return "noop" }

type fixture struct {
	reg   *Registry
	j     *journal
	calls int
}

func newFixture() *fixture {
	fx := &fixture{reg: NewRegistry(), j: &journal{}}
	r := fx.reg
	r.Register(Spec{Kind: "mark", New: func() Command { return &markCmd{j: fx.j} }})
	r.Register(Spec{Kind: "fail", New: func() Command { return &failCmd{calls: &fx.calls} }})
	r.Register(Spec{Kind: "break", NeedsLoop: true, New: func() Command { return &signalCmd{sig: Break} }})
	r.Register(Spec{Kind: "continue", NeedsLoop: true, New: func() Command { return &signalCmd{sig: Continue} }})
	r.Register(Spec{Kind: "stop", New: func() Command { return &signalCmd{sig: Cancel} }})
	r.Register(Spec{Kind: "repeat", Role: RoleOpen, Family: "loop", New: func() Command { return &repeatCmd{} }})
	r.Register(Spec{Kind: "end_repeat", Role: RoleClose, Family: "loop", New: func() Command { return noop{} }})
	r.Register(Spec{Kind: "tally", Role: RoleOpen, Family: "loop", New: func() Command { return &tallyCmd{j: fx.j} }})
	r.Register(Spec{Kind: "end_tally", Role: RoleClose, Family: "loop", New: func() Command { return noop{} }})
	r.Register(Spec{Kind: "when", Role: RoleOpen, Family: "when", New: func() Command { return &whenCmd{} }})
	r.Register(Spec{Kind: "otherwise", Role: RoleDivider, Family: "when", Once: true, New: func() Command { return noop{} }})
	r.Register(Spec{Kind: "end_when", Role: RoleClose, Family: "when", New: func() Command { return noop{} }})
	r.Register(Spec{Kind: "switch", Role: RoleOpen, Family: "switch", HeadlessBody: true, New: func() Command { return &switchCmd{} }})
	r.Register(Spec{Kind: "on", Role: RoleDivider, Family: "switch", New: func() Command { return &caseCmd{} }})
	r.Register(Spec{Kind: "end_switch", Role: RoleClose, Family: "switch", New: func() Command { return noop{} }})
	r.Register(Spec{Kind: "guard", Role: RoleOpen, Family: "guard", New: func() Command { return noop{} }})
	r.Register(Spec{Kind: "first", Role: RoleDivider, Family: "guard", Rank: 1, New: func() Command { return noop{} }})
	r.Register(Spec{Kind: "second", Role: RoleDivider, Family: "guard", Rank: 2, New: func() Command { return noop{} }})
	r.Register(Spec{Kind: "end_guard", Role: RoleClose, Family: "guard", New: func() Command { return noop{} }})
	return fx
}

func mark(name string) script.Step { return script.S("mark", "name", name) }
