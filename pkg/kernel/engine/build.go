package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

// Node is one step of a built program.
type Node struct {
	Step    script.Step
	Spec    *Spec
	Command Command
	// Arms holds the nested steps of a block opener. The first arm has no
	// marker; every divider starts a new arm.
	Arms []Arm
	// End is the closing marker of a block opener.
	End *Node
}

// Arm is a run of steps inside a block.
type Arm struct {
	Marker *Node
	Body   []*Node
}

// Program is a script whose flat marker list has been turned into a tree.
type Program struct {
	Script *script.Script
	Root   []*Node
}

// Walk visits every node depth-first in document order, markers included.
func (p *Program) Walk(fn func(n *Node)) {
	walkNodes(p.Root, fn)
}

func walkNodes(nodes []*Node, fn func(n *Node)) {
	for _, n := range nodes {
		fn(n)
		for _, a := range n.Arms {
			if a.Marker != nil {
				fn(a.Marker)
			}
			walkNodes(a.Body, fn)
		}
		if n.End != nil {
			fn(n.End)
		}
	}
}

var paramValidator = newParamValidator()

func newParamValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// NewCommand decodes and validates a step's params into a fresh command.
func NewCommand(spec *Spec, step script.Step) (Command, error) {
	cmd := spec.New()
	if err := step.DecodeParams(cmd); err != nil {
		return cmd, err
	}
	if err := paramValidator.Struct(cmd); err != nil {
		return cmd, paramError(err)
	}
	if c, ok := cmd.(Checker); ok {
		if err := c.Check(); err != nil {
			return cmd, err
		}
	}
	return cmd, nil
}

func paramError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msg := fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s: failed %q (%s)", fe.Field(), fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid params: %s", strings.Join(msgs, ", "))
}

type builder struct {
	root  []*Node
	stack []*Node
	errs  BuildErrors
}

// Build decodes every step and nests block markers into a tree. It reports
// every problem it finds, not just the first.
func Build(sc *script.Script, reg *Registry) (*Program, error) {
	b := &builder{}
	for _, step := range sc.Steps {
		spec, ok := reg.Lookup(step.Command)
		if !ok {
			b.fail(step, fmt.Errorf("%w %q", ErrUnknownCommand, step.Command))
			continue
		}
		cmd, err := NewCommand(spec, step)
		if err != nil {
			b.fail(step, err)
		}
		b.add(&Node{Step: step, Spec: spec, Command: cmd})
	}
	for i := len(b.stack) - 1; i >= 0; i-- {
		open := b.stack[i]
		b.fail(open.Step, fmt.Errorf("%w: %s is never closed", ErrUnbalancedBlock, open.Spec.Kind))
	}
	if len(b.errs) > 0 {
		return nil, b.errs
	}
	return &Program{Script: sc, Root: b.root}, nil
}

func (b *builder) fail(step script.Step, err error) {
	b.errs = append(b.errs, &BuildError{Line: step.Line, Command: step.Command, Err: err})
}

func (b *builder) top() *Node {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

func (b *builder) appendBody(n *Node) {
	top := b.top()
	if top == nil {
		b.root = append(b.root, n)
		return
	}
	arm := &top.Arms[len(top.Arms)-1]
	arm.Body = append(arm.Body, n)
}

func (b *builder) inLoop() bool {
	for _, n := range b.stack {
		if n.Spec.Family == "loop" {
			return true
		}
	}
	return false
}

func (b *builder) add(n *Node) {
	spec := n.Spec
	switch spec.Role {
	case RoleLeaf:
		if spec.NeedsLoop && !b.inLoop() {
			b.fail(n.Step, fmt.Errorf("%w: %s outside of a loop", ErrUnbalancedBlock, spec.Kind))
		}
		b.appendBody(n)

	case RoleOpen:
		b.appendBody(n)
		n.Arms = []Arm{{}}
		b.stack = append(b.stack, n)

	case RoleDivider:
		top := b.top()
		if top == nil || top.Spec.Family != spec.Family {
			b.fail(n.Step, fmt.Errorf("%w: %s without a matching opener", ErrUnbalancedBlock, spec.Kind))
			return
		}
		for _, a := range top.Arms {
			if a.Marker == nil {
				continue
			}
			if spec.Once && a.Marker.Spec.Kind == spec.Kind {
				b.fail(n.Step, fmt.Errorf("%w: duplicate %s in %s at line %d", ErrUnbalancedBlock, spec.Kind, top.Spec.Kind, top.Step.Line))
				return
			}
			if a.Marker.Spec.Rank > spec.Rank {
				b.fail(n.Step, fmt.Errorf("%w: %s after %s", ErrUnbalancedBlock, spec.Kind, a.Marker.Spec.Kind))
				return
			}
		}
		top.Arms = append(top.Arms, Arm{Marker: n})

	case RoleClose:
		top := b.top()
		if top == nil || top.Spec.Family != spec.Family {
			b.fail(n.Step, fmt.Errorf("%w: %s without a matching opener", ErrUnbalancedBlock, spec.Kind))
			return
		}
		if top.Spec.HeadlessBody && len(top.Arms[0].Body) > 0 {
			b.fail(top.Arms[0].Body[0].Step, fmt.Errorf("%w: step before the first arm of %s", ErrUnbalancedBlock, top.Spec.Kind))
		}
		top.End = n
		b.stack = b.stack[:len(b.stack)-1]
	}
}
