package engine

import (
	"context"
	"fmt"
	"sort"
)

// Command is one script action. Implementations are plain structs whose
// exported fields are decoded from the step's params.
type Command interface {
	// Execute runs the command. Block commands drive their own nested arms
	// through the frame.
	Execute(ctx context.Context, f *Frame) (Signal, error)
	// DisplayText summarizes the command on one line. It must not fail for
	// any field state.
	DisplayText() string
}

// Checker is implemented by commands with constraints the struct tags
// cannot express.
type Checker interface {
	Check() error
}

// Switcher is implemented by switch openers. The interpreter evaluates the
// control value and selects the arm; the command never runs its arms.
type Switcher interface {
	ControlValue(ctx context.Context, in *Instance) (string, error)
}

// CaseMarker is implemented by switch arm markers.
type CaseMarker interface {
	// CaseValue returns the value compared with the control value, or
	// isDefault for the Default sentinel.
	CaseValue(ctx context.Context, in *Instance) (value string, isDefault bool, err error)
}

// SnippetKind says how a snippet is evaluated at run time.
type SnippetKind int

const (
	// SnippetValue is compiled unless auto-calculate is off.
	SnippetValue SnippetKind = iota
	// SnippetCondition is always compiled.
	SnippetCondition
	// SnippetText only has its placeholders substituted.
	SnippetText
)

// Snippet is one piece of text a command evaluates.
type Snippet struct {
	Kind SnippetKind
	Text string
}

// Referrer is implemented by commands that evaluate expressions or text,
// so a script can be checked before it runs.
type Referrer interface {
	Snippets() []Snippet
}

// Declarer is implemented by commands that create variables.
type Declarer interface {
	Declares() []string
}

// Role is a command's place in block structure.
type Role int

const (
	RoleLeaf Role = iota
	RoleOpen
	RoleDivider
	RoleClose
)

func (r Role) String() string {
	switch r {
	case RoleOpen:
		return "open"
	case RoleDivider:
		return "divider"
	case RoleClose:
		return "close"
	}
	return "leaf"
}

// Spec describes a registered command kind.
type Spec struct {
	Kind        string
	Group       string
	Description string
	Role        Role
	// Family ties openers, dividers and closers of one block construct
	// together ("loop", "if", "switch", "try").
	Family string
	// Rank orders dividers within a block; a divider may not follow one of
	// higher rank.
	Rank int
	// Once limits a divider to a single occurrence per block.
	Once bool
	// HeadlessBody requires an opener's first arm to be empty (switch).
	HeadlessBody bool
	// NeedsLoop marks break/continue commands, valid only inside a loop.
	NeedsLoop bool
	New       func() Command
}

// Registry maps command kinds to their specs.
type Registry struct {
	specs map[string]*Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a command kind. Registering a kind twice panics.
func (r *Registry) Register(s Spec) {
	if s.Kind == "" || s.New == nil {
		panic("engine: register command with empty kind or factory")
	}
	if _, dup := r.specs[s.Kind]; dup {
		panic(fmt.Sprintf("engine: command %q registered twice", s.Kind))
	}
	if s.Role != RoleLeaf && s.Family == "" {
		panic(fmt.Sprintf("engine: block command %q has no family", s.Kind))
	}
	spec := s
	r.specs[s.Kind] = &spec
}

// Lookup returns the spec for a kind.
func (r *Registry) Lookup(kind string) (*Spec, bool) {
	s, ok := r.specs[kind]
	return s, ok
}

// Specs lists every registered command sorted by group, then kind.
func (r *Registry) Specs() []*Spec {
	out := make([]*Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Frame is what a command sees while it executes.
type Frame struct {
	Instance *Instance
	Node     *Node
	interp   *Interpreter
}

// Line is the source line of the executing step.
func (f *Frame) Line() int { return f.Node.Step.Line }

// Interpreter returns the interpreter running the frame, for commands that
// start nested runs.
func (f *Frame) Interpreter() *Interpreter { return f.interp }

// Arms returns the nested arms of a block command.
func (f *Frame) Arms() []Arm { return f.Node.Arms }

// ArmIndex returns the index of the first arm opened by a divider of the
// given kind, or -1.
func (f *Frame) ArmIndex(kind string) int {
	for i, a := range f.Node.Arms {
		if a.Marker != nil && a.Marker.Spec.Kind == kind {
			return i
		}
	}
	return -1
}

// RunArm executes the steps of arm i and returns the signal that stopped
// them.
func (f *Frame) RunArm(ctx context.Context, i int) (Signal, error) {
	if i < 0 || i >= len(f.Node.Arms) {
		return Next, nil
	}
	arm := f.Node.Arms[i]
	if f.Node.Spec.Family != "loop" {
		label := f.Node.Spec.Kind
		if arm.Marker != nil {
			label = arm.Marker.Spec.Kind
		}
		_ = f.Instance.Trace.EmitBranchEnter(f.Line(), label)
	}
	return f.interp.RunNodes(ctx, arm.Body, f.Instance)
}
