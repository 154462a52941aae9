// Package vars implements the per-run variable and argument store.
//
// The store is flat: one table per engine instance, no block-local
// shadowing. Bindings keep declaration order so snapshots and traces are
// deterministic.
package vars

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound         = errors.New("variable not found")
	ErrAlreadyDeclared  = errors.New("variable already declared")
	ErrIncompatibleType = errors.New("incompatible type")
	ErrInvalidName      = errors.New("invalid variable name")
)

// Direction describes how an argument flows between a caller and a script.
type Direction string

const (
	DirectionIn    Direction = "in"
	DirectionOut   Direction = "out"
	DirectionInOut Direction = "inout"
)

// Binding is one named value in the store.
type Binding struct {
	Name      string
	Type      Type
	Value     any
	Argument  bool
	Direction Direction
}

// TypeError reports a value that does not satisfy a declared type set.
type TypeError struct {
	Name     string
	Declared TypeSet
	Got      string
}

func (e *TypeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("value of type %s is not assignable to %s", e.Got, e.Declared)
	}
	return fmt.Sprintf("variable %q: value of type %s is not assignable to %s", e.Name, e.Got, e.Declared)
}

func (e *TypeError) Unwrap() error { return ErrIncompatibleType }

// Store holds the variables of one engine instance. It is not safe for
// concurrent use; an instance is driven by a single goroutine.
type Store struct {
	order []string
	index map[string]*Binding
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]*Binding)}
}

// Declare adds a variable. The initial value must satisfy the declared type.
func (s *Store) Declare(name string, t Type, value any) error {
	return s.declare(&Binding{Name: name, Type: t, Value: value})
}

// DeclareArgument adds an argument binding with a flow direction.
func (s *Store) DeclareArgument(name string, t Type, dir Direction, value any) error {
	if dir == "" {
		dir = DirectionIn
	}
	return s.declare(&Binding{Name: name, Type: t, Value: value, Argument: true, Direction: dir})
}

func (s *Store) declare(b *Binding) error {
	if !ValidName(b.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, b.Name)
	}
	if _, ok := s.index[b.Name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyDeclared, b.Name)
	}
	if b.Type == "" {
		b.Type = TypeAny
	}
	if !b.Type.Valid() {
		return fmt.Errorf("variable %q: unknown type %q", b.Name, b.Type)
	}
	if !b.Type.Compatible().Accepts(b.Value) {
		return &TypeError{Name: b.Name, Declared: b.Type.Compatible(), Got: TypeName(b.Value)}
	}
	s.index[b.Name] = b
	s.order = append(s.order, b.Name)
	return nil
}

// Resolve returns the current value of a variable.
func (s *Store) Resolve(name string) (any, error) {
	b, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return b.Value, nil
}

// Lookup returns the full binding for a variable.
func (s *Store) Lookup(name string) (Binding, bool) {
	b, ok := s.index[name]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// Has reports whether a variable is declared.
func (s *Store) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Assign replaces the value of a declared variable. The value's runtime type
// must be in the compatibility set of the variable's declared type.
func (s *Store) Assign(name string, value any) error {
	b, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	set := b.Type.Compatible()
	if !set.Accepts(value) {
		return &TypeError{Name: name, Declared: set, Got: TypeName(value)}
	}
	b.Value = value
	return nil
}

// CheckAssign reports the error Assign would return without changing the
// store. With create, an undeclared name only has to be a valid name.
func (s *Store) CheckAssign(name string, value any, create bool) error {
	b, ok := s.index[name]
	if !ok {
		switch {
		case !create:
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		case !ValidName(name):
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		return nil
	}
	if set := b.Type.Compatible(); !set.Accepts(value) {
		return &TypeError{Name: name, Declared: set, Got: TypeName(value)}
	}
	return nil
}

// Delete removes a variable. Deleting an unknown name returns ErrNotFound.
func (s *Store) Delete(name string) error {
	if _, ok := s.index[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(s.index, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Names returns variable names in declaration order.
func (s *Store) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of bindings.
func (s *Store) Len() int { return len(s.order) }

// Snapshot returns a copy of every binding in declaration order.
func (s *Store) Snapshot() []Binding {
	out := make([]Binding, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, *s.index[n])
	}
	return out
}

// Env returns a name → value map view used for expression evaluation.
// The map is a copy; writing to it does not affect the store.
func (s *Store) Env() map[string]any {
	env := make(map[string]any, len(s.order))
	for _, n := range s.order {
		env[n] = s.index[n].Value
	}
	return env
}

// Outputs returns the values of out and inout arguments.
func (s *Store) Outputs() map[string]any {
	out := make(map[string]any)
	for _, n := range s.order {
		b := s.index[n]
		if b.Argument && (b.Direction == DirectionOut || b.Direction == DirectionInOut) {
			out[n] = b.Value
		}
	}
	return out
}

// ValidName reports whether name can be used as a variable name and
// referenced as {name} inside expressions and text.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)
