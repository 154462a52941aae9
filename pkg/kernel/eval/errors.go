package eval

import (
	"errors"
	"fmt"
)

var (
	ErrSyntax     = errors.New("expression syntax error")
	ErrUnresolved = errors.New("unresolved variable reference")
	ErrRuntime    = errors.New("expression runtime error")
)

// SyntaxError is a malformed snippet. Diagnostic carries the compiler's
// message, including the position marker.
type SyntaxError struct {
	Snippet    string
	Diagnostic string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("compile %q: %s", e.Snippet, e.Diagnostic)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// UnresolvedError names a reference with no bound variable.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved reference {%s}", e.Name)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// RuntimeError wraps a failure raised while running a compiled snippet.
type RuntimeError struct {
	Snippet string
	Err     error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("eval %q: %v", e.Snippet, e.Err)
}

func (e *RuntimeError) Unwrap() []error { return []error{ErrRuntime, e.Err} }
