package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/kernel/eval"
	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrUnbalancedBlock = errors.New("unbalanced block")
	ErrNoAppInstance   = errors.New("app instance not found")
)

// StepError locates a failure at a step of the script.
type StepError struct {
	Line    int
	Command string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.Command, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ThrownError is raised by throw_error and other user-defined failures.
type ThrownError struct {
	Message string
}

func (e *ThrownError) Error() string { return e.Message }

// BuildError is one problem found while building a program.
type BuildError struct {
	Line    int
	Command string
	Err     error
}

func (e *BuildError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.Command, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// BuildErrors collects every problem found while building a program.
type BuildErrors []*BuildError

func (es BuildErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (es BuildErrors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// FailureKind classifies an error for traces and run history.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, eval.ErrSyntax):
		return "syntax"
	case errors.Is(err, eval.ErrUnresolved), errors.Is(err, vars.ErrNotFound):
		return "unresolved"
	case errors.Is(err, vars.ErrIncompatibleType):
		return "type"
	case errors.Is(err, eval.ErrRuntime):
		return "runtime"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	var te *ThrownError
	if errors.As(err, &te) {
		return "thrown"
	}
	return "external"
}
