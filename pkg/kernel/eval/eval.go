// Package eval evaluates short expressions against a run's variables.
//
// Snippets are expr-lang expressions. A variable is referenced either by
// bare identifier or by the placeholder form {name}; placeholders are bound
// to the live value rather than spliced in as text, except inside quoted
// string literals where the value's text form is substituted.
package eval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/types"
	"github.com/expr-lang/expr/vm"

	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

// DefaultCacheSize bounds the number of compiled programs kept per evaluator.
const DefaultCacheSize = 512

// Options control a single evaluation.
type Options struct {
	// Target is the expected result type. TypeAny (or empty) leaves the
	// result as produced.
	Target vars.Type
	// Raw skips compilation: placeholders are interpolated and the text is
	// returned, converted to Target.
	Raw bool
}

// Evaluator compiles and runs snippets. It is safe for concurrent use; the
// program cache is shared by every engine instance that holds it.
type Evaluator struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
	order    []string
	max      int
}

// New creates an evaluator whose cache holds at most size programs.
func New(size int) *Evaluator {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Evaluator{
		programs: make(map[string]*vm.Program),
		max:      size,
	}
}

// Evaluate runs snippet against env and converts the result to opts.Target.
// env is never modified.
func (e *Evaluator) Evaluate(ctx context.Context, snippet string, env map[string]any, opts Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Raw {
		text, err := Interpolate(snippet, env)
		if err != nil {
			return nil, err
		}
		return convert(text, opts.Target)
	}

	src, refs, err := rewrite(snippet, env)
	if err != nil {
		return nil, err
	}
	runEnv := bindEnv(env, refs)

	program, err := e.compile(snippet, src, runEnv)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := expr.Run(program, runEnv)
	if err != nil {
		return nil, &RuntimeError{Snippet: snippet, Err: err}
	}
	return convert(out, opts.Target)
}

// EvaluateBool evaluates a condition. The result must be a bool or a value
// that converts cleanly to one.
func (e *Evaluator) EvaluateBool(ctx context.Context, snippet string, env map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, snippet, env, Options{Target: vars.TypeBool})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, &RuntimeError{Snippet: snippet, Err: fmt.Errorf("condition produced %T", out)}
	}
	return b, nil
}

// Check compiles snippet without running it. Names lists the variables that
// will be declared at run time; references to anything else are reported as
// unresolved. Values are unknown here, so every name is typed any and only
// syntax and name resolution are checked.
func Check(snippet string, names []string) error {
	env := make(map[string]any, len(names))
	for _, n := range names {
		env[n] = nil
	}
	src, refs, err := rewrite(snippet, env)
	if err != nil {
		return err
	}
	typed, _ := signature(src, bindEnv(env, refs))
	_, err = compileProgram(snippet, src, typed)
	return err
}

func (e *Evaluator) compile(snippet, src string, env map[string]any) (*vm.Program, error) {
	typed, key := signature(src, env)

	e.mu.Lock()
	p, ok := e.programs[key]
	e.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := compileProgram(snippet, src, typed)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.programs[key]; !ok {
		if len(e.order) >= e.max {
			delete(e.programs, e.order[0])
			e.order = e.order[1:]
		}
		e.programs[key] = p
		e.order = append(e.order, key)
	}
	return p, nil
}

func compileProgram(snippet, src string, env types.Map) (*vm.Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Snippet: snippet, Diagnostic: "empty expression"}
	}
	p, err := expr.Compile(src, expr.Env(env))
	if err == nil {
		return p, nil
	}
	var fe *file.Error
	if errors.As(err, &fe) && strings.HasPrefix(fe.Message, "unknown name ") {
		return nil, &UnresolvedError{Name: strings.TrimPrefix(fe.Message, "unknown name ")}
	}
	return nil, &SyntaxError{Snippet: snippet, Diagnostic: err.Error()}
}

// bindEnv merges identifier-safe variables with the placeholder bindings.
func bindEnv(env map[string]any, refs map[string]any) map[string]any {
	out := make(map[string]any, len(env)+len(refs))
	for k, v := range env {
		if isIdent(k) {
			out[k] = v
		}
	}
	for k, v := range refs {
		out[k] = v
	}
	return out
}

// signature types the variables src mentions and derives the cache key from
// them: expr type-checks against these types, so a program is reusable for
// any env that agrees on them. Unset variables are typed any, which defers
// nil handling to run time instead of rejecting every operator at compile
// time.
func signature(src string, env map[string]any) (types.Map, string) {
	names := identifiers(src)
	typed := make(types.Map, len(names))

	var b strings.Builder
	b.WriteString(src)
	for _, n := range names {
		v, ok := env[n]
		if !ok {
			continue
		}
		var t types.Type = types.Any
		if v != nil {
			t = types.TypeOf(v)
		}
		typed[n] = t
		b.WriteByte(0)
		b.WriteString(n)
		b.WriteByte(':')
		b.WriteString(t.String())
	}
	return typed, b.String()
}

func convert(value any, target vars.Type) (any, error) {
	if target == "" || target == vars.TypeAny {
		return value, nil
	}
	if vars.KindOf(value) == target {
		return value, nil
	}
	return vars.Coerce(value, target)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
