package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpaflow/rpaflow/pkg/kernel/eval"
	"github.com/rpaflow/rpaflow/pkg/kernel/trace"
	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

// ProgressFunc receives progress messages reported by commands.
type ProgressFunc func(message string)

// ReportedError is a step failure recorded under the report policy.
type ReportedError struct {
	Line    int    `json:"line"`
	Command string `json:"command"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// InstanceConfig configures an engine instance.
type InstanceConfig struct {
	RunID string
	// RawMode starts the instance with auto-calculate off.
	RawMode   bool
	Evaluator *eval.Evaluator
	Logger    zerolog.Logger
	Trace     *trace.Writer
	Progress  ProgressFunc
	// BaseDir resolves relative paths used by file and sub-task commands.
	BaseDir string
	// Parent links a sub-task instance to its caller; cancelling the parent
	// cancels the child.
	Parent *Instance
}

// Instance is the execution context of one running script. It is driven by
// a single goroutine; only Cancel may be called from elsewhere.
type Instance struct {
	ID      string
	Vars    *vars.Store
	Logger  zerolog.Logger
	Trace   *trace.Writer
	BaseDir string

	evaluator *eval.Evaluator
	parent    *Instance
	progress  ProgressFunc
	cancelled atomic.Bool
	autoCalc  bool
	apps      map[string]any
	reported  []ReportedError
}

// NewInstance creates an engine instance with an empty variable store.
func NewInstance(cfg InstanceConfig) *Instance {
	id := cfg.RunID
	if id == "" {
		id = uuid.New().String()
	}
	ev := cfg.Evaluator
	if ev == nil {
		ev = eval.New(0)
	}
	return &Instance{
		ID:        id,
		Vars:      vars.NewStore(),
		Logger:    cfg.Logger.With().Str("run_id", id).Logger(),
		Trace:     cfg.Trace,
		BaseDir:   cfg.BaseDir,
		evaluator: ev,
		parent:    cfg.Parent,
		progress:  cfg.Progress,
		autoCalc:  !cfg.RawMode,
		apps:      make(map[string]any),
	}
}

// Cancel requests cooperative cancellation. It is safe to call from any
// goroutine.
func (in *Instance) Cancel() { in.cancelled.Store(true) }

// IsCancellationPending reports whether Cancel was called on this instance
// or on its parent.
func (in *Instance) IsCancellationPending() bool {
	return in.cancelled.Load() || (in.parent != nil && in.parent.IsCancellationPending())
}

// AutoCalculate reports whether expressions are evaluated.
func (in *Instance) AutoCalculate() bool { return in.autoCalc }

// SetAutoCalculate turns expression evaluation on or off.
func (in *Instance) SetAutoCalculate(on bool) { in.autoCalc = on }

// Evaluator returns the evaluator shared by this instance.
func (in *Instance) Evaluator() *eval.Evaluator { return in.evaluator }

// Report sends a progress message. Sub-task instances without their own
// reporter forward to the parent.
func (in *Instance) Report(message string) {
	in.Logger.Info().Msg(message)
	_ = in.Trace.Emit(trace.EventProgress, map[string]any{"message": message})
	switch {
	case in.progress != nil:
		in.progress(message)
	case in.parent != nil:
		in.parent.Report(message)
	}
}

// Evaluate runs a snippet against the current variables. With
// auto-calculate off the snippet is interpolated and converted to target
// without being compiled.
func (in *Instance) Evaluate(ctx context.Context, snippet string, target vars.Type) (any, error) {
	return in.evaluator.Evaluate(ctx, snippet, in.Vars.Env(), eval.Options{
		Target: target,
		Raw:    !in.autoCalc,
	})
}

// EvaluateBool evaluates a condition. Conditions are always compiled,
// whatever the auto-calculate preference.
func (in *Instance) EvaluateBool(ctx context.Context, snippet string) (bool, error) {
	return in.evaluator.EvaluateBool(ctx, snippet, in.Vars.Env())
}

// Interpolate substitutes {name} placeholders in free text.
func (in *Instance) Interpolate(text string) (string, error) {
	return eval.Interpolate(text, in.Vars.Env())
}

// Set assigns a declared variable, or declares it with type any when
// create is true and the name is unknown.
func (in *Instance) Set(name string, value any, create bool) error {
	var err error
	if create && !in.Vars.Has(name) {
		err = in.Vars.Declare(name, vars.TypeAny, value)
	} else {
		err = in.Vars.Assign(name, value)
	}
	if err != nil {
		return err
	}
	_ = in.Trace.Emit(trace.EventVariableChange, map[string]any{"name": name})
	return nil
}

// SetAll assigns several variables as one step. Every assignment is checked
// before any is made, so a failure leaves the variables untouched.
func (in *Instance) SetAll(names []string, values map[string]any, create bool) error {
	for _, n := range names {
		if err := in.Vars.CheckAssign(n, values[n], create); err != nil {
			return err
		}
	}
	for _, n := range names {
		if err := in.Set(n, values[n], create); err != nil {
			return err
		}
	}
	return nil
}

// SetAppInstance registers an opened external resource under name. An
// existing resource with the same name is closed and replaced.
func (in *Instance) SetAppInstance(name string, v any) error {
	if old, ok := in.apps[name]; ok {
		if err := closeApp(old); err != nil {
			return fmt.Errorf("replace app instance %q: %w", name, err)
		}
	}
	in.apps[name] = v
	return nil
}

// AppInstance returns the resource registered under name.
func (in *Instance) AppInstance(name string) (any, error) {
	v, ok := in.apps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoAppInstance, name)
	}
	return v, nil
}

// RemoveAppInstance closes and forgets the resource registered under name.
func (in *Instance) RemoveAppInstance(name string) error {
	v, ok := in.apps[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoAppInstance, name)
	}
	delete(in.apps, name)
	return closeApp(v)
}

// AppInstances lists registered resource names in sorted order.
func (in *Instance) AppInstances() []string {
	names := make([]string, 0, len(in.apps))
	for n := range in.apps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ReportError records a step failure kept under the report policy.
func (in *Instance) ReportError(re ReportedError) {
	in.reported = append(in.reported, re)
}

// ReportedErrors returns the errors recorded so far.
func (in *Instance) ReportedErrors() []ReportedError {
	out := make([]ReportedError, len(in.reported))
	copy(out, in.reported)
	return out
}

// Close releases every app instance still open.
func (in *Instance) Close() error {
	var errs []error
	for _, name := range in.AppInstances() {
		if err := closeApp(in.apps[name]); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
		delete(in.apps, name)
	}
	return errors.Join(errs...)
}

func closeApp(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
