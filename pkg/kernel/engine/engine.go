// Package engine interprets rpaflow programs: the engine instance, the
// command contract, the block-tree builder and the step loop with its
// error and retry policy.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/rpaflow/rpaflow/pkg/kernel/script"
	"github.com/rpaflow/rpaflow/pkg/kernel/trace"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
)

// Interpreter executes programs. It holds no per-run state and may run many
// instances concurrently.
type Interpreter struct {
	Registry *Registry
	Metrics  *telemetry.Metrics
	Tracer   oteltrace.Tracer
}

// NewInterpreter creates an interpreter for programs built from reg.
func NewInterpreter(reg *Registry) *Interpreter {
	return &Interpreter{Registry: reg}
}

func (it *Interpreter) tracer() oteltrace.Tracer {
	if it.Tracer == nil {
		return tracenoop.NewTracerProvider().Tracer("rpaflow")
	}
	return it.Tracer
}

// RunScript builds sc, declares its variables and arguments on in, and runs
// it. Build and declaration failures produce a failed result.
func (it *Interpreter) RunScript(ctx context.Context, sc *script.Script, in *Instance, args map[string]any) *RunResult {
	prog, err := Build(sc, it.Registry)
	if err == nil {
		err = Prepare(in, sc, args)
	}
	if err != nil {
		_ = in.Close()
		return &RunResult{RunID: in.ID, Status: StatusFailed, Error: err}
	}
	return it.Run(ctx, prog, in)
}

// Run executes a program to completion, cancellation or the first unhandled
// error. App instances still open at the end are closed.
func (it *Interpreter) Run(ctx context.Context, prog *Program, in *Instance) *RunResult {
	start := time.Now()
	name := prog.Script.Meta.Name

	if prog.Script.Meta.AutoCalculate != nil {
		in.SetAutoCalculate(*prog.Script.Meta.AutoCalculate)
	}

	ctx, span := it.tracer().Start(ctx, "run "+name, oteltrace.WithAttributes(
		attribute.String("rpaflow.run_id", in.ID),
		attribute.String("rpaflow.script", name),
	))
	defer span.End()

	it.Metrics.RecordRunStarted()
	_ = in.Trace.EmitRunStart(name, in.Vars.Env())
	in.Logger.Info().Str("script", name).Msg("run started")

	sig, err := it.RunNodes(ctx, prog.Root, in)

	status := StatusCompleted
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
	case sig == Cancel || in.IsCancellationPending():
		status = StatusCancelled
	}

	if cerr := in.Close(); cerr != nil {
		in.Logger.Warn().Err(cerr).Msg("closing app instances")
	}

	res := &RunResult{
		RunID:     in.ID,
		Status:    status,
		Error:     err,
		Duration:  time.Since(start),
		Reported:  in.ReportedErrors(),
		Variables: in.Vars.Snapshot(),
		Outputs:   in.Vars.Outputs(),
	}

	var failure *trace.Failure
	if err != nil {
		failure = &trace.Failure{Kind: FailureKind(err), Message: err.Error()}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.Logger.Error().Err(err).Str("status", status).Msg("run finished")
	} else {
		in.Logger.Info().Str("status", status).Dur("duration", res.Duration).Msg("run finished")
	}
	_ = in.Trace.EmitRunComplete(status, res.Duration, failure)
	it.Metrics.RecordRunCompleted(status, res.Duration)
	return res
}

// RunNodes executes a sequence of sibling steps. It stops at the first
// step that returns an error or a signal other than Next.
func (it *Interpreter) RunNodes(ctx context.Context, nodes []*Node, in *Instance) (Signal, error) {
	for _, n := range nodes {
		sig, err := it.execNode(ctx, n, in)
		if err != nil {
			return sig, err
		}
		if sig != Next {
			return sig, nil
		}
	}
	return Next, nil
}

func (it *Interpreter) execNode(ctx context.Context, n *Node, in *Instance) (Signal, error) {
	if in.IsCancellationPending() {
		return Cancel, nil
	}
	if ctx.Err() != nil {
		in.Cancel()
		return Cancel, nil
	}

	step := n.Step
	if step.Disabled {
		_ = in.Trace.EmitStepStart(step.Line, step.Command, "")
		_ = in.Trace.EmitStepComplete(step.Line, step.Command, trace.StatusSkipped, 0, nil)
		return Next, nil
	}

	display := DisplayText(n.Command)
	log := in.Logger.With().Int("line", step.Line).Str("command", step.Command).Logger()
	log.Debug().Str("display", display).Msg("step started")
	_ = in.Trace.EmitStepStart(step.Line, step.Command, display)

	ctx, span := it.tracer().Start(ctx, step.Command, oteltrace.WithAttributes(
		attribute.Int("rpaflow.line", step.Line),
	))
	defer span.End()

	start := time.Now()
	sig, err := newRetryPolicy(step.Retry).do(ctx, in, func() (Signal, error) {
		return it.dispatch(ctx, n, in)
	}, func(attempt int, err error) {
		log.Warn().Err(err).Int("attempt", attempt).Msg("step failed, retrying")
		_ = in.Trace.Emit(trace.EventStepRetry, map[string]any{
			"line":    step.Line,
			"attempt": attempt,
			"error":   err.Error(),
		})
	})
	d := time.Since(start)

	if err == nil {
		_ = in.Trace.EmitStepComplete(step.Line, step.Command, trace.StatusSuccess, d, nil)
		it.Metrics.RecordStep(step.Command, string(trace.StatusSuccess), d)
		log.Debug().Dur("duration", d).Str("signal", sig.String()).Msg("step finished")
		return sig, nil
	}

	if ctx.Err() != nil {
		in.Cancel()
		return Cancel, nil
	}

	err = wrapStep(n, err)
	failure := &trace.Failure{Kind: FailureKind(err), Message: err.Error()}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	switch step.OnError {
	case script.ErrorReport:
		re := reported(err)
		in.ReportError(re)
		_ = in.Trace.EmitErrorReported(re.Line, re.Command, re.Message)
		_ = in.Trace.EmitStepComplete(step.Line, step.Command, trace.StatusReported, d, failure)
		it.Metrics.RecordStep(step.Command, string(trace.StatusReported), d)
		it.Metrics.RecordErrorReported(step.Command)
		log.Warn().Err(err).Msg("step failed, error reported")
		return Next, nil

	case script.ErrorIgnore:
		_ = in.Trace.EmitStepComplete(step.Line, step.Command, trace.StatusIgnored, d, failure)
		it.Metrics.RecordStep(step.Command, string(trace.StatusIgnored), d)
		log.Debug().Err(err).Msg("step failed, error ignored")
		return Next, nil
	}

	_ = in.Trace.EmitStepComplete(step.Line, step.Command, trace.StatusFailed, d, failure)
	it.Metrics.RecordStep(step.Command, string(trace.StatusFailed), d)
	log.Error().Err(err).Msg("step failed")
	return Next, err
}

func (it *Interpreter) dispatch(ctx context.Context, n *Node, in *Instance) (Signal, error) {
	if sw, ok := n.Command.(Switcher); ok && n.Spec.Role == RoleOpen {
		return it.runSwitch(ctx, n, in, sw)
	}
	return n.Command.Execute(ctx, &Frame{Instance: in, Node: n, interp: it})
}

// runSwitch selects one arm of a switch block: the first case equal to the
// control value, else the first Default, else none.
func (it *Interpreter) runSwitch(ctx context.Context, n *Node, in *Instance, sw Switcher) (Signal, error) {
	value, err := sw.ControlValue(ctx, in)
	if err != nil {
		return Next, err
	}

	match, fallback := -1, -1
	for i := 1; i < len(n.Arms) && match < 0; i++ {
		cm, ok := n.Arms[i].Marker.Command.(CaseMarker)
		if !ok {
			continue
		}
		cv, isDefault, err := cm.CaseValue(ctx, in)
		if err != nil {
			return Next, wrapStep(n.Arms[i].Marker, err)
		}
		switch {
		case isDefault:
			if fallback < 0 {
				fallback = i
			}
		case cv == value:
			match = i
		}
	}
	if match < 0 {
		match = fallback
	}

	label := ""
	if match > 0 {
		label = DisplayText(n.Arms[match].Marker.Command)
	}
	_ = in.Trace.EmitSwitchMatch(n.Step.Line, value, match, label)
	if match < 0 {
		return Next, nil
	}
	return it.RunNodes(ctx, n.Arms[match].Body, in)
}

// DisplayText renders a command's summary, falling back to a placeholder
// if the command panics.
func DisplayText(cmd Command) (text string) {
	if cmd == nil {
		return "<unknown>"
	}
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("<%T>", cmd)
		}
	}()
	return cmd.DisplayText()
}

func wrapStep(n *Node, err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &StepError{Line: n.Step.Line, Command: n.Step.Command, Err: err}
}

func reported(err error) ReportedError {
	re := ReportedError{Message: err.Error(), Kind: FailureKind(err)}
	var se *StepError
	if errors.As(err, &se) {
		re.Line, re.Command, re.Message = se.Line, se.Command, se.Err.Error()
	}
	return re
}
