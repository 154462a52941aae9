package engine

import (
	"context"
	"fmt"

	"github.com/rpaflow/rpaflow/pkg/kernel/trace"
)

// LoopCondition is evaluated before every pass over a loop body. iteration
// counts completed passes, starting at 0.
type LoopCondition func(ctx context.Context, iteration int) (bool, error)

// Loop drives the body arm of a loop command:
// evaluate condition, run body, repeat. Break ends the loop and is
// consumed here; Continue abandons the pass and goes back to the
// condition; Cancel ends the loop and propagates.
func (f *Frame) Loop(ctx context.Context, cond LoopCondition) (Signal, error) {
	in := f.Instance
	line := f.Line()
	in.Report("Starting Loop")
	_ = in.Trace.EmitLoop(trace.EventLoopStart, line, 0)

	i := 0
	for ; ; i++ {
		if in.IsCancellationPending() {
			return Cancel, nil
		}
		if ctx.Err() != nil {
			in.Cancel()
			return Cancel, nil
		}

		ok, err := cond(ctx, i)
		if err != nil {
			return Next, err
		}
		if !ok {
			break
		}

		in.Report(fmt.Sprintf("Starting Loop Number %d", i+1))
		_ = in.Trace.EmitLoop(trace.EventLoopIteration, line, i+1)
		f.interp.Metrics.RecordLoopIteration()

		sig, err := f.RunArm(ctx, 0)
		if err != nil {
			return Next, err
		}
		switch sig {
		case Break:
			_ = in.Trace.EmitLoop(trace.EventLoopExit, line, i+1)
			return Next, nil
		case Cancel:
			return Cancel, nil
		}
	}
	_ = in.Trace.EmitLoop(trace.EventLoopExit, line, i)
	return Next, nil
}
