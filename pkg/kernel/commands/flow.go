package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

func registerFlow(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:        "stop_script",
		Group:       GroupFlow,
		Description: "Stop the run",
		New:         func() engine.Command { return &StopScript{} },
	})
	reg.Register(engine.Spec{
		Kind:        "pause",
		Group:       GroupFlow,
		Description: "Wait for a duration",
		New:         func() engine.Command { return &Pause{} },
	})
	reg.Register(engine.Spec{
		Kind:        "comment",
		Group:       GroupFlow,
		Description: "Do nothing; annotate the script",
		New:         func() engine.Command { return &Comment{} },
	})
	reg.Register(engine.Spec{
		Kind:        "log_message",
		Group:       GroupFlow,
		Description: "Report a progress message",
		New:         func() engine.Command { return &LogMessage{} },
	})
}

// StopScript cancels the run.
type StopScript struct{}

func (*StopScript) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	f.Instance.Cancel()
	return engine.Cancel, nil
}

func (*StopScript) DisplayText() string { return "Stop Script" }

// pollInterval bounds how long a pause ignores a cancellation request.
const pollInterval = 50 * time.Millisecond

// Pause waits for a duration, returning early on cancellation.
type Pause struct {
	Duration script.Duration `yaml:"duration"`
}

func (c *Pause) Check() error {
	if c.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	return nil
}

func (c *Pause) Execute(ctx context.Context, f *engine.Frame) (engine.Signal, error) {
	timer := time.NewTimer(time.Duration(c.Duration))
	defer timer.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-timer.C:
			return engine.Next, nil
		case <-ctx.Done():
			return engine.Cancel, nil
		case <-tick.C:
			if f.Instance.IsCancellationPending() {
				return engine.Cancel, nil
			}
		}
	}
}

func (c *Pause) DisplayText() string {
	return "Pause for " + c.Duration.String()
}

// Comment is a no-op annotation.
type Comment struct {
	Text string `yaml:"text"`
}

func (*Comment) Execute(context.Context, *engine.Frame) (engine.Signal, error) {
	return engine.Next, nil
}

func (c *Comment) DisplayText() string { return "// " + c.Text }

// LogMessage reports a progress message.
type LogMessage struct {
	Message string `yaml:"message" validate:"required"`
	Level   string `yaml:"level"   validate:"omitempty,oneof=debug info warn error"`
}

func (c *LogMessage) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	msg, err := f.Instance.Interpolate(c.Message)
	if err != nil {
		return engine.Next, err
	}
	level := zerolog.InfoLevel
	if c.Level != "" {
		level, _ = zerolog.ParseLevel(c.Level)
	}
	if level == zerolog.InfoLevel {
		f.Instance.Report(msg)
		return engine.Next, nil
	}
	f.Instance.Logger.WithLevel(level).Int("line", f.Line()).Msg(msg)
	return engine.Next, nil
}

func (c *LogMessage) DisplayText() string {
	return fmt.Sprintf("Log %s", quote(c.Message))
}
