package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

type harness struct {
	t        *testing.T
	baseDir  string
	rawMode  bool
	progress []string
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t}
}

// run builds and runs sc with the built-in commands.
func (h *harness) run(sc *script.Script, args map[string]any) (*engine.RunResult, *engine.Instance) {
	h.t.Helper()
	return h.runContext(context.Background(), sc, args)
}

func (h *harness) runContext(ctx context.Context, sc *script.Script, args map[string]any) (*engine.RunResult, *engine.Instance) {
	h.t.Helper()
	in := h.instance()
	res := engine.NewInterpreter(NewRegistry()).RunScript(ctx, sc, in, args)
	return res, in
}

func (h *harness) instance() *engine.Instance {
	return engine.NewInstance(engine.InstanceConfig{
		RunID:    "test",
		RawMode:  h.rawMode,
		Logger:   zerolog.Nop(),
		BaseDir:  h.baseDir,
		Progress: func(m string) { h.progress = append(h.progress, m) },
	})
}

// runYAML loads a script document and runs it.
func (h *harness) runYAML(doc string, args map[string]any) (*engine.RunResult, *engine.Instance) {
	h.t.Helper()
	sc, err := script.Load(strings.NewReader(doc))
	require.NoError(h.t, err)
	return h.run(sc, args)
}

func get(t *testing.T, in *engine.Instance, name string) any {
	t.Helper()
	v, err := in.Vars.Resolve(name)
	require.NoError(t, err)
	return v
}

func ok(t *testing.T, res *engine.RunResult) {
	t.Helper()
	require.NoError(t, res.Error)
	require.Equal(t, engine.StatusCompleted, res.Status)
}

var s = script.S

func onError(st script.Step, mode script.ErrorMode) script.Step {
	st.OnError = mode
	return st
}
