package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/script"
	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

func TestVariables_Arithmetic(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("sum",
		s("create_variable", "name", "x", "type", "number", "value", 1),
		s("create_variable", "name", "y", "type", "number", "value", 2),
		s("create_variable", "name", "z", "type", "number", "expression", "{x}+{y}"),
		s("set_variable", "name", "greeting", "value", "sum is {z}", "create_missing", true),
	), nil)
	ok(t, res)

	assert.EqualValues(t, 3, get(t, in, "z"))
	assert.Equal(t, "sum is 3", get(t, in, "greeting"))
}

func TestVariables_DocumentOrder(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("order",
		s("create_variable", "name", "trail", "type", "string", "value", ""),
		s("set_variable", "name", "trail", "expression", `{trail} + "a"`),
		s("set_variable", "name", "trail", "expression", `{trail} + "b"`),
		s("set_variable", "name", "trail", "expression", `{trail} + "c"`),
	), nil)
	ok(t, res)
	assert.Equal(t, "abc", get(t, in, "trail"))
}

func TestVariables_CreateIfExists(t *testing.T) {
	h := newHarness(t)
	res, _ := h.run(script.New("dup",
		s("create_variable", "name", "x", "value", 1),
		s("create_variable", "name", "x", "value", 2),
	), nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, vars.ErrAlreadyDeclared)

	res, in := h.run(script.New("ignore",
		s("create_variable", "name", "x", "value", 1),
		s("create_variable", "name", "x", "value", 2, "if_exists", "ignore"),
	), nil)
	ok(t, res)
	assert.EqualValues(t, 1, get(t, in, "x"))

	res, in = h.run(script.New("replace",
		s("create_variable", "name", "x", "type", "number", "value", 1),
		s("create_variable", "name", "x", "type", "string", "value", "one", "if_exists", "replace"),
	), nil)
	ok(t, res)
	assert.Equal(t, "one", get(t, in, "x"))
}

func TestVariables_SetUnknownFails(t *testing.T) {
	h := newHarness(t)
	res, _ := h.run(script.New("unknown", s("set_variable", "name", "ghost", "value", 1)), nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, vars.ErrNotFound)
	assert.Equal(t, "unresolved", engine.FailureKind(res.Error))
}

func TestVariables_TypeMismatch(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("types",
		s("create_variable", "name", "n", "type", "number", "value", 5),
		s("set_variable", "name", "n", "value", "abc"),
	), nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Equal(t, "type", engine.FailureKind(res.Error))
	assert.EqualValues(t, 5, get(t, in, "n"))
}

func TestVariables_TextCoercedToDeclaredType(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("coerce",
		s("create_variable", "name", "n", "type", "number", "value", 0),
		s("set_variable", "name", "n", "value", "42"),
	), nil)
	ok(t, res)
	assert.Equal(t, int64(42), get(t, in, "n"))
}

func TestVariables_Delete(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("delete",
		s("create_variable", "name", "x", "value", 1),
		s("delete_variable", "name", "x"),
	), nil)
	ok(t, res)
	assert.False(t, in.Vars.Has("x"))
}

func TestPolicy_IgnoreLeavesStoreUnchanged(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("ignore",
		s("create_variable", "name", "x", "type", "number", "value", 5),
		onError(s("set_variable", "name", "x", "expression", "{missing} + 1"), script.ErrorIgnore),
	), nil)
	ok(t, res)
	assert.EqualValues(t, 5, get(t, in, "x"))
	assert.Equal(t, []string{"x"}, in.Vars.Names())
	assert.Empty(t, res.Reported)
}

func TestPolicy_ReportRecordsAndContinues(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("report",
		onError(s("set_variable", "name", "x", "expression", "{missing} + 1", "create_missing", true), script.ErrorReport),
		s("set_variable", "name", "after", "value", true, "create_missing", true),
	), nil)
	ok(t, res)
	assert.Equal(t, true, get(t, in, "after"))
	require.Len(t, res.Reported, 1)
	assert.Equal(t, 1, res.Reported[0].Line)
	assert.Equal(t, "unresolved", res.Reported[0].Kind)
	assert.Contains(t, res.Reported[0].Message, "missing")
}

func TestLoop_FalseOnFirstCheckNeverRunsBody(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("never",
		s("create_variable", "name", "x", "type", "string"),
		s("create_variable", "name", "ran", "value", false),
		s("begin_loop", "has_value", "x"),
		s("set_variable", "name", "ran", "value", true),
		s("end_loop"),
		s("begin_loop", "has_value", "{undeclared}"),
		s("set_variable", "name", "ran", "value", true),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.Equal(t, false, get(t, in, "ran"))
	assert.Equal(t, []string{"Starting Loop", "Starting Loop"}, h.progress)
}

func TestLoop_While(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("while",
		s("create_variable", "name", "i", "type", "number", "value", 0),
		s("begin_loop", "condition", "{i} < 3"),
		s("set_variable", "name", "i", "expression", "{i} + 1"),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.EqualValues(t, 3, get(t, in, "i"))
	assert.Equal(t, []string{"Starting Loop", "Starting Loop Number 1", "Starting Loop Number 2", "Starting Loop Number 3"}, h.progress)
}

func TestLoop_NotCondition(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("until",
		s("create_variable", "name", "s", "type", "string", "value", ""),
		s("begin_loop", "has_value", "s", "not", true),
		s("set_variable", "name", "s", "value", "filled"),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.Equal(t, "filled", get(t, in, "s"))
}

func TestLoop_NestedExitLeavesOnlyInnerLoop(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("nested",
		s("create_variable", "name", "inner", "type", "number", "value", 0),
		s("create_variable", "name", "outer", "type", "number", "value", 0),
		s("loop_times", "times", 3),
		s("loop_times", "times", 5, "index", "i", "start", 1),
		s("set_variable", "name", "inner", "expression", "{inner} + 1"),
		s("begin_if", "condition", "{i} == 2"),
		s("exit_loop"),
		s("end_if"),
		s("end_loop"),
		s("set_variable", "name", "outer", "expression", "{outer} + 1"),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.EqualValues(t, 6, get(t, in, "inner"))
	assert.EqualValues(t, 3, get(t, in, "outer"))
}

func TestLoop_NextLoopSkipsRestOfPass(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("odd",
		s("create_variable", "name", "odd", "type", "number", "value", 0),
		s("loop_times", "times", 4, "index", "i"),
		s("begin_if", "condition", "{i} % 2 == 0"),
		s("next_loop"),
		s("end_if"),
		s("set_variable", "name", "odd", "expression", "{odd} + 1"),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.EqualValues(t, 2, get(t, in, "odd"))
}

func TestLoop_TimesFromExpression(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("times",
		s("create_variable", "name", "n", "type", "number", "value", 2),
		s("create_variable", "name", "count", "type", "number", "value", 0),
		s("loop_times", "times", "{n} + 1"),
		s("set_variable", "name", "count", "expression", "{count} + 1"),
		s("set_variable", "name", "n", "value", 10),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.EqualValues(t, 3, get(t, in, "count"), "the count is read once")
}

func TestLoop_Collection(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("each",
		s("string_split", "input", "a, b ,c", "trim_space", true, "output", "parts"),
		s("create_variable", "name", "joined", "type", "string", "value", ""),
		s("loop_collection", "collection", "{parts}", "item", "p", "index", "k"),
		s("set_variable", "name", "joined", "expression", `{joined} + {p}`),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.Equal(t, "abc", get(t, in, "joined"))
	assert.Equal(t, 2, get(t, in, "k"))
}

func TestLoop_CollectionIndexMismatchAssignsNothing(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("each",
		s("create_variable", "name", "p", "type", "string", "value", "none"),
		s("create_variable", "name", "k", "type", "string", "value", ""),
		onError(s("loop_collection", "collection", `["a"]`, "item", "p", "index", "k"), script.ErrorIgnore),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.Equal(t, "none", get(t, in, "p"))
	assert.Equal(t, "", get(t, in, "k"))
}

func TestLoop_CollectionRejectsScalar(t *testing.T) {
	h := newHarness(t)
	res, _ := h.run(script.New("scalar",
		s("create_variable", "name", "x", "value", "not a list"),
		s("loop_collection", "collection", "{x}", "item", "p"),
		s("end_loop"),
	), nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, vars.ErrIncompatibleType)
}

func TestIf(t *testing.T) {
	tests := []struct {
		name string
		cond []any
		want string
	}{
		{"expression true", []any{"condition", "{x} > 1"}, "then"},
		{"expression false", []any{"condition", "{x} > 5"}, "else"},
		{"is numeric", []any{"is_numeric", "{s}"}, "then"},
		{"is not numeric", []any{"is_numeric", "{x}{s}x"}, "else"},
		{"has value", []any{"has_value", "{s}"}, "then"},
		{"negated", []any{"has_value", "s", "not", true}, "else"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res, in := h.run(script.New("if",
				s("create_variable", "name", "x", "value", 2),
				s("create_variable", "name", "s", "value", " 12.5 "),
				s("create_variable", "name", "branch", "value", ""),
				s("begin_if", tt.cond...),
				s("set_variable", "name", "branch", "value", "then"),
				s("else"),
				s("set_variable", "name", "branch", "value", "else"),
				s("end_if"),
			), nil)
			ok(t, res)
			assert.Equal(t, tt.want, get(t, in, "branch"))
		})
	}
}

func TestIf_ConditionErrorFailsStep(t *testing.T) {
	h := newHarness(t)
	res, _ := h.run(script.New("bad",
		s("begin_if", "condition", "{x} > 1"),
		s("end_if"),
	), nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Equal(t, "unresolved", engine.FailureKind(res.Error))
}

func TestSwitch(t *testing.T) {
	tests := []struct {
		color string
		want  string
	}{
		{"red", "first red"},
		{"blue", "blue"},
		{"green", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.color, func(t *testing.T) {
			h := newHarness(t)
			sc := script.New("switch",
				s("create_variable", "name", "picked", "value", "none"),
				s("begin_switch", "value", "{color}"),
				s("case", "value", "red"),
				s("set_variable", "name", "picked", "value", "first red"),
				s("case", "value", "default"),
				s("set_variable", "name", "picked", "value", "default"),
				s("case", "value", "blue"),
				s("set_variable", "name", "picked", "value", "blue"),
				s("case", "value", "red"),
				s("set_variable", "name", "picked", "value", "second red"),
				s("end_switch"),
			)
			sc.Meta.Arguments = []script.Argument{{Name: "color", Type: "string"}}
			res, in := h.run(sc, map[string]any{"color": tt.color})
			ok(t, res)
			assert.Equal(t, tt.want, get(t, in, "picked"))
		})
	}
}

func TestSwitch_NoMatchNoDefault(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("switch",
		s("create_variable", "name", "n", "type", "number", "value", 3),
		s("create_variable", "name", "picked", "value", "none"),
		s("begin_switch", "value", "{n}"),
		s("case", "value", "1"),
		s("set_variable", "name", "picked", "value", "one"),
		s("case", "value", "2"),
		s("set_variable", "name", "picked", "value", "two"),
		s("end_switch"),
	), nil)
	ok(t, res)
	assert.Equal(t, "none", get(t, in, "picked"))
}

func TestSwitch_ValuesAreText(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("switch",
		s("create_variable", "name", "n", "type", "number", "value", 2),
		s("create_variable", "name", "want", "value", "2"),
		s("create_variable", "name", "picked", "value", "none"),
		s("begin_switch", "value", "{n}"),
		s("case", "value", "1 + 1"),
		s("set_variable", "name", "picked", "value", "sum"),
		s("case", "value", "{want}"),
		s("set_variable", "name", "picked", "value", "interpolated"),
		s("end_switch"),
	), nil)
	ok(t, res)
	assert.Equal(t, "interpolated", get(t, in, "picked"))
}

func TestTry_CatchAndFinally(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("try",
		s("create_variable", "name", "x", "value", 1),
		s("begin_try"),
		s("throw_error", "message", "bad {x}"),
		s("set_variable", "name", "unreached", "value", true, "create_missing", true),
		s("catch", "error_variable", "err", "line_variable", "at"),
		s("set_variable", "name", "handled", "value", true, "create_missing", true),
		s("finally"),
		s("set_variable", "name", "cleaned", "value", true, "create_missing", true),
		s("end_try"),
	), nil)
	ok(t, res)
	assert.Equal(t, "bad 1", get(t, in, "err"))
	assert.Equal(t, 3, get(t, in, "at"))
	assert.Equal(t, true, get(t, in, "handled"))
	assert.Equal(t, true, get(t, in, "cleaned"))
	assert.False(t, in.Vars.Has("unreached"))
}

func TestTry_FinallyRunsWhenUncaught(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("try",
		s("begin_try"),
		s("throw_error", "message", "boom"),
		s("finally"),
		s("set_variable", "name", "cleaned", "value", true, "create_missing", true),
		s("end_try"),
		s("set_variable", "name", "after", "value", true, "create_missing", true),
	), nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Equal(t, "thrown", engine.FailureKind(res.Error))
	var se *engine.StepError
	require.ErrorAs(t, res.Error, &se)
	assert.Equal(t, 2, se.Line)
	assert.Equal(t, true, get(t, in, "cleaned"))
	assert.False(t, in.Vars.Has("after"))
}

func TestTry_NoErrorSkipsCatch(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("try",
		s("begin_try"),
		s("comment", "text", "fine"),
		s("catch"),
		s("set_variable", "name", "handled", "value", true, "create_missing", true),
		s("end_try"),
	), nil)
	ok(t, res)
	assert.False(t, in.Vars.Has("handled"))
}

func TestTry_ExitLoopPassesThrough(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("try-loop",
		s("create_variable", "name", "passes", "type", "number", "value", 0),
		s("loop_times", "times", 5),
		s("set_variable", "name", "passes", "expression", "{passes} + 1"),
		s("begin_try"),
		s("exit_loop"),
		s("catch"),
		s("end_try"),
		s("end_loop"),
	), nil)
	ok(t, res)
	assert.EqualValues(t, 1, get(t, in, "passes"))
}

func TestThrowError_Uncaught(t *testing.T) {
	h := newHarness(t)
	res, _ := h.run(script.New("throw", s("throw_error", "message", "nope")), nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	var te *engine.ThrownError
	require.ErrorAs(t, res.Error, &te)
	assert.Equal(t, "nope", te.Message)
}

func TestStopScript(t *testing.T) {
	h := newHarness(t)
	res, in := h.run(script.New("stop",
		s("loop_times", "times", 5, "index", "i"),
		s("begin_if", "condition", "{i} == 2"),
		s("stop_script"),
		s("end_if"),
		s("end_loop"),
		s("set_variable", "name", "after", "value", true, "create_missing", true),
	), nil)
	assert.Equal(t, engine.StatusCancelled, res.Status)
	assert.NoError(t, res.Error)
	assert.Equal(t, 2, get(t, in, "i"))
	assert.False(t, in.Vars.Has("after"))
}

func TestPause_CancelledEarly(t *testing.T) {
	h := newHarness(t)
	in := h.instance()
	go func() {
		time.Sleep(20 * time.Millisecond)
		in.Cancel()
	}()

	start := time.Now()
	res := engine.NewInterpreter(NewRegistry()).RunScript(context.Background(),
		script.New("pause", s("pause", "duration", "10s")), in, nil)
	assert.Equal(t, engine.StatusCancelled, res.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPause_ContextTimeout(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, _ := h.runContext(ctx, script.New("pause", s("pause", "duration", "10s")), nil)
	assert.Equal(t, engine.StatusCancelled, res.Status)
}

func TestLogMessage(t *testing.T) {
	h := newHarness(t)
	res, _ := h.run(script.New("log",
		s("create_variable", "name", "who", "value", "world"),
		s("log_message", "message", "hello {who}"),
		s("log_message", "message", "quiet", "level", "debug"),
	), nil)
	ok(t, res)
	assert.Equal(t, []string{"hello world"}, h.progress)
}

func TestRawMode(t *testing.T) {
	doc := `
apiVersion: rpaflow/v1
meta:
  name: raw
  auto_calculate: false
  variables:
    - {name: x, type: number, value: 1}
    - {name: y, type: number, value: 2}
steps:
  - command: set_variable
    name: text
    expression: "{x}+{y}"
    create_missing: true
  - command: begin_if
    condition: "{x} < {y}"
  - command: set_variable
    name: compared
    value: true
    create_missing: true
  - command: end_if
  - command: set_preference
    auto_calculate: true
  - command: set_variable
    name: sum
    expression: "{x}+{y}"
    create_missing: true
`
	h := newHarness(t)
	res, in := h.runYAML(doc, nil)
	ok(t, res)
	assert.Equal(t, "1+2", get(t, in, "text"))
	assert.Equal(t, true, get(t, in, "compared"))
	assert.EqualValues(t, 3, get(t, in, "sum"))
}

func TestRawMode_FromInstance(t *testing.T) {
	h := newHarness(t)
	h.rawMode = true
	res, in := h.run(script.New("raw",
		s("create_variable", "name", "n", "type", "number", "expression", "4{x}"),
	), nil)
	assert.Equal(t, engine.StatusFailed, res.Status, "x is unresolved even in raw mode")

	res, in = h.run(script.New("raw",
		s("create_variable", "name", "x", "value", 2),
		s("create_variable", "name", "n", "type", "number", "expression", "4{x}"),
	), nil)
	ok(t, res)
	assert.Equal(t, int64(42), get(t, in, "n"))
}

func TestBuildRejectsBadParams(t *testing.T) {
	tests := []struct {
		name string
		step script.Step
		want string
	}{
		{"set without value", s("set_variable", "name", "x"), "one of value or expression"},
		{"set with both", s("set_variable", "name", "x", "value", 1, "expression", "1"), "mutually exclusive"},
		{"create bad name", s("create_variable", "name", "1x"), "invalid variable name"},
		{"create bad type", s("create_variable", "name", "x", "type", "date"), "oneof"},
		{"if without condition", s("begin_if"), "is required"},
		{"if with two conditions", s("begin_if", "condition", "true", "has_value", "x"), "mutually exclusive"},
		{"times missing", s("loop_times"), "times is required"},
		{"unknown param", s("comment", "body", "x"), "body"},
		{"preference missing", s("set_preference"), "required"},
		{"negative pause", s("pause", "duration", "-1s"), "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Build(script.New("bad", tt.step), NewRegistry())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	kinds := map[string]bool{}
	for _, sp := range reg.Specs() {
		kinds[sp.Kind] = true
		assert.NotEmpty(t, sp.Group, sp.Kind)
		assert.NotEmpty(t, sp.Description, sp.Kind)
	}
	for _, k := range []string{
		"create_variable", "set_variable", "delete_variable", "set_preference",
		"begin_loop", "loop_times", "loop_collection", "end_loop", "exit_loop", "next_loop",
		"begin_if", "else", "end_if",
		"begin_switch", "case", "end_switch",
		"begin_try", "catch", "finally", "end_try", "throw_error",
		"stop_script", "pause", "comment", "log_message",
		"parse_json", "string_split", "string_replace",
		"file_open", "file_write_line", "close_instance",
		"run_starlark", "run_task",
	} {
		assert.True(t, kinds[k], k)
	}
}

func TestDisplayText(t *testing.T) {
	cond := Condition{HasValue: "name", Not: true}
	tests := []struct {
		cmd  engine.Command
		want string
	}{
		{&SetVariable{Name: "x", Expression: "{a}+1"}, "Set x = {a}+1"},
		{&CreateVariable{Name: "n", Type: "number"}, "Create Variable n (number)"},
		{&BeginLoop{Condition: cond}, "Loop While not (name has value)"},
		{&LoopTimes{Times: 3}, "Loop 3 Times"},
		{&BeginSwitch{Value: ""}, "Switch on '<empty>'"},
		{&Case{Value: "Default"}, "Case 'Default'"},
		{&ThrowError{Message: "bad"}, "Throw Error 'bad'"},
		{&Pause{Duration: script.Duration(2 * time.Second)}, "Pause for 2s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, engine.DisplayText(tt.cmd))
	}
}
