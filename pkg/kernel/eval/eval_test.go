package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

func TestEvaluate(t *testing.T) {
	env := map[string]any{
		"x":         1,
		"y":         2,
		"name":      "bob",
		"items":     []any{"a", "b", "c"},
		"user.name": "alice",
	}
	tests := []struct {
		name    string
		snippet string
		target  vars.Type
		want    any
	}{
		{"placeholder arithmetic", "{x}+{y}", vars.TypeAny, 3},
		{"bare identifiers", "x * 10 + y", vars.TypeAny, 12},
		{"string concat", `"Hello " + {name}`, vars.TypeAny, "Hello bob"},
		{"placeholder inside literal", `"Hi {name}!"`, vars.TypeAny, "Hi bob!"},
		{"dotted name via placeholder", `upper({user.name})`, vars.TypeAny, "ALICE"},
		{"builtin over list", "len({items})", vars.TypeAny, 3},
		{"map literal is not a placeholder", `len({"a": 1, "b": 2})`, vars.TypeAny, 2},
		{"target string", "{x}+{y}", vars.TypeString, "3"},
		{"target bool", "{x} < {y}", vars.TypeBool, true},
		{"literal only", "40 + 2", vars.TypeAny, 42},
	}
	ev := New(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), tt.snippet, env, Options{Target: tt.target})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	env := map[string]any{"x": 1, "zero": 0}
	ev := New(0)
	ctx := context.Background()

	_, err := ev.Evaluate(ctx, "{missing} + 1", env, Options{})
	var ue *UnresolvedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "missing", ue.Name)

	_, err = ev.Evaluate(ctx, "ghost + 1", env, Options{})
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "ghost", ue.Name)

	_, err = ev.Evaluate(ctx, `"Hi {missing}"`, env, Options{})
	assert.ErrorIs(t, err, ErrUnresolved)

	_, err = ev.Evaluate(ctx, "1 +", env, Options{})
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.NotEmpty(t, se.Diagnostic)

	_, err = ev.Evaluate(ctx, "   ", env, Options{})
	assert.ErrorIs(t, err, ErrSyntax)

	_, err = ev.Evaluate(ctx, "{x} % {zero}", env, Options{})
	assert.ErrorIs(t, err, ErrRuntime)
}

func TestEvaluate_Raw(t *testing.T) {
	env := map[string]any{"x": 1, "y": 2}
	ev := New(0)

	got, err := ev.Evaluate(context.Background(), "{x}+{y}", env, Options{Raw: true})
	require.NoError(t, err)
	assert.Equal(t, "1+2", got)

	got, err = ev.Evaluate(context.Background(), "{x}{y}", env, Options{Raw: true, Target: vars.TypeNumber})
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)
}

func TestEvaluate_Idempotent(t *testing.T) {
	env := map[string]any{"x": 5, "list": []any{1, 2}}
	ev := New(0)
	ctx := context.Background()

	first, err := ev.Evaluate(ctx, "{x} * 2 + len(list)", env, Options{})
	require.NoError(t, err)
	second, err := ev.Evaluate(ctx, "{x} * 2 + len(list)", env, Options{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, map[string]any{"x": 5, "list": []any{1, 2}}, env)
	assert.Len(t, ev.programs, 1, "second run should reuse the compiled program")
}

func TestEvaluate_CacheKeyIncludesTypes(t *testing.T) {
	ev := New(0)
	ctx := context.Background()

	got, err := ev.Evaluate(ctx, "{a} + {b}", map[string]any{"a": 1, "b": 2}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = ev.Evaluate(ctx, "{a} + {b}", map[string]any{"a": "1", "b": "2"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "12", got)
	assert.Len(t, ev.programs, 2)
}

func TestEvaluate_CacheKeyIgnoresUnrelatedVariables(t *testing.T) {
	ev := New(0)
	ctx := context.Background()

	got, err := ev.Evaluate(ctx, "{a} + 1", map[string]any{"a": 1, "other": 1}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	got, err = ev.Evaluate(ctx, "{a} + 1", map[string]any{"a": 2, "other": "text", "extra": []any{}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Len(t, ev.programs, 1)
}

func TestEvaluate_NilFailsAtRunTime(t *testing.T) {
	env := map[string]any{"m": nil, "x": nil, "flag": nil}
	ev := New(0)
	ctx := context.Background()

	_, err := ev.Evaluate(ctx, "{m}.a", env, Options{})
	assert.ErrorIs(t, err, ErrRuntime)

	_, err = ev.Evaluate(ctx, "{x} + 1", env, Options{})
	assert.ErrorIs(t, err, ErrRuntime)

	got, err := ev.Evaluate(ctx, "{x} == nil", env, Options{})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = ev.Evaluate(ctx, "{m}?.a ?? 7", env, Options{})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestEvaluate_SameSnippetAfterNil(t *testing.T) {
	ev := New(0)
	ctx := context.Background()

	_, err := ev.Evaluate(ctx, "{x} + 1", map[string]any{"x": nil}, Options{})
	require.ErrorIs(t, err, ErrRuntime)

	got, err := ev.Evaluate(ctx, "{x} + 1", map[string]any{"x": 4}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestEvaluate_CacheBound(t *testing.T) {
	ev := New(2)
	ctx := context.Background()
	for _, s := range []string{"1", "2", "3"} {
		_, err := ev.Evaluate(ctx, s, nil, Options{})
		require.NoError(t, err)
	}
	assert.Len(t, ev.programs, 2)
	assert.Len(t, ev.order, 2)
}

func TestEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(0).Evaluate(ctx, "1", nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateBool(t *testing.T) {
	ev := New(0)
	ok, err := ev.EvaluateBool(context.Background(), `{s} == "go"`, map[string]any{"s": "go"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ev.EvaluateBool(context.Background(), `[1, 2]`, nil)
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("{a} + {b}", []string{"a", "b"}))
	for _, snippet := range []string{
		"{x} + 1",
		"{x} < {y}",
		"not {b}",
		"len({l}) > 0",
		"{m}.a == 1",
		"{l}[0] * 2",
		"x - y",
	} {
		assert.NoError(t, Check(snippet, []string{"x", "y", "b", "l", "m"}), snippet)
	}
	assert.ErrorIs(t, Check("{a} + {c}", []string{"a"}), ErrUnresolved)
	assert.ErrorIs(t, Check("(1 + ", nil), ErrSyntax)
}

func TestInterpolate(t *testing.T) {
	env := map[string]any{
		"name": "bob",
		"n":    3,
		"list": []any{"a", "b"},
		"none": nil,
	}
	got, err := Interpolate("Hello {name}, you have {n} items: {list}{none}", env)
	require.NoError(t, err)
	assert.Equal(t, `Hello bob, you have 3 items: ["a","b"]`, got)

	got, err = Interpolate("no refs {here: 1}", env)
	require.NoError(t, err)
	assert.Equal(t, "no refs {here: 1}", got)

	_, err = Interpolate("{nobody}", env)
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestIdentifiers(t *testing.T) {
	assert.Equal(t, []string{"_ref0", "a", "len", "list"}, identifiers(`len(list) + _ref0 + a + 1e5`))
	assert.Equal(t, []string{"x"}, identifiers(`x + "y {z}" + 'w'`))
}

func TestReferences(t *testing.T) {
	assert.Equal(t, []string{"a", "b.c"}, References(`{a} + {b.c} + {a} + "{ x: 1 }"`))
	assert.Empty(t, References("plain text"))
}
