package vars

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DeclareResolve(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Declare("x", TypeNumber, 1))
	require.NoError(t, s.Declare("name", TypeString, "bob"))

	v, err := s.Resolve("x")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"x", "name"}, s.Names())
}

func TestStore_DeclareTwice(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Declare("x", TypeAny, nil))
	err := s.Declare("x", TypeAny, nil)
	assert.ErrorIs(t, err, ErrAlreadyDeclared)
}

func TestStore_DeclareRejectsBadInitialValue(t *testing.T) {
	s := NewStore()
	err := s.Declare("x", TypeNumber, "one")
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrIncompatibleType)
	assert.False(t, s.Has("x"))
}

func TestStore_InvalidName(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.Declare("", TypeAny, nil), ErrInvalidName)
	assert.ErrorIs(t, s.Declare("{x}", TypeAny, nil), ErrInvalidName)
}

func TestStore_ResolveMissing(t *testing.T) {
	_, err := NewStore().Resolve("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Assign(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		value   any
		wantErr error
	}{
		{"number accepts int", TypeNumber, 3, nil},
		{"number accepts float", TypeNumber, 3.5, nil},
		{"number rejects string", TypeNumber, "3", ErrIncompatibleType},
		{"string rejects bool", TypeString, true, ErrIncompatibleType},
		{"bool accepts bool", TypeBool, false, nil},
		{"list accepts slice", TypeList, []string{"a"}, nil},
		{"list rejects map", TypeList, map[string]any{}, ErrIncompatibleType},
		{"map accepts map", TypeMap, map[string]any{"a": 1}, nil},
		{"any accepts struct", TypeAny, struct{}{}, nil},
		{"nil always accepted", TypeNumber, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			require.NoError(t, s.Declare("v", tt.typ, nil))
			err := s.Assign("v", tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				got, _ := s.Resolve("v")
				assert.Nil(t, got, "failed assignment must not change the value")
				return
			}
			require.NoError(t, err)
			got, _ := s.Resolve("v")
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestStore_AssignUndeclared(t *testing.T) {
	err := NewStore().Assign("ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CheckAssign(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Declare("n", TypeNumber, int64(1)))

	assert.NoError(t, s.CheckAssign("n", 2.5, false))
	var te *TypeError
	assert.ErrorAs(t, s.CheckAssign("n", "text", false), &te)
	assert.ErrorIs(t, s.CheckAssign("ghost", 1, false), ErrNotFound)
	assert.NoError(t, s.CheckAssign("ghost", 1, true))
	assert.ErrorIs(t, s.CheckAssign("9bad", 1, true), ErrInvalidName)

	v, err := s.Resolve("n")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.False(t, s.Has("ghost"))
}

func TestStore_DeleteKeepsOrder(t *testing.T) {
	s := NewStore()
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, s.Declare(n, TypeAny, nil))
	}
	require.NoError(t, s.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, s.Names())
	assert.ErrorIs(t, s.Delete("b"), ErrNotFound)
}

func TestStore_EnvIsACopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Declare("x", TypeNumber, 1))
	env := s.Env()
	env["x"] = 99
	v, _ := s.Resolve("x")
	assert.Equal(t, 1, v)
}

func TestStore_Outputs(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.DeclareArgument("in", TypeString, DirectionIn, "a"))
	require.NoError(t, s.DeclareArgument("out", TypeString, DirectionOut, "b"))
	require.NoError(t, s.DeclareArgument("both", TypeNumber, DirectionInOut, 2))
	require.NoError(t, s.Declare("local", TypeAny, "c"))

	assert.Equal(t, map[string]any{"out": "b", "both": 2}, s.Outputs())
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		value any
		typ   Type
		want  any
		err   bool
	}{
		{"int text", "42", TypeNumber, int64(42), false},
		{"float text", "4.5", TypeNumber, 4.5, false},
		{"number passthrough", 7, TypeNumber, 7, false},
		{"bad number", "four", TypeNumber, nil, true},
		{"bool text", "true", TypeBool, true, false},
		{"to string", 12, TypeString, "12", false},
		{"json list", `["a","b"]`, TypeList, []any{"a", "b"}, false},
		{"json map", `{"k":1}`, TypeMap, map[string]any{"k": float64(1)}, false},
		{"empty list text", "", TypeList, nil, false},
		{"invalid json list", "[oops", TypeList, nil, true},
		{"any passthrough", "x", TypeAny, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.typ)
			if tt.err {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrIncompatibleType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeSet_Accepts(t *testing.T) {
	set := TypeSet{TypeString, TypeNumber}
	assert.True(t, set.Accepts("a"))
	assert.True(t, set.Accepts(1.5))
	assert.False(t, set.Accepts(true))
	assert.Equal(t, "string|number", set.String())
	assert.Error(t, Check(set, []any{}))
}
