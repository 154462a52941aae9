package vars

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// Type is a declared variable type.
type Type string

const (
	TypeAny    Type = "any"
	TypeString Type = "string"
	TypeNumber Type = "number"
	TypeBool   Type = "bool"
	TypeList   Type = "list"
	TypeMap    Type = "map"
)

// Types lists every declarable type.
var Types = []Type{TypeAny, TypeString, TypeNumber, TypeBool, TypeList, TypeMap}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

// Compatible returns the set of runtime kinds assignable to t.
func (t Type) Compatible() TypeSet {
	if t == "" || t == TypeAny {
		return TypeSet{TypeAny}
	}
	return TypeSet{t}
}

// TypeSet is the list of types a property or variable accepts. A value is
// acceptable when it is assignable to at least one member.
type TypeSet []Type

// Accepts reports whether value is assignable to one of the set's types.
// A nil value is an unset slot and is always accepted.
func (s TypeSet) Accepts(value any) bool {
	if value == nil {
		return true
	}
	k := KindOf(value)
	for _, t := range s {
		if t == TypeAny || t == k {
			return true
		}
	}
	return false
}

func (s TypeSet) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = string(t)
	}
	return strings.Join(parts, "|")
}

// KindOf classifies a runtime value into one of the declarable types.
// Values that fit nothing more specific are TypeAny.
func KindOf(value any) Type {
	if value == nil {
		return TypeAny
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Slice, reflect.Array:
		return TypeList
	case reflect.Map:
		return TypeMap
	default:
		return TypeAny
	}
}

// TypeName is the name used in type errors.
func TypeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%s (%T)", KindOf(value), value)
}

// Check returns a *TypeError when value is not acceptable to set.
func Check(set TypeSet, value any) error {
	if set.Accepts(value) {
		return nil
	}
	return &TypeError{Declared: set, Got: TypeName(value)}
}

// Coerce converts a literal into the declared type. Strings are parsed for
// number and bool; JSON text is parsed for list and map.
func Coerce(value any, t Type) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch t {
	case "", TypeAny:
		return value, nil
	case TypeString:
		return cast.ToStringE(value)
	case TypeNumber:
		if KindOf(value) == TypeNumber {
			return value, nil
		}
		if i, err := cast.ToInt64E(value); err == nil {
			return i, nil
		}
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, &TypeError{Declared: TypeSet{t}, Got: TypeName(value)}
		}
		return f, nil
	case TypeBool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, &TypeError{Declared: TypeSet{t}, Got: TypeName(value)}
		}
		return b, nil
	case TypeList:
		if s, ok := value.(string); ok {
			v, err := parseJSON(s)
			if err != nil || v == nil {
				return nil, err
			}
			value = v
		}
		l, err := cast.ToSliceE(value)
		if err != nil {
			return nil, &TypeError{Declared: TypeSet{t}, Got: TypeName(value)}
		}
		return l, nil
	case TypeMap:
		if s, ok := value.(string); ok {
			v, err := parseJSON(s)
			if err != nil || v == nil {
				return nil, err
			}
			value = v
		}
		m, err := cast.ToStringMapE(value)
		if err != nil {
			return nil, &TypeError{Declared: TypeSet{t}, Got: TypeName(value)}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown type %q", t)
	}
}

func parseJSON(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !gjson.Valid(s) {
		return nil, fmt.Errorf("%w: %q is not valid JSON", ErrIncompatibleType, s)
	}
	return gjson.Parse(s).Value(), nil
}
