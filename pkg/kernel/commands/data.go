package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

func registerData(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:        "parse_json",
		Group:       GroupData,
		Description: "Extract a value from JSON text with a path query",
		New:         func() engine.Command { return &ParseJSON{} },
	})
	reg.Register(engine.Spec{
		Kind:        "string_split",
		Group:       GroupData,
		Description: "Split text into a list",
		New:         func() engine.Command { return &StringSplit{} },
	})
	reg.Register(engine.Spec{
		Kind:        "string_replace",
		Group:       GroupData,
		Description: "Replace every occurrence of a substring",
		New:         func() engine.Command { return &StringReplace{} },
	})
}

// ParseJSON reads a value out of JSON text. Path uses gjson syntax
// ("items.#.name"); an empty path yields the whole document.
type ParseJSON struct {
	Input  string `yaml:"input"  validate:"required"`
	Path   string `yaml:"path"`
	Output string `yaml:"output" validate:"required"`
}

func (c *ParseJSON) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	in := f.Instance
	doc, err := in.Interpolate(c.Input)
	if err != nil {
		return engine.Next, err
	}
	if !gjson.Valid(doc) {
		return engine.Next, fmt.Errorf("input is not valid JSON")
	}
	res := gjson.Parse(doc)
	if c.Path != "" {
		path, err := in.Interpolate(c.Path)
		if err != nil {
			return engine.Next, err
		}
		res = res.Get(path)
		if !res.Exists() {
			return engine.Next, fmt.Errorf("path %q not found", path)
		}
	}
	return engine.Next, in.Set(c.Output, normalizeJSON(res.Value()), true)
}

func (c *ParseJSON) DisplayText() string {
	return fmt.Sprintf("Parse JSON %s into %s", quote(c.Path), orPlaceholder(c.Output))
}

// normalizeJSON turns whole JSON numbers into int64 so they compare and
// print like numbers written in the script.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
	case []any:
		for i := range x {
			x[i] = normalizeJSON(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = normalizeJSON(x[k])
		}
	}
	return v
}

// StringSplit splits text into a list of strings.
type StringSplit struct {
	Input string `yaml:"input" validate:"required"`
	// Separator defaults to ",".
	Separator string `yaml:"separator"`
	TrimSpace bool   `yaml:"trim_space"`
	Output    string `yaml:"output" validate:"required"`
}

func (c *StringSplit) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	s, err := f.Instance.Interpolate(c.Input)
	if err != nil {
		return engine.Next, err
	}
	sep := c.Separator
	if sep == "" {
		sep = ","
	}
	parts := strings.Split(s, sep)
	out := make([]any, len(parts))
	for i, p := range parts {
		if c.TrimSpace {
			p = strings.TrimSpace(p)
		}
		out[i] = p
	}
	return engine.Next, f.Instance.Set(c.Output, out, true)
}

func (c *StringSplit) DisplayText() string {
	return fmt.Sprintf("Split %s into %s", quote(c.Input), orPlaceholder(c.Output))
}

// StringReplace replaces every occurrence of Old with New.
type StringReplace struct {
	Input  string `yaml:"input"  validate:"required"`
	Old    string `yaml:"old"    validate:"required"`
	New    string `yaml:"new"`
	Output string `yaml:"output" validate:"required"`
}

func (c *StringReplace) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	in := f.Instance
	s, err := in.Interpolate(c.Input)
	if err != nil {
		return engine.Next, err
	}
	old, err := in.Interpolate(c.Old)
	if err != nil {
		return engine.Next, err
	}
	repl, err := in.Interpolate(c.New)
	if err != nil {
		return engine.Next, err
	}
	return engine.Next, in.Set(c.Output, strings.ReplaceAll(s, old, repl), true)
}

func (c *StringReplace) DisplayText() string {
	return fmt.Sprintf("Replace %s with %s in %s", quote(c.Old), quote(c.New), orPlaceholder(c.Output))
}
