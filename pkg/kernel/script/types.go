// Package script defines the rpaflow/v1 script document types.
package script

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// APIVersion is the only document version the loader accepts.
const APIVersion = "rpaflow/v1"

// Script is the top-level document.
type Script struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Meta       Meta   `yaml:"meta"       json:"meta"`
	Steps      []Step `yaml:"steps"      json:"steps"`
}

// Meta holds script metadata and the declarations made at script start.
type Meta struct {
	Name          string     `yaml:"name"                     json:"name"`
	Description   string     `yaml:"description,omitempty"    json:"description,omitempty"`
	AutoCalculate *bool      `yaml:"auto_calculate,omitempty" json:"auto_calculate,omitempty"`
	Variables     []Variable `yaml:"variables,omitempty"      json:"variables,omitempty"`
	Arguments     []Argument `yaml:"arguments,omitempty"      json:"arguments,omitempty"`
}

// Variable declares a script variable.
type Variable struct {
	Name  string `yaml:"name"            json:"name"`
	Type  string `yaml:"type,omitempty"  json:"type,omitempty" jsonschema:"enum=any,enum=string,enum=number,enum=bool,enum=list,enum=map"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Argument declares a value passed in from, or back out to, the caller.
type Argument struct {
	Name      string `yaml:"name"                json:"name"`
	Type      string `yaml:"type,omitempty"      json:"type,omitempty" jsonschema:"enum=any,enum=string,enum=number,enum=bool,enum=list,enum=map"`
	Direction string `yaml:"direction,omitempty" json:"direction,omitempty" jsonschema:"enum=in,enum=out,enum=inout"`
	Value     any    `yaml:"value,omitempty"     json:"value,omitempty"`
}

// ErrorMode selects what the interpreter does when a step fails.
type ErrorMode string

const (
	ErrorNone   ErrorMode = "none"
	ErrorReport ErrorMode = "report"
	ErrorIgnore ErrorMode = "ignore"
)

// ParseErrorMode accepts the canonical names and the long forms
// "Report Error" and "Ignore Error". Empty means none.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ErrorNone, nil
	case "report", "report error", "report_error":
		return ErrorReport, nil
	case "ignore", "ignore error", "ignore_error":
		return ErrorIgnore, nil
	}
	return "", fmt.Errorf("unknown error mode %q", s)
}

// UnmarshalYAML normalizes the accepted spellings.
func (m *ErrorMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseErrorMode(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*m = mode
	return nil
}

// JSONSchema lists every accepted spelling.
func (ErrorMode) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{"none", "report", "ignore", "Report Error", "Ignore Error"},
	}
}

// Duration is a time.Duration written as a Go duration string ("200ms").
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`}
}

// Retry re-runs a failing step before its error mode applies.
type Retry struct {
	Attempts int      `yaml:"attempts"        json:"attempts" jsonschema:"minimum=1"`
	Delay    Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// Step is one entry of the flat step list. Block commands are written as
// marker steps (begin_loop ... end_loop); the engine builds the tree.
type Step struct {
	Command     string    `json:"command"`
	OnError     ErrorMode `json:"on_error,omitempty"`
	Retry       *Retry    `json:"retry,omitempty"`
	Disabled    bool      `json:"disabled,omitempty"`
	Description string    `json:"description,omitempty"`

	// Params holds the command's own keys, decoded later into the
	// command's typed fields.
	Params map[string]any `json:"-"`
	// Line is the 1-based source line of the step, or its position when
	// the script was built in code.
	Line int `json:"-"`
}

var commonKeys = map[string]bool{
	"command":     true,
	"on_error":    true,
	"retry":       true,
	"disabled":    true,
	"description": true,
}

// UnmarshalYAML splits a step mapping into common fields and params.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: step must be a mapping", node.Line)
	}
	s.Line = node.Line
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var err error
		switch key.Value {
		case "command":
			err = val.Decode(&s.Command)
		case "on_error":
			err = val.Decode(&s.OnError)
		case "retry":
			s.Retry = &Retry{}
			err = decodeStrict(val, s.Retry)
		case "disabled":
			err = val.Decode(&s.Disabled)
		case "description":
			err = val.Decode(&s.Description)
		default:
			var v any
			if err = val.Decode(&v); err == nil {
				if s.Params == nil {
					s.Params = make(map[string]any)
				}
				s.Params[key.Value] = v
			}
		}
		if err != nil {
			return fmt.Errorf("step %q: %w", key.Value, err)
		}
	}
	if s.Command == "" {
		return fmt.Errorf("line %d: step has no command", node.Line)
	}
	return nil
}

// MarshalJSON writes params inline next to the common fields.
func (s Step) MarshalJSON() ([]byte, error) {
	type plain Step
	base, err := json.Marshal(plain(s))
	if err != nil {
		return nil, err
	}
	if len(s.Params) == 0 {
		return base, nil
	}
	out := make(map[string]any, len(s.Params)+5)
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for k, v := range s.Params {
		if !commonKeys[k] {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// JSONSchemaExtend allows the command-specific keys next to the common ones.
func (Step) JSONSchemaExtend(s *jsonschema.Schema) {
	s.AdditionalProperties = jsonschema.TrueSchema
}

// Param returns a raw parameter value.
func (s Step) Param(key string) (any, bool) {
	v, ok := s.Params[key]
	return v, ok
}

// DecodeParams decodes the step's params into out, rejecting keys out does
// not declare.
func (s Step) DecodeParams(out any) error {
	if len(s.Params) == 0 {
		return nil
	}
	data, err := yaml.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s params: %w", s.Command, err)
	}
	return nil
}

func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	return dec.Decode(out)
}
