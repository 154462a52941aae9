package script

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a script file.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a script from a reader. Unknown top-level and meta fields are
// rejected; command params are checked when the engine builds the program.
func Load(r io.Reader) (*Script, error) {
	var sc Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("structural decode: empty document")
		}
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &sc, nil
}

// New builds a script in code. Steps without a line get their 1-based
// position.
func New(name string, steps ...Step) *Script {
	for i := range steps {
		if steps[i].Line == 0 {
			steps[i].Line = i + 1
		}
	}
	return &Script{
		APIVersion: APIVersion,
		Meta:       Meta{Name: name},
		Steps:      steps,
	}
}

// S is shorthand for a step with inline params given as key/value pairs.
func S(command string, kv ...any) Step {
	st := Step{Command: command}
	if len(kv) > 0 {
		st.Params = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			st.Params[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}
	return st
}
