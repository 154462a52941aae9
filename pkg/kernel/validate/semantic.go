package validate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

var compiledSchema = sync.OnceValues(func() (*sjsonschema.Schema, error) {
	schemaJSON, err := script.GenerateJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("rpaflow-v1.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("rpaflow-v1.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
})

// validateSemantic validates the script against the generated JSON Schema.
func validateSemantic(sc *script.Script) []*ValidationError {
	sch, err := compiledSchema()
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", 0, "%v", err)}
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", 0, "marshal for schema validation: %v", err)}
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", 0, "unmarshal document: %v", err)}
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return []*ValidationError{errorf(PhaseSemantic, "", 0, "%v", err)}
	}
	var errs []*ValidationError
	for _, cause := range flattenValidationErrors(ve) {
		errs = append(errs, errorf(PhaseSemantic,
			strings.Join(cause.InstanceLocation, "/"),
			stepLine(sc, cause.InstanceLocation),
			"%s", causeMessage(cause)))
	}
	return errs
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// causeMessage drops the "at '<location>': " prefix; the location is
// reported separately.
func causeMessage(ve *sjsonschema.ValidationError) string {
	msg := strings.TrimSpace(ve.Error())
	if strings.HasPrefix(msg, "at '") {
		if i := strings.Index(msg, "': "); i > 0 {
			return msg[i+3:]
		}
	}
	return msg
}

// stepLine maps an instance location under steps/N to the step's line.
func stepLine(sc *script.Script, loc []string) int {
	if len(loc) < 2 || loc[0] != "steps" {
		return 0
	}
	i, err := strconv.Atoi(loc[1])
	if err != nil || i < 0 || i >= len(sc.Steps) {
		return 0
	}
	return sc.Steps[i].Line
}
