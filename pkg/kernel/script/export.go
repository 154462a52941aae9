package script

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaID is the $id of the generated document schema.
const SchemaID = "https://github.com/rpaflow/rpaflow/schemas/rpaflow-v1.json"

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Script Go types.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Script{})
	s.ID = SchemaID
	s.Title = "rpaflow script (rpaflow/v1)"
	s.Description = "Schema for rpaflow/v1 script YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal script schema: %w", err)
	}
	return data, nil
}
