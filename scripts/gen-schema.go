//go:build ignore

// gen-schema writes the script JSON Schema to schemas/rpaflow-v1.json for
// editors that validate YAML against a schema file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

func main() {
	out := filepath.Join("schemas", "rpaflow-v1.json")
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	data, err := script.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote", out)
}
