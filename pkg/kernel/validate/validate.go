// Package validate implements the 3-phase script validation pipeline:
// structural → semantic → domain.
package validate

import (
	"fmt"
	"path/filepath"

	"github.com/rpaflow/rpaflow/pkg/kernel/commands"
	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

// Phases and severities.
const (
	PhaseStructural = "structural"
	PhaseSemantic   = "semantic"
	PhaseDomain     = "domain"

	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents one error or warning from the validation pipeline.
type ValidationError struct {
	Phase    string `json:"phase"`
	Path     string `json:"path"` // JSON-path-like location
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e *ValidationError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("[%s] line %d: %s", e.Phase, e.Line, e.Message)
	case e.Path != "":
		return fmt.Sprintf("[%s] %s at %s", e.Phase, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
}

func errorf(phase, path string, line int, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Line:     line,
		Message:  fmt.Sprintf(msg, args...),
		Severity: SeverityError,
	}
}

func warningf(phase, path string, line int, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Line:     line,
		Message:  fmt.Sprintf(msg, args...),
		Severity: SeverityWarning,
	}
}

// ValidateFile runs the full 3-phase pipeline on a script file. A nil
// registry means the built-in commands.
func ValidateFile(path string, reg *engine.Registry) (*script.Script, []*ValidationError) {
	// Phase 1: Structural (strict YAML decode)
	sc, err := script.LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf(PhaseStructural, "", 0, "failed to load: %s", err)}
	}
	return sc, ValidateScript(sc, reg, filepath.Dir(path))
}

// ValidateScript runs phases 2 and 3 on an already-loaded script. baseDir
// resolves sub-task paths; empty skips those checks.
func ValidateScript(sc *script.Script, reg *engine.Registry, baseDir string) []*ValidationError {
	if reg == nil {
		reg = commands.NewRegistry()
	}
	errs := validateSemantic(sc)
	// Domain rules assume a schema-valid document.
	if HasErrors(errs) {
		return errs
	}
	return append(errs, validateDomain(sc, reg, baseDir)...)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

func stepPath(i int) string {
	return fmt.Sprintf("steps[%d]", i)
}
