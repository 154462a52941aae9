package validate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/kernel/commands"
	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/eval"
	"github.com/rpaflow/rpaflow/pkg/kernel/script"
	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

// validateDomain runs the rpaflow/v1 domain rules.
func validateDomain(sc *script.Script, reg *engine.Registry, baseDir string) []*ValidationError {
	var errs []*ValidationError

	// D1: apiVersion
	if sc.APIVersion != script.APIVersion {
		errs = append(errs, errorf(PhaseDomain, "apiVersion", 0, "expected %q, got %q", script.APIVersion, sc.APIVersion))
	}
	// D2: name
	if strings.TrimSpace(sc.Meta.Name) == "" {
		errs = append(errs, errorf(PhaseDomain, "meta.name", 0, "meta.name is required"))
	}

	// D3: declarations
	declared, declErrs := validateDeclarations(sc.Meta)
	errs = append(errs, declErrs...)

	// D4: block structure and command params
	prog, err := engine.Build(sc, reg)
	if err != nil {
		return append(errs, buildErrors(sc, err)...)
	}

	// D5: every reference resolves to a declared or created variable
	errs = append(errs, validateReferences(sc, prog, declared)...)

	// D6: meta variables re-created without if_exists
	// D7: sub-task files exist
	index := lineIndex(sc)
	prog.Walk(func(n *engine.Node) {
		path := stepPath(index[n.Step.Line])
		switch c := n.Command.(type) {
		case *commands.CreateVariable:
			if declared[c.Name] && c.IfExists == "" {
				errs = append(errs, warningf(PhaseDomain, path, n.Step.Line,
					"create_variable %q redeclares a meta variable and will fail; set if_exists", c.Name))
			}
		case *commands.RunTask:
			errs = append(errs, validateTaskPath(c.Path, baseDir, path, n.Step.Line)...)
		}
	})
	return errs
}

func validateDeclarations(meta script.Meta) (map[string]bool, []*ValidationError) {
	var errs []*ValidationError
	declared := make(map[string]bool)

	check := func(path, name, typ string, value any) {
		if !vars.ValidName(name) {
			errs = append(errs, errorf(PhaseDomain, path+".name", 0, "invalid variable name %q", name))
			return
		}
		if declared[name] {
			errs = append(errs, errorf(PhaseDomain, path+".name", 0, "%q is declared twice", name))
			return
		}
		declared[name] = true

		t := vars.Type(typ)
		if t == "" || value == nil {
			return
		}
		if !t.Compatible().Accepts(value) {
			if _, err := vars.Coerce(value, t); err != nil {
				errs = append(errs, errorf(PhaseDomain, path+".value", 0, "value of %q does not fit type %s", name, t))
			}
		}
	}
	for i, v := range meta.Variables {
		check(fmt.Sprintf("meta.variables[%d]", i), v.Name, v.Type, v.Value)
	}
	for i, a := range meta.Arguments {
		check(fmt.Sprintf("meta.arguments[%d]", i), a.Name, a.Type, a.Value)
		if a.Direction == string(vars.DirectionOut) && a.Value != nil {
			errs = append(errs, warningf(PhaseDomain, fmt.Sprintf("meta.arguments[%d].value", i), 0,
				"output-only argument %q has a default value", a.Name))
		}
	}
	return declared, errs
}

func buildErrors(sc *script.Script, err error) []*ValidationError {
	var bes engine.BuildErrors
	if !errors.As(err, &bes) {
		return []*ValidationError{errorf(PhaseDomain, "steps", 0, "%v", err)}
	}
	index := lineIndex(sc)
	errs := make([]*ValidationError, 0, len(bes))
	for _, be := range bes {
		errs = append(errs, errorf(PhaseDomain, stepPath(index[be.Line]), be.Line, "%s: %v", be.Command, be.Err))
	}
	return errs
}

func validateReferences(sc *script.Script, prog *engine.Program, declared map[string]bool) []*ValidationError {
	known := make(map[string]bool, len(declared))
	for n := range declared {
		known[n] = true
	}
	// Expressions in raw mode are only interpolated; set_preference makes
	// the mode unknowable statically, so treat it the same way.
	raw := sc.Meta.AutoCalculate != nil && !*sc.Meta.AutoCalculate
	prog.Walk(func(n *engine.Node) {
		if d, ok := n.Command.(engine.Declarer); ok {
			for _, name := range d.Declares() {
				known[name] = true
			}
		}
		if n.Spec.Kind == "set_preference" {
			raw = true
		}
	})
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}

	var errs []*ValidationError
	index := lineIndex(sc)
	prog.Walk(func(n *engine.Node) {
		r, ok := n.Command.(engine.Referrer)
		if !ok {
			return
		}
		path := stepPath(index[n.Step.Line])
		for _, sn := range r.Snippets() {
			if strings.TrimSpace(sn.Text) == "" {
				continue
			}
			if sn.Kind == engine.SnippetText || (sn.Kind == engine.SnippetValue && raw) {
				for _, ref := range eval.References(sn.Text) {
					if !known[ref] {
						errs = append(errs, errorf(PhaseDomain, path, n.Step.Line, "unresolved reference {%s}", ref))
					}
				}
				continue
			}
			if err := eval.Check(sn.Text, names); err != nil {
				errs = append(errs, errorf(PhaseDomain, path, n.Step.Line, "%v", err))
			}
		}
	})
	return errs
}

func validateTaskPath(p, baseDir, path string, line int) []*ValidationError {
	if baseDir == "" || len(eval.References(p)) > 0 {
		return nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	if _, err := os.Stat(p); err != nil {
		return []*ValidationError{warningf(PhaseDomain, path+".path", line, "task file %s not found", p)}
	}
	if _, err := script.LoadFile(p); err != nil {
		return []*ValidationError{errorf(PhaseDomain, path+".path", line, "task file %s: %v", p, err)}
	}
	return nil
}

// lineIndex maps step lines to their index in the flat step list.
func lineIndex(sc *script.Script) map[int]int {
	index := make(map[int]int, len(sc.Steps))
	for i, st := range sc.Steps {
		index[st.Line] = i
	}
	return index
}
