package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/pkg/kernel/commands"
	"github.com/rpaflow/rpaflow/pkg/kernel/script"
	kvalidate "github.com/rpaflow/rpaflow/pkg/kernel/validate"
)

type validateReport struct {
	File   string                       `json:"file"`
	Valid  bool                         `json:"valid"`
	Issues []*kvalidate.ValidationError `json:"issues,omitempty"`
}

func (a *app) validateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate [script.yaml...]",
		Short: "Validate scripts (structural, semantic and domain checks)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := commands.NewRegistry()
			reports := make([]validateReport, 0, len(args))
			failed := 0
			for _, path := range args {
				sc, issues := kvalidate.ValidateFile(path, reg)
				valid := !kvalidate.HasErrors(issues)
				if !valid {
					failed++
				}
				reports = append(reports, validateReport{File: path, Valid: valid, Issues: issues})
				if !asJSON {
					printValidation(a.stdout, a.stderr, path, sc, issues)
				}
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d script(s) failed validation", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}

// printValidation writes the success line to out and every issue to errOut,
// warnings before errors.
func printValidation(out, errOut io.Writer, path string, sc *script.Script, issues []*kvalidate.ValidationError) {
	var errs, warnings []*kvalidate.ValidationError
	for _, e := range issues {
		if e.Severity == kvalidate.SeverityWarning {
			warnings = append(warnings, e)
		} else {
			errs = append(errs, e)
		}
	}
	for _, w := range warnings {
		fmt.Fprintf(errOut, "  %s [%s] %s\n", warnStyle.Render("⚠"), w.Phase, w.Message)
		printLocation(errOut, "    ", w)
	}
	if len(errs) > 0 {
		fmt.Fprintf(errOut, "%s %s: %d error(s)\n", failStyle.Render("✗"), path, len(errs))
		for i, e := range errs {
			fmt.Fprintf(errOut, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			printLocation(errOut, "     ", e)
		}
		return
	}
	fmt.Fprintf(out, "%s %s is valid (%d steps)\n", okStyle.Render("✓"), sc.Meta.Name, len(sc.Steps))
}

func printLocation(w io.Writer, indent string, e *kvalidate.ValidationError) {
	switch {
	case e.Path != "" && e.Line > 0:
		fmt.Fprintf(w, "%s%s\n", indent, dimStyle.Render(fmt.Sprintf("at: %s (line %d)", e.Path, e.Line)))
	case e.Path != "":
		fmt.Fprintf(w, "%s%s\n", indent, dimStyle.Render("at: "+e.Path))
	case e.Line > 0:
		fmt.Fprintf(w, "%s%s\n", indent, dimStyle.Render(fmt.Sprintf("at: line %d", e.Line)))
	}
}
