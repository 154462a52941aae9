package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/pkg/history"
)

func (a *app) historyCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "History database (default: history from the config file)")

	open := func(ctx context.Context) (*history.Store, error) {
		path := dbPath
		if path == "" {
			path = a.cfg.History
		}
		if path == "" {
			return nil, errors.New("no history database: pass --db or set history in the config file")
		}
		return history.Open(ctx, path)
	}

	var (
		script string
		limit  int
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.List(cmd.Context(), script, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return a.writeJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.stdout, dimStyle.Render("no runs recorded"))
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(a.stdout, "%s  %s  %s  %s  %s\n",
					statusStyle(run.Status).Render(column(statusIcon(run.Status)+" "+run.Status, 11)),
					run.ID,
					dimStyle.Render(run.StartedAt.Local().Format(time.DateTime)),
					run.Script,
					dimStyle.Render(run.Duration.String()))
			}
			return nil
		},
	}
	list.Flags().StringVar(&script, "script", "", "Only runs of this script")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	list.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	show := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show one run with its reported errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return a.writeJSON(run)
			}
			a.printRun(run)
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s pruned %d run(s)\n", okStyle.Render("✓"), n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of the runs to delete")

	cmd.AddCommand(list, show, prune)
	return cmd
}

func (a *app) printRun(run *history.Run) {
	fmt.Fprintf(a.stdout, "%s %s\n", statusStyle(run.Status).Render(statusIcon(run.Status)+" "+run.Status), headerStyle.Render(run.Script))
	fmt.Fprintf(a.stdout, "  run:      %s\n", run.ID)
	fmt.Fprintf(a.stdout, "  started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(a.stdout, "  duration: %s\n", run.Duration)
	if run.Error != "" {
		fmt.Fprintf(a.stdout, "  error:    %s %s\n", failStyle.Render(run.Error), dimStyle.Render("("+run.ErrorKind+")"))
	}
	for _, re := range run.Reported {
		fmt.Fprintf(a.stdout, "  %s line %d (%s): %s\n", warnStyle.Render("⚠"), re.Line, re.Command, re.Message)
	}
	if len(run.Outputs) > 0 {
		data, _ := json.Marshal(run.Outputs)
		fmt.Fprintf(a.stdout, "  outputs:  %s\n", data)
	}
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
