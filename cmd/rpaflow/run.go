package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/pkg/config"
	"github.com/rpaflow/rpaflow/pkg/history"
	"github.com/rpaflow/rpaflow/pkg/kernel/commands"
	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/eval"
	"github.com/rpaflow/rpaflow/pkg/kernel/trace"
	kvalidate "github.com/rpaflow/rpaflow/pkg/kernel/validate"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
)

type runOptions struct {
	args        []string
	tracePath   string
	traceDir    string
	history     string
	noHistory   bool
	raw         bool
	watch       bool
	metricsAddr string
	timeout     time.Duration
	asJSON      bool
}

func (a *app) runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [script.yaml]",
		Short: "Validate and run a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := newRunner(ctx, a.cfg, opts, a.logger, a.stdout, a.stderr)
			if err != nil {
				return err
			}
			defer r.close()

			if opts.watch {
				return r.watch(ctx, args[0])
			}
			res, err := r.runFile(ctx, args[0])
			if err != nil {
				return err
			}
			return res.Error
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.args, "arg", nil, "Set a script argument (name=value), repeatable")
	f.StringVar(&opts.tracePath, "trace", "", "Write the trace to this JSONL file")
	f.StringVar(&opts.traceDir, "trace-dir", "", "Write one trace file per run into this directory")
	f.StringVar(&opts.history, "history", "", "Record the run in this SQLite database")
	f.BoolVar(&opts.noHistory, "no-history", false, "Do not record the run")
	f.BoolVar(&opts.raw, "raw", false, "Start with auto-calculate off")
	f.BoolVar(&opts.watch, "watch", false, "Re-run the script whenever it changes")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.DurationVar(&opts.timeout, "timeout", 0, "Cancel a run after this long (0 means no limit)")
	f.BoolVar(&opts.asJSON, "json", false, "Print the run result as JSON")
	return cmd
}

// runner owns the resources shared by every run of one CLI invocation.
type runner struct {
	opts   runOptions
	cfg    config.Config
	logger zerolog.Logger
	out    io.Writer
	errOut io.Writer

	interp    *engine.Interpreter
	evaluator *eval.Evaluator
	tracer    *telemetry.Tracer
	history   *history.Store
}

func newRunner(ctx context.Context, cfg config.Config, opts runOptions, logger zerolog.Logger, out, errOut io.Writer) (*runner, error) {
	if opts.raw {
		cfg.RawMode = true
	}
	if opts.traceDir != "" {
		cfg.TraceDir = opts.traceDir
	}
	if opts.history != "" {
		cfg.History = opts.history
	}
	if opts.noHistory {
		cfg.History = ""
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.metricsAddr
	}

	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	tracer, err := telemetry.NewTracer(cfg.Tracing, "rpaflow", version)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	interp := engine.NewInterpreter(commands.NewRegistry())
	interp.Metrics = metrics
	interp.Tracer = tracer.Tracer()

	r := &runner{
		opts:      opts,
		cfg:       cfg,
		logger:    logger,
		out:       out,
		errOut:    errOut,
		interp:    interp,
		evaluator: eval.New(cfg.EvaluatorCacheSize),
		tracer:    tracer,
	}

	if cfg.History != "" {
		store, err := history.Open(ctx, cfg.History)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("history: %w", err)
		}
		r.history = store
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		addr := cfg.Metrics.Addr
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				logger.Error().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
			}
		}()
		logger.Info().Str("addr", addr).Msg("serving metrics")
	}
	return r, nil
}

func (r *runner) close() {
	timeout := r.cfg.Tracing.ExportTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := r.tracer.Shutdown(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("flushing spans")
	}
	if r.history != nil {
		_ = r.history.Close()
	}
}

// runFile validates and runs one script. Validation failures and setup
// errors are returned; the run's own failure is in the result.
func (r *runner) runFile(ctx context.Context, path string) (*engine.RunResult, error) {
	sc, issues := kvalidate.ValidateFile(path, r.interp.Registry)
	if len(issues) > 0 {
		printValidation(io.Discard, r.errOut, path, sc, issues)
	}
	if kvalidate.HasErrors(issues) {
		return nil, errors.New("validation failed")
	}

	args, err := parseArgs(r.opts.args)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	tw, err := r.openTrace(runID)
	if err != nil {
		return nil, err
	}
	defer tw.Close()

	in := engine.NewInstance(engine.InstanceConfig{
		RunID:     runID,
		RawMode:   r.cfg.RawMode,
		Evaluator: r.evaluator,
		Logger:    telemetry.ComponentLogger(r.logger, "engine"),
		Trace:     tw,
		Progress: func(msg string) {
			if !r.opts.asJSON {
				fmt.Fprintf(r.out, "  %s %s\n", dimStyle.Render("›"), msg)
			}
		},
		BaseDir: filepath.Dir(path),
	})

	if r.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.timeout)
		defer cancel()
	}

	started := time.Now()
	res := r.interp.RunScript(ctx, sc, in, args)
	// stop_script cancels cleanly; a timeout or interrupt is a failure.
	if res.Error == nil && res.Status == engine.StatusCancelled && ctx.Err() != nil {
		res.Error = fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	r.printResult(sc.Meta.Name, res)

	if r.history != nil {
		if err := r.history.Record(context.WithoutCancel(ctx), sc.Meta.Name, started, res); err != nil {
			r.logger.Warn().Err(err).Str("run_id", runID).Msg("recording run history")
		}
	}
	return res, nil
}

func (r *runner) openTrace(runID string) (*trace.Writer, error) {
	path := r.opts.tracePath
	if path == "" && r.cfg.TraceDir != "" {
		if err := os.MkdirAll(r.cfg.TraceDir, 0o755); err != nil {
			return nil, fmt.Errorf("trace dir: %w", err)
		}
		path = filepath.Join(r.cfg.TraceDir, runID+".jsonl")
	}
	if path == "" {
		return nil, nil
	}
	return trace.NewFileWriter(path, runID)
}

type runSummary struct {
	RunID    string                 `json:"run_id"`
	Script   string                 `json:"script"`
	Status   string                 `json:"status"`
	Error    string                 `json:"error,omitempty"`
	Kind     string                 `json:"error_kind,omitempty"`
	Duration string                 `json:"duration"`
	Reported []engine.ReportedError `json:"reported,omitempty"`
	Outputs  map[string]any         `json:"outputs,omitempty"`
}

func (r *runner) printResult(name string, res *engine.RunResult) {
	if r.opts.asJSON {
		sum := runSummary{
			RunID:    res.RunID,
			Script:   name,
			Status:   res.Status,
			Duration: res.Duration.Truncate(time.Millisecond).String(),
			Reported: res.Reported,
			Outputs:  res.Outputs,
		}
		if res.Error != nil {
			sum.Error = res.Error.Error()
			sum.Kind = engine.FailureKind(res.Error)
		}
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		return
	}

	style := statusStyle(res.Status)
	fmt.Fprintf(r.out, "%s %s  %s\n",
		style.Render(statusIcon(res.Status)+" "+res.Status),
		name,
		dimStyle.Render(res.Duration.Truncate(time.Millisecond).String()))
	if res.Error != nil {
		fmt.Fprintf(r.out, "  %s\n", failStyle.Render(res.Error.Error()))
	}
	if len(res.Reported) > 0 {
		fmt.Fprintf(r.out, "  %s\n", warnStyle.Render(fmt.Sprintf("%d reported error(s)", len(res.Reported))))
		for _, re := range res.Reported {
			fmt.Fprintf(r.out, "    line %d (%s): %s\n", re.Line, re.Command, re.Message)
		}
	}
	if len(res.Outputs) > 0 {
		names := make([]string, 0, len(res.Outputs))
		for n := range res.Outputs {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			text, err := eval.Stringify(res.Outputs[n])
			if err != nil {
				text = fmt.Sprint(res.Outputs[n])
			}
			fmt.Fprintf(r.out, "  %s = %s\n", n, text)
		}
	}
}

// parseArgs turns repeated name=value flags into script arguments. Values
// stay text; they are coerced to the declared argument types.
func parseArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --arg %q: expected name=value", p)
		}
		if _, dup := args[name]; dup {
			return nil, fmt.Errorf("argument %q given twice", name)
		}
		args[name] = value
	}
	return args, nil
}
