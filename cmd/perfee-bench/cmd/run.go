package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/perfee/internal/bench"
	"github.com/psantana5/perfee/internal/shutdown"
	"github.com/psantana5/perfee/pkg/logging"
	"github.com/psantana5/perfee/pkg/metrics"
	"github.com/psantana5/perfee/pkg/perfee"
	"github.com/psantana5/perfee/pkg/sink"
	"github.com/psantana5/perfee/pkg/stats"
	"github.com/psantana5/perfee/pkg/tracing"
)

var (
	benchOpts    = bench.DefaultOptions()
	runTimeout   time.Duration
	showTable    bool
	showMetrics  bool
	showProcess  bool
	quiet        bool
	linesToLog   bool
	lineRate     float64
	lineBurst    int
	traceEnabled bool
	otlpEndpoint string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a synthetic workload and print the perfee report",
	Long: `Starts --workers goroutines that each measure --ops operations against a
single perfee engine. Operations are grouped under --groups names, a share of
them is measured as single entries and a share is cancelled instead of closed.

Examples:
  perfee-bench run --workers 16 --ops 1000 --table
  perfee-bench run --strategy auto_flush --threshold 1ms --rate 5
  perfee-bench run --metrics --trace --otlp-endpoint localhost:4318`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.IntVarP(&benchOpts.Workers, "workers", "w", benchOpts.Workers, "number of concurrent workers")
	f.IntVarP(&benchOpts.Ops, "ops", "n", benchOpts.Ops, "operations per worker")
	f.IntVar(&benchOpts.Groups, "groups", benchOpts.Groups, "number of group names")
	f.Float64Var(&benchOpts.SingleRatio, "single-ratio", benchOpts.SingleRatio, "share of operations measured as single entries")
	f.Float64Var(&benchOpts.CancelRatio, "cancel-ratio", benchOpts.CancelRatio, "share of operations cancelled instead of closed")
	f.DurationVar(&benchOpts.MinSleep, "min-sleep", benchOpts.MinSleep, "minimum simulated work per operation")
	f.DurationVar(&benchOpts.MaxSleep, "max-sleep", benchOpts.MaxSleep, "maximum simulated work per operation")
	f.Uint64Var(&benchOpts.Seed, "seed", benchOpts.Seed, "random seed")
	f.DurationVar(&runTimeout, "timeout", 0, "stop the workload after this duration (0 runs to completion)")

	f.BoolVar(&showTable, "table", false, "print group aggregates as a table")
	f.BoolVar(&showMetrics, "metrics", false, "print group aggregates in Prometheus text format")
	f.BoolVar(&showProcess, "process", true, "print process memory usage after the run")
	f.BoolVarP(&quiet, "quiet", "q", false, "do not write perfee lines")
	f.BoolVar(&linesToLog, "log-lines", false, "write perfee lines through the diagnostics logger instead of stdout")
	f.Float64Var(&lineRate, "rate", 0, "max perfee lines per second per group (0 disables limiting)")
	f.IntVar(&lineBurst, "burst", 10, "burst allowed by --rate")

	f.BoolVar(&traceEnabled, "trace", false, "export every completed entry as an OpenTelemetry span")
	f.StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4318", "OTLP HTTP endpoint used by --trace")
}

func runBench(cmd *cobra.Command, args []string) error {
	log := newLogger()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var limiter *sink.Limiter
	if !quiet {
		lines := sink.Writer(out)
		if linesToLog {
			lines = log.Sink(logging.INFO)
		}
		if lineRate > 0 {
			limiter = sink.RateLimited(lines, lineRate, lineBurst, sink.GroupKey)
			lines = limiter.Logger()
		}
		if err := cfg.AddLogger(lines); err != nil {
			return err
		}
	}

	engine, err := perfee.New(cfg, perfee.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	provider, err := tracing.InitTracer(tracing.Config{
		ServiceName:  "perfee-bench",
		OTLPEndpoint: otlpEndpoint,
		Enabled:      traceEnabled,
		Logger:       log,
	})
	if err != nil {
		_ = engine.Shutdown()
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if traceEnabled {
		observer := tracing.NewSpanObserver(provider.Tracer(), attribute.String("perfee.engine", engine.ID()))
		if err := cfg.AddObserver(observer); err != nil {
			return err
		}
	}

	// hooks run in reverse order: the engine is closed before the tracer flushes
	mgr := shutdown.New(10*time.Second, log)
	mgr.Register("tracer", provider.Shutdown)
	mgr.Register("engine", func(context.Context) error { return engine.Shutdown() })

	driver, err := bench.NewDriver(engine, benchOpts, log)
	if err != nil {
		_ = mgr.Shutdown()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	res := driver.Run(ctx)
	res.LogSummary(log)

	engine.GetLogs()
	snap := engine.Snapshot()

	if showTable {
		if err := writeGroupTable(out, snap.Groups); err != nil {
			log.Warn("failed to render group table", map[string]interface{}{"error": err.Error()})
		}
	}
	if showMetrics {
		if err := writeMetrics(out, engine, res.RunID); err != nil {
			log.Warn("failed to write metrics", map[string]interface{}{"error": err.Error()})
		}
	}
	if showProcess {
		writeProcessUsage(out, log)
	}
	if limiter != nil && limiter.Dropped() > 0 {
		fmt.Fprintf(out, "\nRate limited lines dropped: %d\n", limiter.Dropped())
	}
	fmt.Fprintf(out, "\nRun %s [%s]: %d operations (%d closed, %d cancelled) in %s, %.0f ops/s\n",
		res.RunID, activeStrategy(engine), res.Total(), res.Closed, res.Cancelled, res.Duration.Round(time.Millisecond), res.OpsPerSecond())

	return mgr.Shutdown()
}

func writeGroupTable(w io.Writer, groups []stats.GroupStats) error {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No group entries")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Group", "Hits", "Total", "Mean", "StdDev", "Max")
	for _, g := range groups {
		if err := table.Append(
			g.Name,
			fmt.Sprintf("%d", g.Hits),
			g.Cumulative.String(),
			g.Mean.String(),
			g.StdDev.String(),
			g.Max.String(),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeMetrics(w io.Writer, source metrics.SnapshotSource, runID string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(source, prometheus.Labels{"run": runID})); err != nil {
		return err
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	fmt.Fprintln(w)
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func writeProcessUsage(w io.Writer, log *logging.Logger) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debug("process lookup failed", map[string]interface{}{"error": err.Error()})
		return
	}
	info, err := p.MemoryInfo()
	if err != nil {
		log.Debug("process memory unavailable", map[string]interface{}{"error": err.Error()})
		return
	}

	line := fmt.Sprintf("\nProcess RSS: %.1f MiB", float64(info.RSS)/(1<<20))
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		line += fmt.Sprintf(" (%.3f%% of %.1f GiB)", 100*float64(info.RSS)/float64(vm.Total), float64(vm.Total)/(1<<30))
	}
	fmt.Fprintln(w, line)
}

// activeStrategy reports the strategy name used in the run summary
func activeStrategy(e *perfee.Engine) string {
	if k := e.Strategy(); k != "" {
		return string(k)
	}
	return "custom"
}
