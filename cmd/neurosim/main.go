package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/qubicDB/neurosim/pkg/core"
	"github.com/qubicDB/neurosim/pkg/loader"
	"github.com/qubicDB/neurosim/pkg/logging"
	"github.com/qubicDB/neurosim/pkg/trace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cliOverrides core.CLIOverrides

	rootCmd := &cobra.Command{
		Use:   "neurosim",
		Short: "NeuroSim - discrete-event neuron network simulator",
		Long: "Reads a neuron network description and simulates it. Without a subcommand the\n" +
			"description is read from standard input and directives take effect as they arrive.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return interactive(cmd, &cliOverrides)
		},
		SilenceUsage: true,
	}

	// CLI flags - highest priority in the config hierarchy.
	f := rootCmd.PersistentFlags()

	cliOverrides.ConfigPath = f.StringP("config", "f", "", "Path to YAML config file (overrides NEUROSIM_CONFIG env)")
	cliOverrides.DefaultDelay = f.Float32("default-delay", core.DefaultSentinel, "Delay substituted for negative synapse delays")
	cliOverrides.MaxEvents = f.Int("max-events", 0, "Stop a run after this many events (0 = unlimited)")

	// Report flags
	cliOverrides.ReportInterval = f.Float32("report-interval", 0, "Sampler interval when the description has no output directive")
	cliOverrides.ReportLength = f.Float32("report-length", 0, "Sampler length when the description has no output directive")
	cliOverrides.NameWidth = f.Int("name-width", core.DefaultNameWidth, "Characters of each neuron name shown in the chart header")

	// Trace flags
	cliOverrides.TraceEnabled = f.Bool("trace", false, "Record a binary run trace")
	cliOverrides.TracePath = f.String("trace-path", "", "Trace output file (implies --trace)")
	cliOverrides.TraceCompress = f.Bool("trace-compress", true, "Gzip the trace payload when smaller")

	// Logging flags
	cliOverrides.LogLevel = f.String("log-level", "", "Log level: debug|info|warn|error")
	cliOverrides.LogFormat = f.String("log-format", "", "Log format: console|json")

	rootCmd.AddCommand(
		newRunCmd(&cliOverrides),
		newCheckCmd(&cliOverrides),
		newTraceCmd(),
	)
	return rootCmd
}

func newRunCmd(o *core.CLIOverrides) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE",
		Short: "Load a description file and simulate it",
		Long: "Loads FILE, obeying its run, output and quit directives. If the file ends\n" +
			"without run or quit, the network is simulated when it loaded cleanly and\n" +
			"printed otherwise.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return batch(cmd, o, args[0])
		},
	}
}

func newCheckCmd(o *core.CLIOverrides) *cobra.Command {
	return &cobra.Command{
		Use:          "check FILE",
		Short:        "Load a description file and print the resulting network without running it",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(cmd, o, args[0])
		},
	}
}

func newTraceCmd() *cobra.Command {
	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "Work with run trace files",
	}
	traceCmd.AddCommand(&cobra.Command{
		Use:          "inspect FILE",
		Short:        "Print a summary of a run trace",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := trace.NewCodec(false).ReadFile(args[0])
			if err != nil {
				return err
			}
			return t.WriteSummary(cmd.OutOrStdout())
		},
	})
	return traceCmd
}

// session is the resolved configuration plus everything built from it.
type session struct {
	cfg    *core.Config
	log    zerolog.Logger
	loader *loader.Loader
	rec    *trace.Recorder
}

// setup resolves the configuration and builds the logger and loader.
func setup(cmd *cobra.Command, o *core.CLIOverrides, out io.Writer) (*session, error) {
	// Resolve config path: --config flag > NEUROSIM_CONFIG env var
	configPath := ""
	if o.ConfigPath != nil && *o.ConfigPath != "" {
		configPath = *o.ConfigPath
	} else {
		configPath = os.Getenv("NEUROSIM_CONFIG")
	}

	// Load config through hierarchy: defaults -> YAML -> env vars
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Apply CLI flag overrides (only flags that were explicitly set)
	applyExplicitFlags(cmd.Flags(), cfg, o)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(cfg.Logging, cmd.ErrOrStderr())
	s := &session{
		cfg: cfg,
		log: log,
		loader: loader.New(
			loader.WithConfig(cfg),
			loader.WithLogger(log),
			loader.WithOutput(out),
		),
	}

	if cfg.Trace.Enabled {
		s.rec = trace.NewRecorder(s.loader.Network())
		s.loader.OnRun(s.rec.AddRun)
		log.Debug().Str("run_id", s.rec.RunID()).Str("path", cfg.Trace.Path).Msg("recording trace")
	}
	return s, nil
}

// writeTrace saves the recorded trace, if tracing is enabled.
func (s *session) writeTrace() error {
	if s.rec == nil {
		return nil
	}
	t := s.rec.Finish()
	if err := trace.NewCodec(s.cfg.Trace.Compress).WriteFile(s.cfg.Trace.Path, t); err != nil {
		return err
	}
	s.log.Info().
		Str("run_id", t.RunID).
		Str("path", s.cfg.Trace.Path).
		Int("fires", len(t.Fires)).
		Msg("trace written")
	return nil
}

func interactive(cmd *cobra.Command, o *core.CLIOverrides) error {
	// stdout carries charts and dumps
	core.PrintBanner(cmd.ErrOrStderr())

	s, err := setup(cmd, o, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := core.ShutdownContext(context.Background())
	defer stop()

	if err := s.loader.Load(ctx, cmd.InOrStdin()); err != nil {
		return err
	}
	return s.writeTrace()
}

func batch(cmd *cobra.Command, o *core.CLIOverrides, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open description: %w", err)
	}
	defer in.Close()

	s, err := setup(cmd, o, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := core.ShutdownContext(context.Background())
	defer stop()

	if err := s.loader.Load(ctx, in); err != nil {
		return err
	}
	if err := s.loader.Finish(ctx); err != nil {
		return err
	}
	return s.writeTrace()
}

func check(cmd *cobra.Command, o *core.CLIOverrides, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open description: %w", err)
	}
	defer in.Close()

	s, err := setup(cmd, o, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	// run and quit directives are ignored while checking
	s.loader.Ignore("run", "quit")
	if err := s.loader.Load(context.Background(), in); err != nil {
		return err
	}
	if err := s.loader.Network().Dump(cmd.OutOrStdout()); err != nil {
		return err
	}
	if n := s.loader.Diagnostics().Len(); n > 0 {
		return fmt.Errorf("%s: %d problem(s) found", path, n)
	}
	return nil
}

// applyExplicitFlags applies only the CLI flags that were explicitly set
// by the user on the command line. Unset flags are ignored so they do not
// override values resolved from YAML or environment variables.
func applyExplicitFlags(flags *pflag.FlagSet, cfg *core.Config, o *core.CLIOverrides) {
	overrides := core.CLIOverrides{}

	if flags.Changed("default-delay") {
		overrides.DefaultDelay = o.DefaultDelay
	}
	if flags.Changed("max-events") {
		overrides.MaxEvents = o.MaxEvents
	}
	if flags.Changed("report-interval") {
		overrides.ReportInterval = o.ReportInterval
	}
	if flags.Changed("report-length") {
		overrides.ReportLength = o.ReportLength
	}
	if flags.Changed("name-width") {
		overrides.NameWidth = o.NameWidth
	}
	if flags.Changed("trace") {
		overrides.TraceEnabled = o.TraceEnabled
	}
	if flags.Changed("trace-path") {
		overrides.TracePath = o.TracePath
	}
	if flags.Changed("trace-compress") {
		overrides.TraceCompress = o.TraceCompress
	}
	if flags.Changed("log-level") {
		overrides.LogLevel = o.LogLevel
	}
	if flags.Changed("log-format") {
		overrides.LogFormat = o.LogFormat
	}

	cfg.ApplyCLIOverrides(&overrides)
}
