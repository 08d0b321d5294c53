package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/mdsweep/internal/config"
	"github.com/san-kum/mdsweep/internal/logging"
	"github.com/san-kum/mdsweep/internal/runner"
	"github.com/san-kum/mdsweep/internal/sweep"
	"github.com/san-kum/mdsweep/internal/tui"
	"github.com/san-kum/mdsweep/internal/viz"
)

type options struct {
	removeData    bool
	cellCount     int
	density       config.Range
	temperature   config.Range
	outputDir     string
	simulator     string
	configFile    string
	preset        string
	haltOnFailure bool
	runTimeout    time.Duration
	live          bool
	theme         string
	log           logging.Config
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &options{
		cellCount:   config.DefaultCellCount,
		density:     config.DefaultDensity,
		temperature: config.DefaultTemperature,
		simulator:   config.DefaultSimulator,
		theme:       viz.ThemeDefault.Name,
		log:         logging.DefaultConfig(),
	}

	rootCmd := &cobra.Command{
		Use:           "mdsweep",
		Short:         "batch driver for md-simulate over a density/temperature grid",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts, in, out, errOut)
		},
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	f := rootCmd.PersistentFlags()
	f.BoolVarP(&opts.removeData, "remove-data", "r", false, "delete existing contents of the output directory before running")
	f.IntVarP(&opts.cellCount, "cellcount", "c", opts.cellCount, "number of fcc unit cells per box edge")
	f.VarP(&opts.density, "density-linspace", "d", "density range as [start, stop, count]")
	f.VarP(&opts.temperature, "temperature-linspace", "t", "temperature range as [start, stop, count]")
	f.StringVarP(&opts.outputDir, "output-directory", "o", "", "output directory (default test_data_cellcount_<cellcount>)")
	f.StringVar(&opts.simulator, "simulator", opts.simulator, "path to the simulator binary")
	f.StringVar(&opts.configFile, "config", "", "config file path (yaml)")
	f.StringVar(&opts.preset, "preset", "", "use preset configuration")
	f.BoolVar(&opts.haltOnFailure, "halt-on-failure", false, "stop the sweep at the first failed run")
	f.DurationVar(&opts.runTimeout, "run-timeout", 0, "kill a run after this long (0 disables)")

	rootCmd.Flags().BoolVar(&opts.live, "tui", false, "show a live progress view instead of progress lines")
	rootCmd.Flags().StringVar(&opts.theme, "theme", opts.theme, "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")
	rootCmd.Flags().StringVar(&opts.log.Level, "log-level", opts.log.Level, "log level")
	rootCmd.Flags().StringVar(&opts.log.Format, "log-format", opts.log.Format, "log format (console, json)")
	rootCmd.Flags().StringVar(&opts.log.File, "log-file", "", "also write JSON logs to this rotated file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "presets",
			Short: "list available presets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return listPresets(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "plan",
			Short: "print the sweep plan without running it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := resolveConfig(cmd, opts)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), sweep.NewPlan(cfg).Render(viz.PlainStyles))
				return nil
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "print the resolved configuration as yaml",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := resolveConfig(cmd, opts)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(cfg)
			},
		},
	)

	return rootCmd
}

// resolveConfig layers defaults, preset, config file and explicitly set
// flags, in that order.
func resolveConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg := config.DefaultConfig()

	if opts.preset != "" {
		cfg = config.GetPreset(opts.preset)
		if cfg == nil {
			return config.Config{}, fmt.Errorf("unknown preset %q (available: %s)",
				opts.preset, strings.Join(config.ListPresets(), ", "))
		}
	}

	if opts.configFile != "" {
		loaded, err := config.LoadInto(opts.configFile, cfg)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("cellcount") {
		cfg.CellCount = opts.cellCount
	}
	if flags.Changed("density-linspace") {
		cfg.Density = opts.density
	}
	if flags.Changed("temperature-linspace") {
		cfg.Temperature = opts.temperature
	}
	if flags.Changed("output-directory") {
		cfg.OutputDirectory = opts.outputDir
	}
	if flags.Changed("remove-data") {
		cfg.RemoveData = opts.removeData
	}
	if flags.Changed("simulator") {
		cfg.Simulator = opts.simulator
	}
	if flags.Changed("halt-on-failure") {
		cfg.HaltOnFailure = opts.haltOnFailure
	}
	if flags.Changed("run-timeout") {
		cfg.RunTimeout = opts.runTimeout
	}

	resolved := cfg.Resolved()
	if err := resolved.Validate(); err != nil {
		return config.Config{}, err
	}
	return resolved, nil
}

func runSweep(cmd *cobra.Command, opts *options, in io.Reader, out, errOut io.Writer) error {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	var console zapcore.WriteSyncer = zapcore.AddSync(errOut)
	if opts.live {
		console = zapcore.AddSync(io.Discard)
	}
	logger, err := logging.New(opts.log, zapcore.Lock(console))
	if err != nil {
		return err
	}
	defer logger.Sync()

	styles := viz.StylesFor(viz.GetTheme(opts.theme), out)
	d := sweep.New(cfg,
		sweep.WithOutput(out),
		sweep.WithLogger(logger),
		sweep.WithStyles(styles))

	// Signals keep their default behaviour at the prompt.
	if err := d.Confirm(in); err != nil {
		return exitError(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.live {
		_, err = d.Execute(ctx)
		return err
	}

	// The view owns the terminal, so simulator output and progress lines go
	// to the log.
	simOut := zap.NewStdLog(logger.Named("simulator")).Writer()
	progressOut := zap.NewStdLog(logger.Named("progress")).Writer()
	exec := runner.NewExec(cfg.Simulator)
	exec.Stdout = simOut
	exec.Stderr = simOut
	exec.Timeout = cfg.RunTimeout

	_, err = tui.Run(ctx, d.Plan().Runs, styles,
		func(ctx context.Context, obs sweep.Observer) (*sweep.Report, error) {
			return sweep.New(cfg,
				sweep.WithOutput(progressOut),
				sweep.WithLogger(logger),
				sweep.WithStyles(viz.PlainStyles),
				sweep.WithRunner(exec),
				sweep.WithObserver(obs),
			).Execute(ctx)
		},
		tea.WithInput(in), tea.WithOutput(out))
	return err
}

// exitError maps a declined prompt to a clean exit.
func exitError(err error) error {
	if errors.Is(err, sweep.ErrAborted) {
		return nil
	}
	return err
}

func listPresets(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCELLS\tDENSITY\tTEMPERATURE\tRUNS")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n",
			name, p.CellCount, p.Density, p.Temperature, p.Density.Count*p.Temperature.Count)
	}
	return w.Flush()
}
