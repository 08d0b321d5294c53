// Package sweep drives a batch of simulator runs over a (density,
// temperature) grid: it shows the plan, waits for confirmation, provisions
// the output tree and dispatches one simulator process per grid point.
//
// Runs are strictly sequential. The driver never starts a run before the
// previous one has exited.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/san-kum/mdsweep/internal/config"
	"github.com/san-kum/mdsweep/internal/confirm"
	"github.com/san-kum/mdsweep/internal/grid"
	"github.com/san-kum/mdsweep/internal/runner"
	"github.com/san-kum/mdsweep/internal/storage"
	"github.com/san-kum/mdsweep/internal/viz"
)

// RunRecord is the outcome of one dispatched grid point.
type RunRecord struct {
	Index     int
	Point     grid.Point
	Workspace storage.Workspace
	Result    runner.Result
}

type Report struct {
	SweepID     string
	Preparation storage.Preparation
	Records     []RunRecord
	Elapsed     time.Duration
}

func (r *Report) Failed() int {
	n := 0
	for _, rec := range r.Records {
		if !rec.Result.OK() {
			n++
		}
	}
	return n
}

func (r *Report) Durations() []time.Duration {
	ds := make([]time.Duration, len(r.Records))
	for i, rec := range r.Records {
		ds[i] = rec.Result.Duration
	}
	return ds
}

// Observer receives dispatch events, e.g. for a live progress view.
type Observer interface {
	RunStarted(index, total int, p grid.Point)
	RunFinished(index, total int, rec RunRecord)
	SweepFinished(rep *Report, err error)
}

type nopObserver struct{}

func (nopObserver) RunStarted(int, int, grid.Point) {}
func (nopObserver) RunFinished(int, int, RunRecord) {}
func (nopObserver) SweepFinished(*Report, error)    {}

type Driver struct {
	cfg      config.Config
	grid     *grid.Grid
	fs       afero.Fs
	store    *storage.Store
	runner   runner.Runner
	out      io.Writer
	logger   *zap.Logger
	observer Observer
	styles   viz.Styles
}

type Option func(*Driver)

// WithFs provisions on fsys instead of the host filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(d *Driver) { d.fs = fsys }
}

func WithRunner(r runner.Runner) Option {
	return func(d *Driver) { d.runner = r }
}

// WithOutput redirects progress lines, normally written to stdout.
func WithOutput(w io.Writer) Option {
	return func(d *Driver) { d.out = w }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

func WithStyles(s viz.Styles) Option {
	return func(d *Driver) { d.styles = s }
}

// New builds a driver for cfg. Without WithRunner the simulator binary named
// in cfg is executed with inherited stdout and stderr.
func New(cfg config.Config, opts ...Option) *Driver {
	cfg = cfg.Resolved()
	d := &Driver{
		cfg:      cfg,
		grid:     grid.New(cfg.Density, cfg.Temperature),
		fs:       afero.NewOsFs(),
		out:      os.Stdout,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		styles:   viz.DefaultStyles,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runner == nil {
		e := runner.NewExec(cfg.Simulator)
		e.Stdout = os.Stdout
		e.Stderr = os.Stderr
		e.Timeout = cfg.RunTimeout
		d.runner = e
	}
	d.store = storage.New(d.fs, cfg.OutputDirectory)
	return d
}

func (d *Driver) Plan() Plan {
	return NewPlan(d.cfg)
}

// Run shows the plan, asks for confirmation on in and, if granted, executes
// the sweep. A refusal returns ErrAborted without touching the filesystem.
func (d *Driver) Run(ctx context.Context, in io.Reader) (*Report, error) {
	if err := d.Confirm(in); err != nil {
		return nil, err
	}
	return d.Execute(ctx)
}

// Confirm shows the plan and reads the answer from in. It returns ErrAborted
// unless the answer is affirmative.
func (d *Driver) Confirm(in io.Reader) error {
	fmt.Fprint(d.out, d.Plan().Render(d.styles))

	ok, err := confirm.Ask(in, d.out, "Ready to proceed?")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(d.out, "%s Simulation will NOT proceed\n", d.styles.Tag.Render(tag))
		fmt.Fprintln(d.out, "No files/directories have been created or destroyed")
		return ErrAborted
	}
	fmt.Fprintf(d.out, "%s Simulation %s proceed\n", d.styles.Tag.Render(tag), d.styles.Success.Render("WILL"))
	return nil
}

// Execute provisions the output directory and dispatches every grid point
// without asking for confirmation.
func (d *Driver) Execute(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep := &Report{SweepID: uuid.NewString()}
	if err := ctx.Err(); err != nil {
		d.observer.SweepFinished(rep, err)
		return rep, err
	}
	log := d.logger.With(zap.String("sweep_id", rep.SweepID))

	log.Info("sweep started",
		zap.String("output_directory", d.cfg.OutputDirectory),
		zap.Int("runs", d.grid.Len()),
		zap.Int("cellcount", d.cfg.CellCount),
		zap.Bool("halt_on_failure", d.cfg.HaltOnFailure))

	prep, err := d.Provision()
	rep.Preparation = prep
	if err == nil {
		err = d.dispatch(ctx, rep, log)
	}
	rep.Elapsed = time.Since(start)

	t := d.styles.Tag.Render(tag)
	elapsed := rep.Elapsed.Round(time.Millisecond)
	switch {
	case err == nil:
		log.Info("sweep finished",
			zap.Duration("elapsed", rep.Elapsed),
			zap.Int("failed", rep.Failed()))
		fmt.Fprintf(d.out, "%s Sweep finished in %v (%d runs, %d failed)\n",
			t, elapsed, len(rep.Records), rep.Failed())
	default:
		fields := []zap.Field{zap.Error(err), zap.Int("dispatched", len(rep.Records))}
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrRunFailed) {
			log.Warn("sweep stopped", fields...)
		} else {
			log.Error("sweep stopped", fields...)
		}
		fmt.Fprintf(d.out, "%s Sweep %s after %v (%d runs, %d failed): %v\n",
			t, d.styles.Danger.Render("stopped"), elapsed, len(rep.Records), rep.Failed(), err)
	}
	if chart := viz.DurationChart(rep.Durations()); chart != "" {
		fmt.Fprintln(d.out, chart)
	}

	d.observer.SweepFinished(rep, err)
	return rep, err
}

// Provision prepares the sweep root once: create it if missing, purge it if
// requested, and write the aggregate measurements header.
func (d *Driver) Provision() (storage.Preparation, error) {
	dir := d.cfg.OutputDirectory
	t := d.styles.Tag.Render(tag)

	prep, err := d.store.Prepare(d.cfg.RemoveData)
	if prep.Created {
		fmt.Fprintf(d.out, "%s %s does not exist\n", t, dir)
		fmt.Fprintf(d.out, "%s Creating %s\n", t, dir)
	}
	if prep.PurgeSkipped {
		fmt.Fprintf(d.out, "%s %s\n", t, d.styles.Warning.Render("No need to remove files from "+dir))
	}
	if len(prep.Purged) > 0 {
		fmt.Fprintf(d.out, "%s Removed %d entries from %s\n", t, len(prep.Purged), dir)
	}
	if err != nil {
		return prep, err
	}

	fmt.Fprintf(d.out, "%s Beginning simulation now...\n", t)
	return prep, nil
}

func (d *Driver) dispatch(ctx context.Context, rep *Report, log *zap.Logger) error {
	total := d.grid.Len()
	t := d.styles.Tag.Render(tag)

	return d.grid.Each(func(i int, p grid.Point) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		ws, err := d.store.EnsureWorkspace(p)
		if err != nil {
			return err
		}
		if ws.Fresh() {
			log.Debug("workspace provisioned", zap.String("dir", ws.Dir), zap.Strings("created", ws.Created))
		}

		d.observer.RunStarted(i, total, p)
		fmt.Fprintf(d.out, "%s  Executing with density %.3f and temperature %.3f\n", t, p.Density, p.Temperature)

		res := d.runner.Run(ctx, runner.Invocation{
			CellCount:       d.cfg.CellCount,
			Density:         p.Density,
			Temperature:     p.Temperature,
			OutputDirectory: d.cfg.OutputDirectory,
			Prefix:          ws.Prefix,
		})

		rec := RunRecord{Index: i, Point: p, Workspace: ws, Result: res}
		rep.Records = append(rep.Records, rec)
		d.observer.RunFinished(i, total, rec)

		fields := []zap.Field{
			zap.Int("run", i+1),
			zap.Int("of", total),
			zap.Float64("density", p.Density),
			zap.Float64("temperature", p.Temperature),
			zap.Int("exit_code", res.ExitCode),
			zap.Duration("duration", res.Duration),
		}
		if res.OK() {
			log.Info("run finished", fields...)
			return nil
		}

		log.Warn("run failed", append(fields, zap.NamedError("cause", res.Err))...)
		if d.cfg.HaltOnFailure {
			return &RunError{Index: i, Point: p, Result: res}
		}
		return nil
	})
}
