package sweep_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/mdsweep/internal/config"
	"github.com/san-kum/mdsweep/internal/grid"
	"github.com/san-kum/mdsweep/internal/runner"
	"github.com/san-kum/mdsweep/internal/storage"
	"github.com/san-kum/mdsweep/internal/sweep"
	"github.com/san-kum/mdsweep/internal/viz"
)

// recorder is a stub simulator that writes nothing.
type recorder struct {
	calls []runner.Invocation
	fail  func(i int) bool
}

func (r *recorder) Run(_ context.Context, inv runner.Invocation) runner.Result {
	i := len(r.calls)
	r.calls = append(r.calls, inv)
	if r.fail != nil && r.fail(i) {
		return runner.Result{ExitCode: 1, Duration: time.Millisecond}
	}
	return runner.Result{Duration: time.Millisecond}
}

type events struct {
	started  []grid.Point
	finished []sweep.RunRecord
	done     int
	err      error
}

func (e *events) RunStarted(_, _ int, p grid.Point)         { e.started = append(e.started, p) }
func (e *events) RunFinished(_, _ int, rec sweep.RunRecord) { e.finished = append(e.finished, rec) }
func (e *events) SweepFinished(_ *sweep.Report, err error)  { e.done++; e.err = err }

func singlePoint(dir string) config.Config {
	return config.Config{
		CellCount:       2,
		Density:         config.Range{Start: 1, Stop: 1, Count: 1},
		Temperature:     config.Range{Start: 0.5, Stop: 0.5, Count: 1},
		OutputDirectory: dir,
	}
}

var _ = Describe("Plan", func() {
	It("summarizes runs, particles and the purge warning", func() {
		cfg := config.Config{
			CellCount:   6,
			Density:     config.Range{Start: 0.2, Stop: 1, Count: 5},
			Temperature: config.Range{Start: 0.2, Stop: 0.8, Count: 4},
			RemoveData:  true,
		}
		plan := sweep.NewPlan(cfg)

		Expect(plan.Runs).To(Equal(20))
		Expect(plan.Particles).To(Equal(864))
		Expect(plan.OutputDirectory).To(Equal("test_data_cellcount_6"))

		text := plan.Render(viz.PlainStyles)
		Expect(text).To(ContainSubstring("[0.2 0.4 0.6 0.8 1]"))
		Expect(text).To(ContainSubstring("total of 20 runs with 864 particles each"))
		Expect(text).To(ContainSubstring("All files will be stored in test_data_cellcount_6"))
		Expect(text).To(ContainSubstring("DELETE all files in test_data_cellcount_6"))
	})

	It("omits the purge warning when data is kept", func() {
		text := sweep.NewPlan(singlePoint("out")).Render(viz.PlainStyles)
		Expect(text).NotTo(ContainSubstring("DELETE"))
	})
})

var _ = Describe("Driver", func() {
	var (
		fsys afero.Fs
		rec  *recorder
		out  *bytes.Buffer
	)

	newDriver := func(cfg config.Config, opts ...sweep.Option) *sweep.Driver {
		base := []sweep.Option{
			sweep.WithFs(fsys),
			sweep.WithRunner(rec),
			sweep.WithOutput(out),
			sweep.WithStyles(viz.PlainStyles),
		}
		return sweep.New(cfg, append(base, opts...)...)
	}

	BeforeEach(func() {
		fsys = afero.NewMemMapFs()
		rec = &recorder{}
		out = &bytes.Buffer{}
	})

	Describe("confirmation gate", func() {
		DescribeTable("declining leaves the filesystem untouched",
			func(answer string) {
				base := filepath.Join(GinkgoT().TempDir(), "out")
				fsys = afero.NewOsFs()
				Expect(fsys.MkdirAll(filepath.Join(base, "rho_1.000"), 0755)).To(Succeed())
				Expect(afero.WriteFile(fsys, filepath.Join(base, "extra.txt"), []byte("keep"), 0644)).To(Succeed())

				cfg := singlePoint(base)
				cfg.RemoveData = true
				store := storage.New(fsys, base)
				before, err := store.Snapshot()
				Expect(err).NotTo(HaveOccurred())

				rep, err := newDriver(cfg).Run(context.Background(), strings.NewReader(answer))
				Expect(err).To(MatchError(sweep.ErrAborted))
				Expect(rep).To(BeNil())

				after, err := store.Snapshot()
				Expect(err).NotTo(HaveOccurred())
				Expect(after).To(Equal(before))
				Expect(rec.calls).To(BeEmpty())
				Expect(out.String()).To(ContainSubstring("Simulation will NOT proceed"))
				Expect(out.String()).To(ContainSubstring("No files/directories have been created or destroyed"))
			},
			Entry("n", "n\n"),
			Entry("N", "N\n"),
			Entry("empty line", "\n"),
			Entry("EOF", ""),
			Entry("yes spelled out", "yes\n"),
		)

		It("does not create a missing output directory when declined", func() {
			_, err := newDriver(singlePoint("out")).Run(context.Background(), strings.NewReader("no\n"))
			Expect(err).To(MatchError(sweep.ErrAborted))

			exists, err := afero.Exists(fsys, "out")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("proceeds on Y", func() {
			rep, err := newDriver(singlePoint("out")).Run(context.Background(), strings.NewReader("Y\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Records).To(HaveLen(1))
			Expect(out.String()).To(ContainSubstring("Simulation WILL proceed"))
		})
	})

	Describe("provisioning", func() {
		It("creates a missing directory and drops the purge request", func() {
			cfg := singlePoint("out")
			cfg.RemoveData = true

			prep, err := newDriver(cfg).Provision()
			Expect(err).NotTo(HaveOccurred())
			Expect(prep.Created).To(BeTrue())
			Expect(prep.PurgeSkipped).To(BeTrue())
			Expect(prep.Purged).To(BeEmpty())
			Expect(out.String()).To(ContainSubstring("No need to remove files from out"))

			entries, err := storage.New(fsys, "out").Snapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(ConsistOf(storage.Entry{
				Path: storage.AggregateFile,
				Size: int64(len("Density,Temp,Energy,HeatCapCv,Pressure\n")),
			}))
		})

		It("purges stray files from an existing directory", func() {
			Expect(afero.WriteFile(fsys, "out/extra.txt", []byte("stray"), 0644)).To(Succeed())
			Expect(afero.WriteFile(fsys, "out/rho_0.100/extra.txt", []byte("stray"), 0644)).To(Succeed())

			cfg := singlePoint("out")
			cfg.RemoveData = true
			_, err := newDriver(cfg).Execute(context.Background())
			Expect(err).NotTo(HaveOccurred())

			entries, err := storage.New(fsys, "out").Snapshot()
			Expect(err).NotTo(HaveOccurred())
			for _, e := range entries {
				Expect(e.Path).NotTo(ContainSubstring("extra.txt"))
				Expect(e.Path).NotTo(HavePrefix("rho_0.100"))
			}
		})

		It("fails the sweep when the filesystem refuses writes", func() {
			fsys = afero.NewReadOnlyFs(afero.NewMemMapFs())

			_, err := newDriver(singlePoint("out")).Execute(context.Background())
			var pathErr *storage.PathError
			Expect(errors.As(err, &pathErr)).To(BeTrue())
			Expect(rec.calls).To(BeEmpty())
			Expect(out.String()).To(ContainSubstring("Sweep stopped after"))
			Expect(out.String()).NotTo(ContainSubstring("Sweep finished"))
		})

		It("touches nothing once the context is cancelled", func() {
			Expect(afero.WriteFile(fsys, "kept/extra.txt", []byte("stray"), 0644)).To(Succeed())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			ev := &events{}
			for _, dir := range []string{"kept", "missing"} {
				cfg := singlePoint(dir)
				cfg.RemoveData = true
				_, err := newDriver(cfg, sweep.WithObserver(ev)).Execute(ctx)
				Expect(err).To(MatchError(context.Canceled))
			}

			Expect(afero.ReadFile(fsys, "kept/extra.txt")).To(Equal([]byte("stray")))
			entries, err := storage.New(fsys, "kept").Snapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(afero.Exists(fsys, "missing")).To(BeFalse())
			Expect(rec.calls).To(BeEmpty())
			Expect(ev.done).To(Equal(2))
		})
	})

	Describe("dispatch", func() {
		It("provisions header-only files for a single point", func() {
			rep, err := newDriver(singlePoint("out")).Execute(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.SweepID).NotTo(BeEmpty())

			expected := map[string]string{
				"thermo_measurements.csv":            "Density,Temp,Energy,HeatCapCv,Pressure\n",
				"rho_1.000/T_0.500/time_series.csv":  "TimeStep,Temp,PotEnergy,TotEnergy,MeanSqDisp\n",
				"rho_1.000/T_0.500/final_state.csv":  "PosX,PosY,PosZ,VelX,VelY,VelZ,Speed\n",
				"rho_1.000/T_0.500/summary_info.csv": "CellCount,SideLength,AtomCount,BlockCount,BlocksPerSide,BlockLength\n",
			}
			for rel, content := range expected {
				data, err := afero.ReadFile(fsys, filepath.Join("out", rel))
				Expect(err).NotTo(HaveOccurred(), rel)
				Expect(string(data)).To(Equal(content), rel)
			}

			Expect(rec.calls).To(HaveLen(1))
			Expect(rec.calls[0]).To(Equal(runner.Invocation{
				CellCount:       2,
				Density:         1,
				Temperature:     0.5,
				OutputDirectory: "out",
				Prefix:          "rho_1.000/T_0.500",
			}))
			Expect(out.String()).To(ContainSubstring("Executing with density 1.000 and temperature 0.500"))
			Expect(out.String()).To(ContainSubstring("Sweep finished in"))
		})

		It("dispatches density-major with full precision values", func() {
			cfg := singlePoint("out")
			cfg.Density = config.Range{Start: 0.2, Stop: 1, Count: 2}
			cfg.Temperature = config.Range{Start: 0.1, Stop: 0.9, Count: 4}

			_, err := newDriver(cfg).Execute(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.calls).To(HaveLen(8))

			prefixes := make([]string, len(rec.calls))
			for i, c := range rec.calls {
				prefixes[i] = c.Prefix
			}
			Expect(prefixes).To(Equal([]string{
				"rho_0.200/T_0.100", "rho_0.200/T_0.367", "rho_0.200/T_0.633", "rho_0.200/T_0.900",
				"rho_1.000/T_0.100", "rho_1.000/T_0.367", "rho_1.000/T_0.633", "rho_1.000/T_0.900",
			}))
			Expect(rec.calls[1].Temperature).To(BeNumerically("~", 0.1+0.8/3, 1e-12))
		})

		It("is idempotent across reruns but dispatches again", func() {
			cfg := singlePoint("out")
			_, err := newDriver(cfg).Execute(context.Background())
			Expect(err).NotTo(HaveOccurred())

			filled := "Density,Temp,Energy,HeatCapCv,Pressure\n1,0.5,-4.2,2.1,1.3\n"
			Expect(afero.WriteFile(fsys, "out/thermo_measurements.csv", []byte(filled), 0644)).To(Succeed())
			before, err := storage.New(fsys, "out").Snapshot()
			Expect(err).NotTo(HaveOccurred())

			rep, err := newDriver(cfg).Execute(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Preparation.AggregateCreated).To(BeFalse())
			Expect(rep.Records[0].Workspace.Fresh()).To(BeFalse())

			after, err := storage.New(fsys, "out").Snapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))

			data, err := afero.ReadFile(fsys, "out/thermo_measurements.csv")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(filled))
			Expect(rec.calls).To(HaveLen(2))
		})

		It("continues past failing runs by default", func() {
			rec.fail = func(i int) bool { return i%2 == 0 }
			cfg := singlePoint("out")
			cfg.Temperature = config.Range{Start: 0.2, Stop: 0.8, Count: 4}

			rep, err := newDriver(cfg).Execute(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Records).To(HaveLen(4))
			Expect(rep.Failed()).To(Equal(2))
			Expect(out.String()).To(ContainSubstring("(4 runs, 2 failed)"))
		})

		It("halts on the first failure when asked to", func() {
			rec.fail = func(i int) bool { return i == 1 }
			cfg := singlePoint("out")
			cfg.Temperature = config.Range{Start: 0.2, Stop: 0.8, Count: 4}
			cfg.HaltOnFailure = true

			rep, err := newDriver(cfg).Execute(context.Background())
			Expect(err).To(MatchError(sweep.ErrRunFailed))

			var runErr *sweep.RunError
			Expect(errors.As(err, &runErr)).To(BeTrue())
			Expect(runErr.Index).To(Equal(1))
			Expect(runErr.Result.ExitCode).To(Equal(1))
			Expect(rep.Records).To(HaveLen(2))
			Expect(rec.calls).To(HaveLen(2))
		})

		It("keeps the runner error visible when a timed out run halts the sweep", func() {
			cfg := singlePoint("out")
			cfg.HaltOnFailure = true
			r := runner.Func(func(context.Context, runner.Invocation) runner.Result {
				return runner.Result{ExitCode: -1, Err: runner.ErrTimeout}
			})

			_, err := newDriver(cfg, sweep.WithRunner(r)).Execute(context.Background())
			Expect(err).To(MatchError(sweep.ErrRunFailed))
			Expect(err).To(MatchError(runner.ErrTimeout))
			Expect(out.String()).To(ContainSubstring("Sweep stopped after"))
		})

		It("reports progress to the observer", func() {
			ev := &events{}
			cfg := singlePoint("out")
			cfg.Density = config.Range{Start: 0.8, Stop: 1, Count: 3}

			_, err := newDriver(cfg, sweep.WithObserver(ev)).Execute(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.started).To(HaveLen(3))
			Expect(ev.finished).To(HaveLen(3))
			Expect(ev.started[2].Density).To(Equal(1.0))
			Expect(ev.done).To(Equal(1))
			Expect(ev.err).NotTo(HaveOccurred())
		})

		It("logs every run under one sweep id", func() {
			core, logs := observer.New(zapcore.InfoLevel)
			cfg := singlePoint("out")
			cfg.Temperature = config.Range{Start: 0.2, Stop: 0.8, Count: 2}
			rec.fail = func(i int) bool { return i == 1 }

			rep, err := newDriver(cfg, sweep.WithLogger(zap.New(core))).Execute(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(logs.FilterMessage("run finished").Len()).To(Equal(1))
			failed := logs.FilterMessage("run failed").All()
			Expect(failed).To(HaveLen(1))
			Expect(failed[0].ContextMap()).To(HaveKeyWithValue("exit_code", int64(1)))
			Expect(failed[0].ContextMap()).To(HaveKeyWithValue("temperature", 0.8))

			for _, entry := range logs.All() {
				Expect(entry.ContextMap()).To(HaveKeyWithValue("sweep_id", rep.SweepID))
			}
		})

		It("stops between runs once the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cfg := singlePoint("out")
			cfg.Temperature = config.Range{Start: 0.2, Stop: 0.8, Count: 3}

			r := runner.Func(func(ctx context.Context, inv runner.Invocation) runner.Result {
				cancel()
				return runner.Result{}
			})
			rep, err := newDriver(cfg, sweep.WithRunner(r)).Execute(ctx)
			Expect(err).To(MatchError(context.Canceled))
			Expect(rep.Records).To(HaveLen(1))
		})
	})
})
