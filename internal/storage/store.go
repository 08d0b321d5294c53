// Package storage provisions the sweep output tree: the sweep root, the
// shared thermodynamic measurements file and one workspace per grid point,
// each holding header-only CSV files for the simulator to fill in.
package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/san-kum/mdsweep/internal/grid"
)

const (
	AggregateFile  = "thermo_measurements.csv"
	TimeSeriesFile = "time_series.csv"
	FinalStateFile = "final_state.csv"
	SummaryFile    = "summary_info.csv"
)

var (
	AggregateHeader  = []string{"Density", "Temp", "Energy", "HeatCapCv", "Pressure"}
	TimeSeriesHeader = []string{"TimeStep", "Temp", "PotEnergy", "TotEnergy", "MeanSqDisp"}
	FinalStateHeader = []string{"PosX", "PosY", "PosZ", "VelX", "VelY", "VelZ", "Speed"}
	SummaryHeader    = []string{"CellCount", "SideLength", "AtomCount", "BlockCount", "BlocksPerSide", "BlockLength"}
)

// Artifact is a per-run output file and its fixed header.
type Artifact struct {
	Name   string
	Header []string
}

// Artifacts are created in this order in every workspace.
var Artifacts = []Artifact{
	{Name: TimeSeriesFile, Header: TimeSeriesHeader},
	{Name: FinalStateFile, Header: FinalStateHeader},
	{Name: SummaryFile, Header: SummaryHeader},
}

var ErrNotDirectory = errors.New("storage: output path exists and is not a directory")

// PathError records the operation and path of a failed provisioning step.
type PathError struct {
	Op      string
	Path    string
	Wrapped error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Wrapped)
}

func (e *PathError) Unwrap() error {
	return e.Wrapped
}

type Store struct {
	fs      afero.Fs
	baseDir string
}

func New(fsys afero.Fs, baseDir string) *Store {
	return &Store{fs: fsys, baseDir: baseDir}
}

// NewOS returns a store on the host filesystem.
func NewOS(baseDir string) *Store {
	return New(afero.NewOsFs(), baseDir)
}

// Preparation reports what Prepare did to the output directory.
type Preparation struct {
	Created          bool
	PurgeSkipped     bool
	Purged           []string
	AggregateCreated bool
}

// Prepare creates the output directory if needed, optionally purges its
// contents and makes sure the aggregate measurements file exists. A purge
// request on a freshly created directory is dropped and reported.
func (s *Store) Prepare(purge bool) (Preparation, error) {
	var prep Preparation

	exists, err := afero.Exists(s.fs, s.baseDir)
	if err != nil {
		return prep, &PathError{Op: "stat", Path: s.baseDir, Wrapped: err}
	}
	if exists {
		isDir, err := afero.IsDir(s.fs, s.baseDir)
		if err != nil {
			return prep, &PathError{Op: "stat", Path: s.baseDir, Wrapped: err}
		}
		if !isDir {
			return prep, &PathError{Op: "prepare", Path: s.baseDir, Wrapped: ErrNotDirectory}
		}
	} else {
		if err := s.fs.MkdirAll(s.baseDir, 0755); err != nil {
			return prep, &PathError{Op: "mkdir", Path: s.baseDir, Wrapped: err}
		}
		prep.Created = true
		if purge {
			prep.PurgeSkipped = true
			purge = false
		}
	}

	if purge {
		removed, err := s.Purge()
		prep.Purged = removed
		if err != nil {
			return prep, err
		}
	}

	created, err := s.ensureFile(filepath.Join(s.baseDir, AggregateFile), AggregateHeader)
	if err != nil {
		return prep, err
	}
	prep.AggregateCreated = created

	return prep, nil
}

// Purge removes every file and directory below the output directory while
// keeping the directory itself. It returns the removed top-level names.
func (s *Store) Purge() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.baseDir)
	if err != nil {
		return nil, &PathError{Op: "readdir", Path: s.baseDir, Wrapped: err}
	}

	removed := make([]string, 0, len(entries))
	for _, entry := range entries {
		p := filepath.Join(s.baseDir, entry.Name())
		if err := s.fs.RemoveAll(p); err != nil {
			return removed, &PathError{Op: "remove", Path: p, Wrapped: err}
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}

// Workspace is the per-point directory handed to the simulator.
type Workspace struct {
	Point   grid.Point
	Dir     string
	Prefix  string
	Created []string
}

// Fresh reports whether any part of the workspace had to be created.
func (w Workspace) Fresh() bool {
	return len(w.Created) > 0
}

// EnsureWorkspace creates the density and temperature directories and the
// header-only artifact files for p. Anything already present is left alone.
func (s *Store) EnsureWorkspace(p grid.Point) (Workspace, error) {
	ws := Workspace{
		Point:  p,
		Dir:    filepath.Join(s.baseDir, p.RelDir()),
		Prefix: p.Prefix(),
	}

	rhoDir := filepath.Join(s.baseDir, p.DensityDir())
	for _, dir := range []string{rhoDir, ws.Dir} {
		created, err := s.ensureDir(dir)
		if err != nil {
			return ws, err
		}
		if created {
			ws.Created = append(ws.Created, dir)
		}
	}

	for _, a := range Artifacts {
		file := filepath.Join(ws.Dir, a.Name)
		created, err := s.ensureFile(file, a.Header)
		if err != nil {
			return ws, err
		}
		if created {
			ws.Created = append(ws.Created, file)
		}
	}

	return ws, nil
}

func (s *Store) ensureDir(dir string) (bool, error) {
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return false, &PathError{Op: "stat", Path: dir, Wrapped: err}
	}
	if exists {
		return false, nil
	}
	if err := s.fs.Mkdir(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, &PathError{Op: "mkdir", Path: dir, Wrapped: err}
	}
	return true, nil
}

// ensureFile writes header to a new file at p. Existing files are untouched.
func (s *Store) ensureFile(p string, header []string) (bool, error) {
	f, err := s.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, &PathError{Op: "create", Path: p, Wrapped: err}
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return true, &PathError{Op: "write", Path: p, Wrapped: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return true, &PathError{Op: "write", Path: p, Wrapped: err}
	}
	if err := f.Close(); err != nil {
		return true, &PathError{Op: "close", Path: p, Wrapped: err}
	}
	return true, nil
}
