// Package runner invokes the external simulator once per grid point and
// reports how the child process ended.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

var ErrTimeout = errors.New("runner: simulator exceeded run timeout")

// Invocation holds the parameters of a single simulator run.
type Invocation struct {
	CellCount       int
	Density         float64
	Temperature     float64
	OutputDirectory string
	Prefix          string
}

// Args renders the simulator command line. Density and temperature keep full
// precision; the prefix is the slash separated workspace path.
func (inv Invocation) Args() []string {
	return []string{
		"--cellcount", strconv.Itoa(inv.CellCount),
		"--density", strconv.FormatFloat(inv.Density, 'g', -1, 64),
		"--temperature", strconv.FormatFloat(inv.Temperature, 'g', -1, 64),
		"--output-directory", inv.OutputDirectory,
		"--prefix", inv.Prefix,
	}
}

// Result describes a finished run. ExitCode is -1 when the process could not
// be started or was killed.
type Result struct {
	ExitCode int
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

func (r Result) String() string {
	switch {
	case r.OK():
		return fmt.Sprintf("ok (%v)", r.Duration)
	case r.Err != nil:
		return fmt.Sprintf("failed: %v", r.Err)
	default:
		return fmt.Sprintf("exit status %d", r.ExitCode)
	}
}

type Runner interface {
	Run(ctx context.Context, inv Invocation) Result
}

// Func adapts a plain function to Runner.
type Func func(ctx context.Context, inv Invocation) Result

func (f Func) Run(ctx context.Context, inv Invocation) Result {
	return f(ctx, inv)
}

// Exec runs the simulator as a child process and waits for it to exit.
type Exec struct {
	Path    string
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration
}

func NewExec(path string) *Exec {
	return &Exec{Path: path}
}

func (e *Exec) Command(ctx context.Context, inv Invocation) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.Path, inv.Args()...)
	cmd.Dir = e.Dir
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	return cmd
}

func (e *Exec) Run(ctx context.Context, inv Invocation) Result {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.Command(ctx, inv).Run()
	res := Result{Duration: time.Since(start)}

	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode > 0 {
			return res
		}
	} else {
		res.ExitCode = -1
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Err = fmt.Errorf("%w after %v", ErrTimeout, e.Timeout)
		return res
	}
	res.Err = err
	return res
}
