// Package tui shows a live progress view of a running sweep.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/mdsweep/internal/grid"
	"github.com/san-kum/mdsweep/internal/sweep"
	"github.com/san-kum/mdsweep/internal/viz"
)

const (
	barWidth   = 40
	recentRuns = 6
)

type RunStartedMsg struct {
	Index int
	Total int
	Point grid.Point
}

type RunFinishedMsg struct {
	Index  int
	Total  int
	Record sweep.RunRecord
}

type SweepDoneMsg struct {
	Report *sweep.Report
	Err    error
}

type Model struct {
	styles   viz.Styles
	total    int
	done     int
	failed   int
	current  grid.Point
	running  bool
	recent   []string
	started  time.Time
	finished bool
	err      error
	elapsed  time.Duration
}

func NewModel(total int, styles viz.Styles) Model {
	return Model{styles: styles, total: total, started: time.Now()}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case RunStartedMsg:
		m.current = msg.Point
		m.running = true
	case RunFinishedMsg:
		m.done++
		m.running = false
		res := msg.Record.Result
		status := m.styles.Success.Render("ok")
		if !res.OK() {
			m.failed++
			status = m.styles.Danger.Render(res.String())
		}
		line := fmt.Sprintf("%3d/%d  %-18s %s  %v",
			msg.Index+1, msg.Total, msg.Record.Point, status, res.Duration.Round(time.Millisecond))
		m.recent = append(m.recent, line)
		if len(m.recent) > recentRuns {
			m.recent = m.recent[len(m.recent)-recentRuns:]
		}
	case SweepDoneMsg:
		m.finished = true
		m.running = false
		m.err = msg.Err
		if msg.Report != nil {
			m.elapsed = msg.Report.Elapsed
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) Done() int   { return m.done }
func (m Model) Failed() int { return m.failed }

func (m Model) View() string {
	var b strings.Builder

	fraction := 0.0
	if m.total > 0 {
		fraction = float64(m.done) / float64(m.total)
	}
	fmt.Fprintf(&b, "%s  %s %d/%d\n\n",
		m.styles.Tag.Render("mdsweep"), m.styles.ProgressBar(fraction, barWidth), m.done, m.total)

	if m.running {
		fmt.Fprintf(&b, "running  %s\n", m.styles.Value.Render(m.current.String()))
	} else {
		b.WriteString("\n")
	}
	for _, line := range m.recent {
		b.WriteString(m.styles.Muted.Render(line) + "\n")
	}

	switch {
	case m.finished && m.err != nil:
		fmt.Fprintf(&b, "\n%s %v\n", m.styles.Danger.Render("stopped:"), m.err)
	case m.finished:
		fmt.Fprintf(&b, "\n%s in %v, %d failed\n", m.styles.Success.Render("done"), m.elapsed.Round(time.Millisecond), m.failed)
	default:
		fmt.Fprintf(&b, "\n%s\n", m.styles.Muted.Render(fmt.Sprintf("elapsed %v  q: stop after current run",
			time.Since(m.started).Round(time.Second))))
	}
	return b.String()
}

// Observer forwards driver events to a running program.
type Observer struct {
	send func(tea.Msg)
}

func NewObserver(p *tea.Program) *Observer {
	return &Observer{send: p.Send}
}

func (o *Observer) RunStarted(index, total int, p grid.Point) {
	o.send(RunStartedMsg{Index: index, Total: total, Point: p})
}

func (o *Observer) RunFinished(index, total int, rec sweep.RunRecord) {
	o.send(RunFinishedMsg{Index: index, Total: total, Record: rec})
}

func (o *Observer) SweepFinished(rep *sweep.Report, err error) {
	o.send(SweepDoneMsg{Report: rep, Err: err})
}

// Run shows the progress view while execute runs the sweep. Quitting the
// view cancels the context handed to execute, which stops the sweep once the
// current simulator process has been terminated.
func Run(
	ctx context.Context,
	total int,
	styles viz.Styles,
	execute func(ctx context.Context, obs sweep.Observer) (*sweep.Report, error),
	opts ...tea.ProgramOption,
) (*sweep.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(total, styles), opts...)
	obs := NewObserver(p)

	type outcome struct {
		rep *sweep.Report
		err error
	}
	results := make(chan outcome, 1)
	go func() {
		rep, err := execute(ctx, obs)
		results <- outcome{rep, err}
	}()

	_, runErr := p.Run()
	cancel()
	res := <-results
	if runErr != nil && res.err == nil {
		return res.rep, runErr
	}
	return res.rep, res.err
}
