package sweep

import (
	"fmt"
	"strings"

	"github.com/san-kum/mdsweep/internal/config"
	"github.com/san-kum/mdsweep/internal/grid"
	"github.com/san-kum/mdsweep/internal/viz"
)

const tag = "Batch simulate:"

// Plan summarizes the work a sweep will do. It is shown to the operator
// before anything is touched.
type Plan struct {
	Densities       []float64
	Temperatures    []float64
	Runs            int
	Particles       int
	OutputDirectory string
	RemoveData      bool
	Simulator       string
}

func NewPlan(cfg config.Config) Plan {
	cfg = cfg.Resolved()
	g := grid.New(cfg.Density, cfg.Temperature)
	return Plan{
		Densities:       g.Densities,
		Temperatures:    g.Temperatures,
		Runs:            g.Len(),
		Particles:       cfg.ParticleCount(),
		OutputDirectory: cfg.OutputDirectory,
		RemoveData:      cfg.RemoveData,
		Simulator:       cfg.Simulator,
	}
}

func (p Plan) Render(s viz.Styles) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Ready to run simulation for densities:\n    %s\n",
		s.Tag.Render(tag), s.Value.Render(viz.FormatSeq(p.Densities)))
	fmt.Fprintf(&b, "and temperatures:\n    %s\n", s.Value.Render(viz.FormatSeq(p.Temperatures)))
	fmt.Fprintf(&b, "This will result in a total of %s runs with %s particles each\n",
		s.Value.Render(fmt.Sprint(p.Runs)), s.Value.Render(fmt.Sprint(p.Particles)))
	fmt.Fprintf(&b, "Each run invokes %s\n", s.Muted.Render(p.Simulator))
	fmt.Fprintf(&b, "All files will be stored in %s\n", s.Value.Render(p.OutputDirectory))
	if p.RemoveData {
		fmt.Fprintln(&b, s.Danger.Render("You have chosen to DELETE all files in "+p.OutputDirectory))
	}
	return b.String()
}
