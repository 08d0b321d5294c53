// Package grid resolves linspace ranges into sample sequences and enumerates
// the (density, temperature) parameter grid in sweep order.
package grid

import (
	"fmt"
	"path"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/mdsweep/internal/config"
)

// Linspace returns r.Count evenly spaced values from r.Start to r.Stop
// inclusive. A count of one yields [Start]; a count below one yields nil.
func Linspace(r config.Range) []float64 {
	switch {
	case r.Count < 1:
		return nil
	case r.Count == 1:
		return []float64{r.Start}
	}
	vals := floats.Span(make([]float64, r.Count), r.Start, r.Stop)
	vals[len(vals)-1] = r.Stop
	return vals
}

// Point is one (density, temperature) pair of the sweep.
type Point struct {
	Density     float64
	Temperature float64
}

func (p Point) DensityDir() string {
	return fmt.Sprintf("rho_%.3f", p.Density)
}

func (p Point) TemperatureDir() string {
	return fmt.Sprintf("T_%.3f", p.Temperature)
}

// Prefix is the slash separated workspace path handed to the simulator.
func (p Point) Prefix() string {
	return path.Join(p.DensityDir(), p.TemperatureDir())
}

// RelDir is the workspace path relative to the output directory.
func (p Point) RelDir() string {
	return filepath.Join(p.DensityDir(), p.TemperatureDir())
}

func (p Point) String() string {
	return fmt.Sprintf("rho=%.3f T=%.3f", p.Density, p.Temperature)
}

type Grid struct {
	Densities    []float64
	Temperatures []float64
}

func New(density, temperature config.Range) *Grid {
	return &Grid{
		Densities:    Linspace(density),
		Temperatures: Linspace(temperature),
	}
}

func (g *Grid) Len() int {
	return len(g.Densities) * len(g.Temperatures)
}

// Points lists every grid point, density outer and temperature inner.
func (g *Grid) Points() []Point {
	points := make([]Point, 0, g.Len())
	for _, rho := range g.Densities {
		for _, temp := range g.Temperatures {
			points = append(points, Point{Density: rho, Temperature: temp})
		}
	}
	return points
}

// Each calls fn for every point in sweep order and stops at the first error.
func (g *Grid) Each(fn func(i int, p Point) error) error {
	i := 0
	for _, rho := range g.Densities {
		for _, temp := range g.Temperatures {
			if err := fn(i, Point{Density: rho, Temperature: temp}); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}
