package viz

import (
	"strconv"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"
)

const maxChartWidth = 80

// FormatSeq renders a sample sequence as "[0.2 0.4 0.6]".
func FormatSeq(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// DurationChart plots the wall time of each dispatched run in seconds. It
// returns an empty string for fewer than two runs.
func DurationChart(durations []time.Duration) string {
	if len(durations) < 2 {
		return ""
	}

	secs := make([]float64, len(durations))
	for i, d := range durations {
		secs[i] = d.Seconds()
	}

	opts := []asciigraph.Option{
		asciigraph.Height(8),
		asciigraph.Caption("run wall time (s) by grid point"),
	}
	if len(secs) > maxChartWidth {
		opts = append(opts, asciigraph.Width(maxChartWidth))
	}
	return asciigraph.Plot(secs, opts...)
}
