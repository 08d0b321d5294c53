package config

import "sort"

// Presets are named range combinations used in past studies.
var Presets = map[string]*Config{
	"default": {
		CellCount:   DefaultCellCount,
		Density:     DefaultDensity,
		Temperature: DefaultTemperature,
	},
	"density-scan": {
		CellCount:   DefaultCellCount,
		Density:     Range{Start: 0.2, Stop: 1, Count: 5},
		Temperature: DefaultTemperature,
	},
	"isotherm": {
		CellCount:   DefaultCellCount,
		Density:     DefaultDensity,
		Temperature: Range{Start: 0.9, Stop: 0.9, Count: 1},
	},
	"temperature-scan": {
		CellCount:   DefaultCellCount,
		Density:     DefaultDensity,
		Temperature: Range{Start: 0.2, Stop: 0.8, Count: 4},
	},
	"fine-temperature": {
		CellCount:   DefaultCellCount,
		Density:     DefaultDensity,
		Temperature: Range{Start: 0.1, Stop: 0.9, Count: 17},
	},
	"ultrafine-temperature": {
		CellCount:   DefaultCellCount,
		Density:     DefaultDensity,
		Temperature: Range{Start: 0.1, Stop: 0.9, Count: 33},
	},
	"midpoint-temperature": {
		CellCount:   DefaultCellCount,
		Density:     DefaultDensity,
		Temperature: Range{Start: 0.125, Stop: 0.875, Count: 16},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := *p
	return &cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
