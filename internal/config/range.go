package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var _ pflag.Value = (*Range)(nil)

var (
	ErrRangeArity = errors.New("config: range needs exactly three values (start, stop, count)")
	ErrRangeValue = errors.New("config: range value is not a number")
	ErrRangeCount = errors.New("config: range count must be a whole number >= 1")
)

// Range is a linspace triple: Count evenly spaced samples from Start to Stop.
// Start <= Stop is expected but not enforced.
type Range struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Count int     `yaml:"count"`
}

// ParseRange parses literals such as "[0.8, 1, 1]", "(0.8,1,1)", "0.8,1,1"
// or "0.8 1 1".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 3 {
		return Range{}, fmt.Errorf("%w: got %d in %q", ErrRangeArity, len(fields), s)
	}

	vals := make([]float64, 3)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Range{}, fmt.Errorf("%w: %q", ErrRangeValue, f)
		}
		vals[i] = v
	}

	return newRange(vals[0], vals[1], vals[2])
}

func newRange(start, stop, count float64) (Range, error) {
	if count < 1 || count != math.Trunc(count) || count > math.MaxInt32 {
		return Range{}, fmt.Errorf("%w: %v", ErrRangeCount, count)
	}
	return Range{Start: start, Stop: stop, Count: int(count)}, nil
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s, %d]",
		strconv.FormatFloat(r.Start, 'g', -1, 64),
		strconv.FormatFloat(r.Stop, 'g', -1, 64),
		r.Count)
}

// Set implements pflag.Value.
func (r *Range) Set(s string) error {
	parsed, err := ParseRange(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Type implements pflag.Value.
func (r *Range) Type() string {
	return "linspace"
}

// UnmarshalYAML accepts either a flow sequence [start, stop, count] or a
// mapping with start/stop/count keys.
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var vals []float64
		if err := node.Decode(&vals); err != nil {
			return fmt.Errorf("%w: line %d", ErrRangeValue, node.Line)
		}
		if len(vals) != 3 {
			return fmt.Errorf("%w: got %d at line %d", ErrRangeArity, len(vals), node.Line)
		}
		parsed, err := newRange(vals[0], vals[1], vals[2])
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	case yaml.MappingNode:
		type plain Range
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		if p.Count < 1 {
			return fmt.Errorf("%w: %d", ErrRangeCount, p.Count)
		}
		*r = Range(p)
		return nil
	case yaml.ScalarNode:
		parsed, err := ParseRange(node.Value)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	default:
		return fmt.Errorf("config: unsupported range at line %d", node.Line)
	}
}

// MarshalYAML writes the range back in flow sequence form.
func (r Range) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range []string{
		strconv.FormatFloat(r.Start, 'g', -1, 64),
		strconv.FormatFloat(r.Stop, 'g', -1, 64),
		strconv.Itoa(r.Count),
	} {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v})
	}
	return node, nil
}
