package fit

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLimits parses a "lower:upper" bound pair. Either side may be empty
// for an open end; an empty string means fully open.
func ParseLimits(s string) (min, max *float64, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	lo, hi, found := strings.Cut(s, ":")
	if !found {
		return nil, nil, fmt.Errorf("fit: limits %q: want \"lower:upper\"", s)
	}
	parse := func(side string) (*float64, error) {
		side = strings.TrimSpace(side)
		if side == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(side, 64)
		if err != nil {
			return nil, fmt.Errorf("fit: limits %q: %w", s, err)
		}
		return &v, nil
	}
	if min, err = parse(lo); err != nil {
		return nil, nil, err
	}
	if max, err = parse(hi); err != nil {
		return nil, nil, err
	}
	if min != nil && max != nil && *min > *max {
		return nil, nil, fmt.Errorf("fit: limits %q: lower above upper", s)
	}
	return min, max, nil
}

// ParseAssignment parses a "name=value" parameter override.
func ParseAssignment(s string) (string, float64, error) {
	name, val, found := strings.Cut(s, "=")
	if !found {
		return "", 0, fmt.Errorf("fit: assignment %q: want \"name=value\"", s)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, fmt.Errorf("fit: assignment %q: empty name", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return "", 0, fmt.Errorf("fit: assignment %q: %w", s, err)
	}
	return name, v, nil
}
