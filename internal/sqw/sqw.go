// Package sqw provides dynamical structure factor models S(Q,E) for the
// convolution engine. Models expose their parameters by name so a fitter
// can drive them without knowing the physics.
package sqw

import (
	"fmt"
	"sort"
)

// Model evaluates S(Q,E) at a sampled position. Eval must be safe for
// concurrent calls; SetParam is only called between convolution passes.
type Model interface {
	Eval(h, k, l, E float64) float64
	ParamNames() []string
	SetParam(name string, val float64) error
	Param(name string) (float64, bool)
}

// params maps parameter names onto model fields.
type params map[string]*float64

func (p params) ParamNames() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p params) SetParam(name string, val float64) error {
	field, ok := p[name]
	if !ok {
		return fmt.Errorf("sqw: unknown parameter %q", name)
	}
	*field = val
	return nil
}

func (p params) Param(name string) (float64, bool) {
	field, ok := p[name]
	if !ok {
		return 0, false
	}
	return *field, true
}

// New builds a model by kind and applies initial parameter values.
func New(kind string, initial map[string]float64) (Model, error) {
	var m Model
	switch kind {
	case "phonon":
		m = NewPhonon()
	case "magnon":
		m = NewMagnon()
	case "elastic":
		m = NewElastic()
	default:
		return nil, fmt.Errorf("sqw: unknown model kind %q", kind)
	}
	for name, val := range initial {
		if err := m.SetParam(name, val); err != nil {
			return nil, err
		}
	}
	return m, nil
}
