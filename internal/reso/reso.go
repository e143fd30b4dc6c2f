// Package reso defines the contract fulfilled by resolution-matrix
// algorithms (Cooper-Nathans, Popovici, Eckold-Sobolev, Violini): given a
// scattering position they produce the 4x4 resolution quadric, its centre
// and the normalisation R0. The geometric derivations live outside this
// module; a simple Gaussian instrument model is provided so the tools and
// tests have a working backend.
package reso

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/triaxis-tools/tasreso/internal/ellipse"
	"github.com/triaxis-tools/tasreso/internal/quadric"
)

// ErrInvalidPosition indicates a scattering position the instrument cannot
// reach (scattering triangle does not close or a limit is exceeded).
var ErrInvalidPosition = errors.New("reso: position not reachable")

// Focus selects the focusing override of a curved optic:
// unchanged (-1), flat (0) or optimally curved (1).
type Focus int

const (
	FocusUnchanged Focus = -1
	FocusFlat      Focus = 0
	FocusOptimal   Focus = 1
)

// Result is the output of one resolution calculation at a nominal position.
type Result struct {
	Reso quadric.Quadric // 4x4 quadric, linear and constant part
	QAvg [4]float64      // average Q vector (h,k,l,E)

	R0      float64 // resolution volume normalisation
	R0Scale float64 // user scale on R0

	BraggFWHMs  [4]float64 // coherent widths per axis
	SampleSigma [4]float64 // optional sample-shape broadening sigmas
}

// Provider is the resolution algorithm consumed by the convolution engine.
// Compute must be safe for concurrent calls.
type Provider interface {
	// SetFixedK fixes ki (true) or kf (false) at k in 1/A.
	SetFixedK(kiFixed bool, k float64)
	// SetFocus overrides monochromator and analyser focusing.
	SetFocus(monoH, monoV, anaH, anaV Focus)
	// Compute returns the resolution at (h,k,l) rlu and E meV, or
	// ErrInvalidPosition if the instrument cannot reach it.
	Compute(h, k, l, E float64) (*Result, error)
}

// Instrument is the configuration of the Gaussian model provider: per-axis
// resolution widths with an optional Q-E correlation, kinematic limits and
// the normalisation.
type Instrument struct {
	Name string `yaml:"name"`

	// resolution FWHMs for h, k, l (rlu) and E (meV)
	FWHM [4]float64 `yaml:"fwhm"`
	// correlation between the first Q axis and energy, -1 < rho < 1
	CorrHE float64 `yaml:"corr_he"`

	R0      float64 `yaml:"r0"`
	R0Scale float64 `yaml:"r0_scale"`

	// reachable energy window in meV
	EMin float64 `yaml:"e_min"`
	EMax float64 `yaml:"e_max"`
	// maximum |Q| in rlu
	QMax float64 `yaml:"q_max"`

	KFix    float64 `yaml:"k_fix"`
	KiFixed bool    `yaml:"ki_fixed"`

	// optional sample-shape broadening sigmas
	SampleSigma [4]float64 `yaml:"sample_sigma"`
}

// LoadInstrument reads an instrument file and applies defaults.
func LoadInstrument(path string) (*Instrument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ins Instrument
	if err := yaml.Unmarshal(data, &ins); err != nil {
		return nil, fmt.Errorf("reso: instrument file %s: %w", path, err)
	}
	for i, w := range ins.FWHM {
		if w <= 0 {
			return nil, fmt.Errorf("reso: instrument file %s: fwhm[%d] must be positive", path, i)
		}
	}
	if ins.R0 == 0 {
		ins.R0 = 1
	}
	if ins.R0Scale == 0 {
		ins.R0Scale = 1
	}
	if ins.EMin == 0 && ins.EMax == 0 {
		ins.EMin, ins.EMax = -100, 100
	}
	if ins.QMax == 0 {
		ins.QMax = 10
	}
	if math.Abs(ins.CorrHE) >= 1 {
		return nil, fmt.Errorf("reso: instrument file %s: corr_he must be in (-1, 1)", path)
	}
	return &ins, nil
}

// GaussProvider builds diagonal-plus-correlation quadrics from configured
// instrument widths. It stands in for the geometry algorithms where only
// the quadric contract matters.
type GaussProvider struct {
	ins Instrument
}

// NewGaussProvider copies the instrument configuration into a provider.
func NewGaussProvider(ins *Instrument) *GaussProvider {
	return &GaussProvider{ins: *ins}
}

func (p *GaussProvider) SetFixedK(kiFixed bool, k float64) {
	p.ins.KiFixed = kiFixed
	p.ins.KFix = k
}

// SetFocus is accepted for interface completeness; the Gaussian model has
// no curved optics.
func (p *GaussProvider) SetFocus(monoH, monoV, anaH, anaV Focus) {}

// KSqToE converts a wavevector squared (1/A^2) to a neutron energy in meV.
const KSqToE = 2.0721

func (p *GaussProvider) Compute(h, k, l, E float64) (*Result, error) {
	ins := &p.ins
	if E < ins.EMin || E > ins.EMax {
		return nil, fmt.Errorf("%w: E = %g meV outside [%g, %g]", ErrInvalidPosition, E, ins.EMin, ins.EMax)
	}
	q := math.Sqrt(h*h + k*k + l*l)
	if q > ins.QMax {
		return nil, fmt.Errorf("%w: |Q| = %g rlu above %g", ErrInvalidPosition, q, ins.QMax)
	}
	// with one side of the scattering triangle fixed, the other side's
	// energy must stay positive
	if kFix := ins.KFix; kFix > 0 {
		eFix := KSqToE * kFix * kFix
		if ins.KiFixed && E >= eFix {
			return nil, fmt.Errorf("%w: E = %g meV leaves no final energy at ki = %g 1/A", ErrInvalidPosition, E, kFix)
		}
		if !ins.KiFixed && E <= -eFix {
			return nil, fmt.Errorf("%w: E = %g meV needs negative initial energy at kf = %g 1/A", ErrInvalidPosition, E, kFix)
		}
	}

	var sigma [4]float64
	for i, w := range ins.FWHM {
		sigma[i] = w / quadric.SigmaToFWHM
	}

	// precision matrix of a Gaussian with the given sigmas and a single
	// h-E correlation: invert the 2x2 covariance block analytically
	m := make([]float64, 16)
	for i := 0; i < 4; i++ {
		m[i*4+i] = 1 / (sigma[i] * sigma[i])
	}
	if rho := ins.CorrHE; rho != 0 {
		den := 1 - rho*rho
		m[0*4+0] = 1 / (den * sigma[0] * sigma[0])
		m[3*4+3] = 1 / (den * sigma[3] * sigma[3])
		c := -rho / (den * sigma[0] * sigma[3])
		m[0*4+3] = c
		m[3*4+0] = c
	}

	qu := quadric.New(4, m, nil, 0)
	res := &Result{
		Reso:        qu,
		QAvg:        [4]float64{h, k, l, E},
		R0:          ins.R0,
		R0Scale:     ins.R0Scale,
		SampleSigma: ins.SampleSigma,
	}
	copy(res.BraggFWHMs[:], ellipse.BraggFWHMs(qu))
	return res, nil
}
