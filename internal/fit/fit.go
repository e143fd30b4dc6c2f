// Package fit adjusts model parameters until the convoluted curves match
// the measured scans, minimising the summed chi^2 over all scan groups
// with a Nelder-Mead simplex.
package fit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/triaxis-tools/tasreso/internal/convolve"
)

// ErrStopRequested aborts a running fit from outside.
var ErrStopRequested = errors.New("fit: stop requested")

// Err2DFitUnimplemented is returned when a fit over a 2D intensity map is
// requested. Only 1D scans can be fitted.
var Err2DFitUnimplemented = errors.New("fit: fitting 2D maps is not implemented")

// State is the lifecycle of a fit.
type State int32

const (
	Idle State = iota
	Running
	Converged
	Failed
	StoppedByUser
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Converged:
		return "converged"
	case Failed:
		return "failed"
	case StoppedByUser:
		return "stopped by user"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Parameter is one fittable quantity. The names "scale", "slope" and
// "offs" address the intensity mapping instead of the model.
type Parameter struct {
	Name  string
	Value float64
	Err   float64
	Min   *float64 // nil means open
	Max   *float64
	Fixed bool
}

// Group pairs an evaluator with the scan it must reproduce.
type Group struct {
	Ev   *convolve.Evaluator
	Scan *convolve.Scan
}

// Result is the outcome of a fit run.
type Result struct {
	Params    []Parameter
	Chi2      float64
	State     State
	FuncEvals int
}

// Driver runs the minimisation over one or more scan groups.
type Driver struct {
	groups []Group
	params []Parameter

	// MaxCalls bounds the number of cost evaluations; zero means the
	// minimiser's own convergence criteria decide.
	MaxCalls int
	// Tolerance is the absolute function convergence threshold.
	Tolerance float64
	// TwoDim marks a 2D map fit request, which is rejected.
	TwoDim bool
	// OnPass, if set, receives the per-group curves and the summed chi^2
	// after every cost evaluation, so partial progress can be persisted.
	OnPass func(curves [][]float64, chi2 float64)

	state atomic.Int32
	stop  atomic.Bool

	mu       sync.Mutex
	lastX    []float64
	lastChi2 float64
	evals    int

	log *logrus.Entry
}

// NewDriver builds a fit over the given groups and parameters.
func NewDriver(groups []Group, params []Parameter) *Driver {
	return &Driver{
		groups:    groups,
		params:    params,
		Tolerance: 1e-6,
		log:       logrus.WithField("module", "fit"),
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Stop requests termination; the fit ends in StoppedByUser with the last
// evaluated parameter set.
func (d *Driver) Stop() { d.stop.Store(true) }

// free returns the indices of the non-fixed parameters.
func (d *Driver) free() []int {
	var idx []int
	for i, p := range d.params {
		if !p.Fixed {
			idx = append(idx, i)
		}
	}
	return idx
}

// clamp folds a candidate value back into the parameter limits.
func clamp(p *Parameter, v float64) float64 {
	if p.Min != nil && v < *p.Min {
		v = *p.Min
	}
	if p.Max != nil && v > *p.Max {
		v = *p.Max
	}
	return v
}

// apply pushes a free-parameter vector into the evaluators.
func (d *Driver) apply(freeIdx []int, x []float64) error {
	vals := make([]float64, len(d.params))
	for i, p := range d.params {
		vals[i] = p.Value
	}
	for k, i := range freeIdx {
		vals[i] = clamp(&d.params[i], x[k])
	}

	for gi := range d.groups {
		ev := d.groups[gi].Ev
		var scale, slope, offs = 1.0, 0.0, 0.0
		for i, p := range d.params {
			switch p.Name {
			case "scale":
				scale = vals[i]
			case "slope":
				slope = vals[i]
			case "offs":
				offs = vals[i]
			default:
				if err := ev.Model().SetParam(p.Name, vals[i]); err != nil {
					return err
				}
			}
		}
		ev.SetScale(scale, slope, offs)
	}
	return nil
}

// cost evaluates the summed chi^2 for a candidate vector. notify guards
// the OnPass hook so error-sweep evaluations do not overwrite persisted
// progress.
func (d *Driver) cost(ctx context.Context, freeIdx []int, x []float64, notify bool) float64 {
	if err := d.apply(freeIdx, x); err != nil {
		d.log.Errorf("apply parameters: %v", err)
		return math.Inf(1)
	}

	var chi2 float64
	curves := make([][]float64, len(d.groups))
	for gi, g := range d.groups {
		positions, xs := convolve.ScanPositions(g.Scan)
		ys, err := g.Ev.Pass(ctx, positions, xs, nil)
		if err != nil {
			d.log.Errorf("convolution pass: %v", err)
			return math.Inf(1)
		}
		curves[gi] = ys
		chi2 += convolve.Chi2(g.Scan, ys)
	}
	if notify && d.OnPass != nil {
		d.OnPass(curves, chi2)
	}

	d.mu.Lock()
	d.lastX = append(d.lastX[:0], x...)
	d.lastChi2 = chi2
	d.evals++
	d.mu.Unlock()
	return chi2
}

// Run minimises chi^2 and returns the fitted parameters with their
// one-sigma uncertainties. A stop request yields StoppedByUser and the
// last evaluated parameter set.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	if d.TwoDim {
		d.state.Store(int32(Failed))
		return nil, Err2DFitUnimplemented
	}
	freeIdx := d.free()
	if len(freeIdx) == 0 {
		d.state.Store(int32(Failed))
		return nil, errors.New("fit: no free parameters")
	}
	d.stop.Store(false)
	d.state.Store(int32(Running))

	x0 := make([]float64, len(freeIdx))
	for k, i := range freeIdx {
		x0[k] = d.params[i].Value
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return d.cost(ctx, freeIdx, x, true) },
		Status: func() (optimize.Status, error) {
			if d.stop.Load() {
				return optimize.Failure, ErrStopRequested
			}
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: d.MaxCalls,
		Converger: &optimize.FunctionConverge{
			Absolute:   d.Tolerance,
			Iterations: 50,
		},
	}

	opt, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})

	d.mu.Lock()
	lastX := append([]float64(nil), d.lastX...)
	lastChi2 := d.lastChi2
	evals := d.evals
	d.mu.Unlock()

	finish := func(x []float64, chi2 float64, st State) *Result {
		out := append([]Parameter(nil), d.params...)
		for k, i := range freeIdx {
			out[i].Value = clamp(&d.params[i], x[k])
		}
		d.state.Store(int32(st))
		return &Result{Params: out, Chi2: chi2, State: st, FuncEvals: evals}
	}

	if err != nil {
		if errors.Is(err, ErrStopRequested) {
			d.log.Warn("fit stopped by user, keeping last evaluated parameters")
			return finish(lastX, lastChi2, StoppedByUser), nil
		}
		d.state.Store(int32(Failed))
		return nil, err
	}

	res := finish(opt.X, opt.F, Converged)
	d.uncertainties(ctx, freeIdx, opt.X, res)
	return res, nil
}

// uncertainties estimates one-sigma errors from the finite-difference
// Hessian of chi^2 at the minimum: cov = 2 H^-1. Only meaningful when the
// cost is deterministic, so with neutron recycling enabled.
func (d *Driver) uncertainties(ctx context.Context, freeIdx []int, x []float64, res *Result) {
	n := len(x)
	f := func(y []float64) float64 { return d.cost(ctx, freeIdx, y, false) }
	f0 := f(x)
	// the sweep ends at a perturbed vector; put the evaluators back at
	// the minimum before returning
	defer func() {
		if err := d.apply(freeIdx, x); err != nil {
			d.log.Errorf("restore minimum parameters: %v", err)
		}
	}()

	h := make([]float64, n)
	for i := range h {
		h[i] = math.Max(1e-4*math.Abs(x[i]), 1e-5)
	}

	hess := mat.NewSymDense(n, nil)
	y := append([]float64(nil), x...)
	for i := 0; i < n; i++ {
		y[i] = x[i] + h[i]
		fp := f(y)
		y[i] = x[i] - h[i]
		fm := f(y)
		y[i] = x[i]
		hess.SetSym(i, i, (fp-2*f0+fm)/(h[i]*h[i]))

		for j := i + 1; j < n; j++ {
			y[i], y[j] = x[i]+h[i], x[j]+h[j]
			fpp := f(y)
			y[j] = x[j] - h[j]
			fpm := f(y)
			y[i] = x[i] - h[i]
			fmm := f(y)
			y[j] = x[j] + h[j]
			fmp := f(y)
			y[i], y[j] = x[i], x[j]
			hess.SetSym(i, j, (fpp-fpm-fmp+fmm)/(4*h[i]*h[j]))
		}
	}

	var cov mat.Dense
	if err := cov.Inverse(hess); err != nil {
		d.log.Warnf("singular Hessian, no uncertainties: %v", err)
		return
	}
	for k, i := range freeIdx {
		v := 2 * cov.At(k, k)
		if v > 0 {
			res.Params[i].Err = math.Sqrt(v)
		}
	}
}
