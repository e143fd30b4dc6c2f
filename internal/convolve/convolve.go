// Package convolve folds an S(Q,E) model with the instrumental resolution
// by Monte-Carlo integration over the resolution ellipsoid, scan point by
// scan point on a worker pool.
package convolve

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/triaxis-tools/tasreso/internal/mc"
	"github.com/triaxis-tools/tasreso/internal/pool"
	"github.com/triaxis-tools/tasreso/internal/reso"
	"github.com/triaxis-tools/tasreso/internal/sqw"
)

// Position is a nominal (h,k,l,E) scan position.
type Position struct {
	H, K, L, E float64
}

// Config controls one convolution run.
type Config struct {
	// NeutronCount is the number of Monte-Carlo neutrons per point; zero
	// skips the convolution and evaluates the bare model.
	NeutronCount int
	// SampleSteps multiplies each neutron by secondary sample-shape draws.
	SampleSteps int

	// Recycle selects the neutron recycling policy. Per-pass recycling
	// ignores Threads and evaluates serially.
	Recycle mc.RecycleMode
	Seed    int64
	// Threads is the worker count; zero runs deferred in the caller.
	Threads int

	// intensity mapping: scale*(S + slope*x) + offs, clamped at zero
	Scale, Slope, Offs float64
}

// Evaluator computes resolution-convoluted intensities.
type Evaluator struct {
	cfg   Config
	prov  reso.Provider
	model sqw.Model
	mcctx *mc.Context
	log   *logrus.Entry

	warns atomic.Int64
}

// New builds an evaluator. The Monte-Carlo seeding context lives for the
// evaluator's lifetime so the independent mode never repeats streams
// across passes.
func New(cfg Config, prov reso.Provider, model sqw.Model) *Evaluator {
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	if cfg.SampleSteps < 1 {
		cfg.SampleSteps = 1
	}
	return &Evaluator{
		cfg:   cfg,
		prov:  prov,
		model: model,
		mcctx: mc.NewContext(cfg.Recycle, cfg.Seed),
		log:   logrus.WithField("module", "convolve"),
	}
}

// Model returns the model under convolution.
func (ev *Evaluator) Model() sqw.Model { return ev.model }

// SetScale updates the intensity mapping between passes.
func (ev *Evaluator) SetScale(scale, slope, offs float64) {
	ev.cfg.Scale, ev.cfg.Slope, ev.cfg.Offs = scale, slope, offs
}

// Warnings returns the number of points that were zeroed because of an
// unreachable position or a non-finite model value.
func (ev *Evaluator) Warnings() int64 { return ev.warns.Load() }

// point computes the convoluted intensity at one position. Failures are
// isolated: an unreachable position or a non-finite result yields zero.
func (ev *Evaluator) point(env *rand.Rand, pos Position) float64 {
	res, err := ev.prov.Compute(pos.H, pos.K, pos.L, pos.E)
	if err != nil {
		ev.warns.Add(1)
		ev.log.Warnf("point (%g %g %g %g): %v", pos.H, pos.K, pos.L, pos.E, err)
		return 0
	}

	var s float64
	if ev.cfg.NeutronCount == 0 {
		s = ev.model.Eval(pos.H, pos.K, pos.L, pos.E)
	} else {
		rng := ev.mcctx.PointRNG(env)
		neutrons, err := mc.Generate(res.Reso, res.QAvg, ev.cfg.NeutronCount,
			ev.cfg.SampleSteps, res.SampleSigma, rng)
		if err != nil {
			ev.warns.Add(1)
			ev.log.Warnf("point (%g %g %g %g): %v", pos.H, pos.K, pos.L, pos.E, err)
			return 0
		}
		var sum float64
		for _, nt := range neutrons {
			sum += ev.model.Eval(nt[0], nt[1], nt[2], nt[3])
		}
		s = sum / float64(len(neutrons)) * res.R0 * res.R0Scale
	}

	if math.IsNaN(s) || math.IsInf(s, 0) {
		ev.warns.Add(1)
		ev.log.Warnf("point (%g %g %g %g): non-finite intensity", pos.H, pos.K, pos.L, pos.E)
		return 0
	}
	return s
}

// workers returns the pool size for one pass. With per-pass recycling the
// stream position a point consumes depends on evaluation order, so that
// mode always runs serially; per-point recycling reseeds independently of
// scheduling and keeps the configured worker count.
func (ev *Evaluator) workers() int {
	if ev.cfg.Recycle == mc.RecycleRun {
		return 0
	}
	return ev.cfg.Threads
}

func (ev *Evaluator) mapIntensity(s, x float64) float64 {
	y := ev.cfg.Scale*(s+ev.cfg.Slope*x) + ev.cfg.Offs
	if y < 0 {
		y = 0
	}
	return y
}

// Pass convolutes all positions and returns the intensities in order.
// xs supplies the scan-axis coordinate per position for the linear
// background term. cb, if non-nil, is called as points complete and may
// run concurrently.
func (ev *Evaluator) Pass(ctx context.Context, positions []Position, xs []float64,
	cb func(i int, y float64)) ([]float64, error) {

	p := pool.New[*rand.Rand, float64](ev.workers(), ev.mcctx.WorkerRNG)
	for i, pos := range positions {
		i, pos := i, pos
		x := 0.0
		if xs != nil {
			x = xs[i]
		}
		p.Submit(func(env *rand.Rand) (float64, error) {
			y := ev.mapIntensity(ev.point(env, pos), x)
			if cb != nil {
				cb(i, y)
			}
			return y, nil
		})
	}
	return p.Run(ctx)
}

// MapPass convolutes a steps x steps grid spanned by two step vectors from
// a start position, for 2D intensity maps. The linear background term does
// not apply; intensities are scale*S + offs.
func (ev *Evaluator) MapPass(ctx context.Context, start Position, step1, step2 Position,
	steps int) ([][]float64, error) {

	p := pool.New[*rand.Rand, float64](ev.workers(), ev.mcctx.WorkerRNG)
	for i := 0; i < steps; i++ {
		for j := 0; j < steps; j++ {
			fi, fj := float64(i), float64(j)
			pos := Position{
				H: start.H + fi*step1.H + fj*step2.H,
				K: start.K + fi*step1.K + fj*step2.K,
				L: start.L + fi*step1.L + fj*step2.L,
				E: start.E + fi*step1.E + fj*step2.E,
			}
			p.Submit(func(env *rand.Rand) (float64, error) {
				return ev.mapIntensity(ev.point(env, pos), 0), nil
			})
		}
	}
	flat, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	grid := make([][]float64, steps)
	for i := range grid {
		grid[i] = flat[i*steps : (i+1)*steps]
	}
	return grid, nil
}

// ScanPositions extracts the nominal positions and scan-axis coordinates
// of a measured scan.
func ScanPositions(scan *Scan) ([]Position, []float64) {
	positions := make([]Position, len(scan.Points))
	xs := make([]float64, len(scan.Points))
	for i, pt := range scan.Points {
		positions[i] = Position{H: pt.H, K: pt.K, L: pt.L, E: pt.E}
		xs[i] = scan.X(i)
	}
	return positions, xs
}
