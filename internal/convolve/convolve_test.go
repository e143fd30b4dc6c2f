package convolve

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/triaxis-tools/tasreso/internal/mc"
	"github.com/triaxis-tools/tasreso/internal/reso"
	"github.com/triaxis-tools/tasreso/internal/sqw"
)

func testProvider() reso.Provider {
	return reso.NewGaussProvider(&reso.Instrument{
		FWHM:    [4]float64{0.02, 0.02, 0.02, 0.2},
		R0:      1,
		R0Scale: 1,
		EMin:    -20,
		EMax:    20,
		QMax:    5,
	})
}

func energyScan(n int, e0, e1 float64) ([]Position, []float64) {
	positions := make([]Position, n)
	xs := make([]float64, n)
	for i := range positions {
		e := e0 + (e1-e0)*float64(i)/float64(n-1)
		positions[i] = Position{H: 1, K: 0, L: 0, E: e}
		xs[i] = e
	}
	return positions, xs
}

func TestPointRecycleIdenticalAcrossThreadCounts(t *testing.T) {
	// per-point reseeding must make the result independent of scheduling
	positions, xs := energyScan(16, -2, 2)

	run := func(threads int) []float64 {
		ev := New(Config{
			NeutronCount: 200,
			Recycle:      mc.RecyclePoint,
			Seed:         42,
			Threads:      threads,
		}, testProvider(), sqw.NewElastic())
		ys, err := ev.Pass(context.Background(), positions, xs, nil)
		if err != nil {
			t.Fatal(err)
		}
		return ys
	}

	serial := run(0)
	for _, threads := range []int{1, 4} {
		got := run(threads)
		for i := range serial {
			if got[i] != serial[i] {
				t.Fatalf("threads=%d point %d: %g != %g", threads, i, got[i], serial[i])
			}
		}
	}
}

func TestRunRecycleReproducibleAcrossReruns(t *testing.T) {
	// per-pass reseeding must give identical curves on identical reruns,
	// whatever worker count was configured
	positions, xs := energyScan(16, -2, 2)

	run := func(threads int) []float64 {
		ev := New(Config{
			NeutronCount: 200,
			Recycle:      mc.RecycleRun,
			Seed:         42,
			Threads:      threads,
		}, testProvider(), sqw.NewElastic())
		ys, err := ev.Pass(context.Background(), positions, xs, nil)
		if err != nil {
			t.Fatal(err)
		}
		return ys
	}

	first := run(4)
	for _, threads := range []int{4, 1, 0} {
		got := run(threads)
		for i := range first {
			if got[i] != first[i] {
				t.Fatalf("threads=%d point %d: %g != %g", threads, i, got[i], first[i])
			}
		}
	}
}

// countingModel counts Eval calls; every sampled neutron costs one call.
type countingModel struct {
	sqw.Model
	calls *atomic.Int64
}

func (m countingModel) Eval(h, k, l, E float64) float64 {
	m.calls.Add(1)
	return m.Model.Eval(h, k, l, E)
}

func TestZeroNeutronsBypassesConvolution(t *testing.T) {
	model := sqw.NewElastic()
	var calls atomic.Int64
	ev := New(Config{NeutronCount: 0, Seed: 1}, testProvider(),
		countingModel{Model: model, calls: &calls})

	positions, xs := energyScan(8, -1, 1)
	ys, err := ev.Pass(context.Background(), positions, xs, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, pos := range positions {
		want := model.Eval(pos.H, pos.K, pos.L, pos.E)
		if ys[i] != want {
			t.Fatalf("point %d: got %g, want bare model value %g", i, ys[i], want)
		}
	}
	// exactly one evaluation per point proves nothing was sampled
	if calls.Load() != int64(len(positions)) {
		t.Fatalf("model evaluated %d times for %d points", calls.Load(), len(positions))
	}

	// with neutrons enabled the same counter sees one call per draw
	calls.Store(0)
	ev = New(Config{NeutronCount: 5, Recycle: mc.RecyclePoint, Seed: 1},
		testProvider(), countingModel{Model: model, calls: &calls})
	if _, err := ev.Pass(context.Background(), positions, xs, nil); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != int64(5*len(positions)) {
		t.Fatalf("model evaluated %d times, want %d", calls.Load(), 5*len(positions))
	}
}

func TestInvalidPositionZeroed(t *testing.T) {
	ev := New(Config{NeutronCount: 50, Recycle: mc.RecyclePoint, Seed: 5},
		testProvider(), sqw.NewElastic())

	// second point is outside the reachable energy window
	positions := []Position{
		{H: 1, E: 0},
		{H: 1, E: 100},
		{H: 1, E: 0.5},
	}
	ys, err := ev.Pass(context.Background(), positions, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ys[1] != 0 {
		t.Fatalf("unreachable point not zeroed: %g", ys[1])
	}
	if ys[0] == 0 || ys[2] == 0 {
		t.Fatalf("valid points zeroed: %v", ys)
	}
	if ev.Warnings() != 1 {
		t.Fatalf("warnings = %d, want 1", ev.Warnings())
	}
}

type nanModel struct{ sqw.Model }

func (nanModel) Eval(h, k, l, E float64) float64 { return math.NaN() }

func TestNonFiniteIntensityZeroed(t *testing.T) {
	ev := New(Config{NeutronCount: 10, Recycle: mc.RecyclePoint, Seed: 5},
		testProvider(), nanModel{Model: sqw.NewElastic()})

	ys, err := ev.Pass(context.Background(), []Position{{H: 1}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ys[0] != 0 {
		t.Fatalf("non-finite intensity not zeroed: %g", ys[0])
	}
	if ev.Warnings() != 1 {
		t.Fatalf("warnings = %d, want 1", ev.Warnings())
	}
}

func TestIntensityMappingClamps(t *testing.T) {
	ev := New(Config{NeutronCount: 0, Scale: 2, Slope: 1, Offs: -1000},
		testProvider(), sqw.NewElastic())

	ys, err := ev.Pass(context.Background(),
		[]Position{{H: 1, E: 0}}, []float64{0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ys[0] != 0 {
		t.Fatalf("negative intensity not clamped: %g", ys[0])
	}

	// positive case: scale*(S + slope*x) + offs
	model := sqw.NewElastic()
	ev = New(Config{NeutronCount: 0, Scale: 2, Slope: 3, Offs: 5}, testProvider(), model)
	ys, err = ev.Pass(context.Background(), []Position{{H: 1, E: 0}}, []float64{2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := 2*(model.Eval(1, 0, 0, 0)+3*2) + 5
	if math.Abs(ys[0]-want) > 1e-12 {
		t.Fatalf("mapped intensity %g, want %g", ys[0], want)
	}
}

func TestMapPassGrid(t *testing.T) {
	ev := New(Config{NeutronCount: 0, Threads: 2}, testProvider(), sqw.NewElastic())
	grid, err := ev.MapPass(context.Background(),
		Position{H: 0.9, E: -1},
		Position{H: 0.02},
		Position{E: 0.25},
		8)
	if err != nil {
		t.Fatal(err)
	}
	if len(grid) != 8 || len(grid[0]) != 8 {
		t.Fatalf("grid is %dx%d, want 8x8", len(grid), len(grid[0]))
	}
	for i := range grid {
		for j := range grid[i] {
			if math.IsNaN(grid[i][j]) {
				t.Fatalf("NaN at %d,%d", i, j)
			}
		}
	}
}

func TestCallbackSeesEveryPoint(t *testing.T) {
	ev := New(Config{NeutronCount: 0}, testProvider(), sqw.NewElastic())
	positions, xs := energyScan(10, -1, 1)

	seen := make([]bool, len(positions))
	_, err := ev.Pass(context.Background(), positions, xs, func(i int, y float64) {
		seen[i] = true
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("callback missed point %d", i)
		}
	}
}
