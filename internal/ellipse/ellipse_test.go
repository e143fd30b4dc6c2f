package ellipse

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/triaxis-tools/tasreso/internal/quadric"
)

const tol = 1e-9

func testQuadric(rng *rand.Rand) quadric.Quadric {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	var ata mat.Dense
	ata.Mul(a.T(), a)
	q := make([]float64, 16)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			v := ata.At(i, j)
			if i == j {
				v += 2
			}
			q[i*4+j] = v
		}
	}
	r := []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
	return quadric.New(4, q, r, 0)
}

func TestZeroWidthScenario(t *testing.T) {
	// unit quadric centred at Q_avg = (1,0,0,0): the (axis0, axis3) ellipse
	// has HWHM sqrt(2 ln 2) on both axes and an identity rotation
	qu := quadric.New(4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}, nil, 0)

	ell, err := Extract2D(qu, [4]float64{1, 0, 0, 0}, 0, 3, None, None, 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	want := math.Sqrt(2 * math.Ln2)
	if math.Abs(ell.XHWHM-want) > tol || math.Abs(ell.YHWHM-want) > tol {
		t.Fatalf("hwhm: got (%g, %g), want %g", ell.XHWHM, ell.YHWHM, want)
	}
	if math.Abs(ell.XOffs-1) > tol || math.Abs(ell.YOffs) > tol {
		t.Fatalf("offsets: got (%g, %g), want (1, 0)", ell.XOffs, ell.YOffs)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(ell.Rot.At(i, j)-want) > tol {
				t.Fatalf("rotation not identity: %v", mat.Formatted(ell.Rot))
			}
		}
	}
}

func TestProjectionOrderInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 10; trial++ {
		qu := testQuadric(rng)
		qAvg := [4]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}

		a, err := Extract2D(qu, qAvg, 0, 3, 1, 2, None, None)
		if err != nil {
			t.Fatal(err)
		}
		b, err := Extract2D(qu, qAvg, 0, 3, 2, 1, None, None)
		if err != nil {
			t.Fatal(err)
		}

		for _, pair := range [][2]float64{
			{a.XHWHM, b.XHWHM}, {a.YHWHM, b.YHWHM},
			{a.XOffs, b.XOffs}, {a.YOffs, b.YOffs},
			{a.Area, b.Area},
		} {
			if relDiff(pair[0], pair[1]) > tol {
				t.Fatalf("trial %d: projection order changed the result: %g vs %g",
					trial, pair[0], pair[1])
			}
		}
	}
}

func TestSliceOrderInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	qu := testQuadric(rng)
	qAvg := [4]float64{0.5, -0.25, 0, 1}

	a, err := Extract2D(qu, qAvg, 0, 3, None, None, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Extract2D(qu, qAvg, 0, 3, None, None, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if relDiff(a.XHWHM, b.XHWHM) > tol || relDiff(a.YHWHM, b.YHWHM) > tol ||
		relDiff(a.XOffs, b.XOffs) > tol || relDiff(a.YOffs, b.YOffs) > tol {
		t.Fatalf("slice order changed the result: %+v vs %+v", a, b)
	}
}

func TestSwappedPlotAxes(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	qu := testQuadric(rng)
	qAvg := [4]float64{1, 2, 3, 4}

	a, err := Extract2D(qu, qAvg, 0, 3, 1, 2, None, None)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Extract2D(qu, qAvg, 3, 0, 1, 2, None, None)
	if err != nil {
		t.Fatal(err)
	}

	// same reduced quadric, mirrored plot frame: offsets swap, the
	// principal radii are unchanged
	if relDiff(a.XOffs, b.YOffs) > tol || relDiff(a.YOffs, b.XOffs) > tol {
		t.Fatalf("offsets did not swap: a=(%g,%g) b=(%g,%g)", a.XOffs, a.YOffs, b.XOffs, b.YOffs)
	}
	if relDiff(a.XHWHM, b.XHWHM) > tol || relDiff(a.YHWHM, b.YHWHM) > tol {
		t.Fatalf("principal radii changed under axis swap")
	}
	if relDiff(a.Area, b.Area) > tol {
		t.Fatalf("area changed under axis swap: %g vs %g", a.Area, b.Area)
	}
}

func TestInvalidSelections(t *testing.T) {
	qu := testQuadric(rand.New(rand.NewSource(1)))
	qAvg := [4]float64{}

	cases := []struct {
		name                 string
		x, y, p1, p2, s1, s2 int
	}{
		{"duplicate", 0, 0, 1, 2, None, 3},
		{"gap", 0, 3, 1, None, None, None},
		{"overlap", 0, 3, 1, 2, 1, None},
		{"out of range", 0, 4, 1, 2, None, None},
	}
	for _, tc := range cases {
		if _, err := Extract2D(qu, qAvg, tc.x, tc.y, tc.p1, tc.p2, tc.s1, tc.s2); !errors.Is(err, ErrAxes) {
			t.Fatalf("%s: expected ErrAxes, got %v", tc.name, err)
		}
	}
}

func TestVanadiumMatchesBraggForDiagonal(t *testing.T) {
	qu := quadric.New(4, []float64{
		4, 0, 0, 0,
		0, 9, 0, 0,
		0, 0, 16, 0,
		0, 0, 0, 25,
	}, nil, 0)

	bragg := BraggFWHMs(qu)
	vana := VanadiumFWHMs(qu)
	for i := 0; i < 4; i++ {
		if relDiff(bragg[i], vana[i]) > tol {
			t.Fatalf("axis %d: bragg %g != vanadium %g for uncorrelated quadric", i, bragg[i], vana[i])
		}
	}
	if relDiff(bragg[0], quadric.SigmaToFWHM/2) > tol {
		t.Fatalf("bragg width: got %g", bragg[0])
	}
}

func TestExtract4D(t *testing.T) {
	qu := quadric.New(4, []float64{
		1, 0, 0, 0,
		0, 2, 0, 0,
		0, 0, 3, 0,
		0, 0, 0, 4,
	}, nil, 0)
	ell, err := Extract4D(qu, [4]float64{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ell.XOffs-1) > tol || math.Abs(ell.WOffs-4) > tol {
		t.Fatalf("offsets: %+v", ell)
	}
	// radii ascend with descending eigenvalue
	if !(ell.XHWHM >= ell.YHWHM && ell.YHWHM >= ell.ZHWHM && ell.ZHWHM >= ell.WHWHM) {
		t.Fatalf("radii not ordered: %g %g %g %g", ell.XHWHM, ell.YHWHM, ell.ZHWHM, ell.WHWHM)
	}
}

func relDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if m := math.Max(math.Abs(a), math.Abs(b)); m > 1 {
		return d / m
	}
	return d
}
