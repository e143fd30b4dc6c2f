package quadric

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const tol = 1e-9

func randomPosDef4(rng *rand.Rand) Quadric {
	// A^T A + I is symmetric positive definite
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
				v += 1
			}
			q[i*4+j] = v
		}
	}
	return New(4, q, nil, 0)
}

func TestPrincipalAxesRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		qu := randomPosDef4(rng)
		pr, err := qu.Principal()
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}

		// R^T R == I
		var rtr mat.Dense
		rtr.Mul(pr.Rot.T(), pr.Rot)
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				want := 0.0
				if i == j {
					want = 1.0
				}
				if math.Abs(rtr.At(i, j)-want) > tol {
					t.Fatalf("rotation not orthonormal at (%d,%d): %g", i, j, rtr.At(i, j))
				}
			}
		}

		// R^T Q R diagonal with the returned eigenvalues
		var d mat.Dense
		d.Mul(pr.Rot.T(), qu.Q)
		d.Mul(&d, pr.Rot)
		for i := 0; i < 4; i++ {
			if pr.Evals[i] <= 0 {
				t.Fatalf("eigenvalue %d not positive: %g", i, pr.Evals[i])
			}
			if math.Abs(d.At(i, i)-pr.Evals[i]) > 1e-8 {
				t.Fatalf("diagonal %d: got %g want %g", i, d.At(i, i), pr.Evals[i])
			}
			for j := 0; j < 4; j++ {
				if i != j && math.Abs(d.At(i, j)) > 1e-8 {
					t.Fatalf("off-diagonal (%d,%d) not zero: %g", i, j, d.At(i, j))
				}
			}
		}
	}
}

func TestProjectDegenerateFallsBackToSlice(t *testing.T) {
	// zero diagonal element on axis 1: a flat direction
	q := []float64{
		2, 0.5, 0, 0,
		0.5, 0, 0, 0,
		0, 0, 3, 0,
		0, 0, 0, 4,
	}
	qu := New(4, q, []float64{1, 2, 3, 4}, 0)

	proj, sliced := qu.Project(1)
	if !sliced {
		t.Fatal("expected slice fallback for zero diagonal")
	}
	want := qu.Slice(1)
	for i := 0; i < 3; i++ {
		if math.Abs(proj.R.AtVec(i)-want.R.AtVec(i)) > tol {
			t.Fatalf("linear part differs at %d", i)
		}
		for j := 0; j < 3; j++ {
			if math.Abs(proj.Q.At(i, j)-want.Q.At(i, j)) > tol {
				t.Fatalf("matrix differs at (%d,%d)", i, j)
			}
		}
	}
}

func TestProjectAgainstMarginalisedGaussian(t *testing.T) {
	// for a Gaussian exp(-x^T Q x / 2), integrating out one coordinate
	// leaves the inverse of the reduced covariance block
	qu := randomPosDef4(rand.New(rand.NewSource(11)))

	var cov mat.Dense
	if err := cov.Inverse(qu.Q); err != nil {
		t.Fatal(err)
	}

	proj, sliced := qu.Project(2)
	if sliced {
		t.Fatal("unexpected fallback")
	}

	// reduced covariance: drop row/col 2 of the full covariance
	keep := []int{0, 1, 3}
	sub := mat.NewDense(3, 3, nil)
	for i, ki := range keep {
		for j, kj := range keep {
			sub.Set(i, j, cov.At(ki, kj))
		}
	}
	var subInv mat.Dense
	if err := subInv.Inverse(sub); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(proj.Q.At(i, j)-subInv.At(i, j)) > 1e-8 {
				t.Fatalf("projection disagrees with marginalisation at (%d,%d): %g vs %g",
					i, j, proj.Q.At(i, j), subInv.At(i, j))
			}
		}
	}
}

func TestCenterShift(t *testing.T) {
	qu := New(2, []float64{2, 0, 0, 2}, []float64{-4, 0}, 0)
	pr, err := qu.Principal()
	if err != nil {
		t.Fatal(err)
	}
	shift := pr.CenterShift()
	if math.Abs(shift.AtVec(0)-1) > tol || math.Abs(shift.AtVec(1)) > tol {
		t.Fatalf("centre shift: got (%g, %g), want (1, 0)", shift.AtVec(0), shift.AtVec(1))
	}
}

func TestNotPositiveDefinite(t *testing.T) {
	qu := New(2, []float64{1, 0, 0, -1}, nil, 0)
	if _, err := qu.Principal(); err == nil {
		t.Fatal("expected error for indefinite quadric")
	}
}

func TestVolumeUnitCircle(t *testing.T) {
	qu := New(2, []float64{1, 0, 0, 1}, nil, 0)
	pr, err := qu.Principal()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pr.Volume()-math.Pi) > tol {
		t.Fatalf("unit circle area: got %g", pr.Volume())
	}
}
