package ellipse

import (
	"math"

	"github.com/triaxis-tools/tasreso/internal/quadric"
)

// BraggFWHMs returns the coherent (Bragg) widths per axis,
// sigma-to-fwhm scaled from the diagonal of the quadric.
func BraggFWHMs(qu quadric.Quadric) []float64 {
	n := qu.Dim()
	widths := make([]float64, n)
	for i := 0; i < n; i++ {
		widths[i] = quadric.SigmaToFWHM / math.Sqrt(qu.Q.At(i, i))
	}
	return widths
}

// VanadiumFWHMs returns the incoherent widths of the four axes: for each
// axis, all other dimensions are marginalised and the width is read off the
// remaining 1x1 form.
func VanadiumFWHMs(qu quadric.Quadric) [4]float64 {
	// removal orders as in rescal: highest remaining index first
	orders := [4][3]int{
		{3, 2, 1}, // Q_para
		{3, 2, 0}, // Q_ortho
		{3, 1, 0}, // Q_z
		{0, 0, 0}, // E: project the three Q axes, indices shift down
	}

	var widths [4]float64
	for axis, order := range orders {
		red := qu
		for _, idx := range order[:] {
			red, _ = red.Project(idx)
		}
		widths[axis] = quadric.SigmaToFWHM / math.Sqrt(math.Abs(red.Q.At(0, 0)))
	}
	return widths
}
