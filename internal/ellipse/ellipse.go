// Package ellipse derives 2d/3d/4d resolution ellipsoids from a 4d quadric
// by composing slices (conditioning) and projections (marginalisation),
// following the proj_elip scheme of rescal and mcresplot.
package ellipse

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/triaxis-tools/tasreso/internal/quadric"
)

// ErrAxes indicates an axis selection that does not partition the four
// quadric dimensions exactly.
var ErrAxes = errors.New("ellipse: axis selection must partition the 4 dimensions")

// None marks an unused axis slot in an extraction call.
const None = -1

// Default axis labels in the Q_avg frame.
var defaultLabels = [4]string{"Q_para (1/A)", "Q_ortho (1/A)", "Q_z (1/A)", "E (meV)"}

// HKLLabels are the axis labels for quadrics transformed to the crystal frame.
var HKLLabels = [4]string{"h (rlu)", "k (rlu)", "l (rlu)", "E (meV)"}

// Ellipse2D is a two-dimensional section or projection of the resolution
// quadric: principal rotation, half widths, centre and area.
type Ellipse2D struct {
	Rot *mat.Dense // 2x2, proper rotation

	Phi, Slope     float64
	XHWHM, YHWHM   float64
	XBound, YBound float64 // bounding half widths of the rotated ellipse
	XOffs, YOffs   float64
	Area           float64

	XLab, YLab string
}

// Ellipsoid3D is a three-dimensional reduction of the resolution quadric.
type Ellipsoid3D struct {
	Rot *mat.Dense // 3x3

	XHWHM, YHWHM, ZHWHM float64
	XOffs, YOffs, ZOffs float64
	Vol                 float64

	XLab, YLab, ZLab string
}

// Ellipsoid4D is the full principal-axis form of the resolution quadric.
type Ellipsoid4D struct {
	Rot *mat.Dense // 4x4

	XHWHM, YHWHM, ZHWHM, WHWHM float64
	XOffs, YOffs, ZOffs, WOffs float64
	Vol                        float64

	XLab, YLab, ZLab, WLab string
}

// checkSelection verifies that the kept, projected and sliced axes cover
// {0,1,2,3} exactly once. Unused slots are None.
func checkSelection(keep []int, proj []int, slices []int) error {
	var seen [4]bool
	count := 0
	for _, group := range [][]int{keep, proj, slices} {
		for _, idx := range group {
			if idx == None {
				continue
			}
			if idx < 0 || idx > 3 {
				return fmt.Errorf("%w: index %d out of range", ErrAxes, idx)
			}
			if seen[idx] {
				return fmt.Errorf("%w: index %d used twice", ErrAxes, idx)
			}
			seen[idx] = true
			count++
		}
	}
	if count != 4 {
		return fmt.Errorf("%w: %d dimensions covered", ErrAxes, count)
	}
	return nil
}

// reduce applies the slices (highest original index first) and then the
// projections to the quadric and the centre vector, tracking the index
// renumbering of the kept axes. Returns the reduced quadric, the reduced
// centre and the positions of the kept axes in the reduced frame.
func reduce(qu quadric.Quadric, center []float64, keep, proj, slices []int) (quadric.Quadric, []float64, []int) {
	red := qu
	offs := append([]float64(nil), center...)

	// mutable copies so the bookkeeping never touches caller state
	keep = append([]int(nil), keep...)
	proj = append([]int(nil), proj...)
	slices = append([]int(nil), slices...)

	removeOffs := func(idx int) {
		offs = append(offs[:idx], offs[idx+1:]...)
	}
	// after removing dimension idx, every higher index shifts down by one
	shift := func(removed int) {
		for _, group := range [][]int{keep, proj, slices} {
			for i := range group {
				if group[i] > removed {
					group[i]--
				}
			}
		}
	}

	// slice highest original index first to avoid double renumbering
	if len(slices) == 2 && slices[0] != None && slices[1] != None && slices[0] < slices[1] {
		slices[0], slices[1] = slices[1], slices[0]
	}
	for i, idx := range slices {
		if idx == None {
			continue
		}
		red = red.Slice(idx)
		removeOffs(idx)
		slices[i] = None
		shift(idx)
	}
	for i, idx := range proj {
		if idx == None {
			continue
		}
		red, _ = red.Project(idx)
		removeOffs(idx)
		proj[i] = None
		shift(idx)
	}
	return red, offs, keep
}

// permute reorders the reduced quadric so that dimension i corresponds to
// keep[i]; the reduced frame is otherwise in ascending original order.
func permute(qu quadric.Quadric, offs []float64, kept []int) (quadric.Quadric, []float64) {
	n := qu.Dim()
	perm := make([]int, n) // perm[new] = old
	copy(perm, kept)

	q := mat.NewSymDense(n, nil)
	r := mat.NewVecDense(n, nil)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		r.SetVec(i, qu.R.AtVec(perm[i]))
		out[i] = offs[perm[i]]
		for j := i; j < n; j++ {
			q.SetSym(i, j, qu.Q.At(perm[i], perm[j]))
		}
	}
	return quadric.Quadric{Q: q, R: r, S: qu.S}, out
}

// Extract2D builds the 2d ellipse with plot axes x and y, marginalising
// proj1/proj2 and fixing slice1/slice2 (pass None for unused slots).
func Extract2D(qu quadric.Quadric, qAvg [4]float64, x, y, proj1, proj2, slice1, slice2 int) (*Ellipse2D, error) {
	keep := []int{x, y}
	if err := checkSelection(keep, []int{proj1, proj2}, []int{slice1, slice2}); err != nil {
		return nil, err
	}
	if x == None || y == None {
		return nil, fmt.Errorf("%w: two plot axes required", ErrAxes)
	}

	red, offs, kept := reduce(qu, qAvg[:], keep, []int{proj1, proj2}, []int{slice1, slice2})
	// reorder the two remaining dims into caller order; kept holds the
	// positions of x and y in the reduced frame
	red, offs = permute(red, offs, kept)

	pr, err := red.Principal()
	if err != nil {
		return nil, err
	}

	ell := &Ellipse2D{
		Rot:   pr.Rot,
		XHWHM: quadric.SigmaToHWHM * pr.Radii[0],
		YHWHM: quadric.SigmaToHWHM * pr.Radii[1],
		XOffs: offs[0],
		YOffs: offs[1],
		Area:  pr.Volume(),
		XLab:  defaultLabels[x],
		YLab:  defaultLabels[y],
	}
	ell.Phi = math.Atan2(pr.Rot.At(1, 0), pr.Rot.At(0, 0))
	ell.Slope = math.Tan(ell.Phi)

	shift := pr.CenterShift()
	ell.XOffs += shift.AtVec(0)
	ell.YOffs += shift.AtVec(1)

	// bounding rectangle from the extremal curve parameters
	x0, y0 := ell.Point(ell.Phi/(2*math.Pi), false)
	x1, y1 := ell.Point((ell.Phi+math.Pi/2)/(2*math.Pi), false)
	ell.XBound = math.Max(math.Abs(x0), math.Abs(x1))
	ell.YBound = math.Max(math.Abs(y0), math.Abs(y1))

	return ell, nil
}

// Extract3D builds the 3d ellipsoid with plot axes x, y, z, marginalising
// proj and fixing slice (None for unused).
func Extract3D(qu quadric.Quadric, qAvg [4]float64, x, y, z, proj, slice int) (*Ellipsoid3D, error) {
	keep := []int{x, y, z}
	if err := checkSelection(keep, []int{proj}, []int{slice}); err != nil {
		return nil, err
	}
	if x == None || y == None || z == None {
		return nil, fmt.Errorf("%w: three plot axes required", ErrAxes)
	}

	red, offs, kept := reduce(qu, qAvg[:], keep, []int{proj}, []int{slice})
	red, offs = permute(red, offs, kept)

	pr, err := red.Principal()
	if err != nil {
		return nil, err
	}
	shift := pr.CenterShift()

	return &Ellipsoid3D{
		Rot:   pr.Rot,
		XHWHM: quadric.SigmaToHWHM * pr.Radii[0],
		YHWHM: quadric.SigmaToHWHM * pr.Radii[1],
		ZHWHM: quadric.SigmaToHWHM * pr.Radii[2],
		XOffs: offs[0] + shift.AtVec(0),
		YOffs: offs[1] + shift.AtVec(1),
		ZOffs: offs[2] + shift.AtVec(2),
		Vol:   pr.Volume(),
		XLab:  defaultLabels[x],
		YLab:  defaultLabels[y],
		ZLab:  defaultLabels[z],
	}, nil
}

// Extract4D returns the principal-axis form of the full quadric.
func Extract4D(qu quadric.Quadric, qAvg [4]float64) (*Ellipsoid4D, error) {
	pr, err := qu.Principal()
	if err != nil {
		return nil, err
	}
	shift := pr.CenterShift()

	return &Ellipsoid4D{
		Rot:   pr.Rot,
		XHWHM: quadric.SigmaToHWHM * pr.Radii[0],
		YHWHM: quadric.SigmaToHWHM * pr.Radii[1],
		ZHWHM: quadric.SigmaToHWHM * pr.Radii[2],
		WHWHM: quadric.SigmaToHWHM * pr.Radii[3],
		XOffs: qAvg[0] + shift.AtVec(0),
		YOffs: qAvg[1] + shift.AtVec(1),
		ZOffs: qAvg[2] + shift.AtVec(2),
		WOffs: qAvg[3] + shift.AtVec(3),
		Vol:   pr.Volume(),
		XLab:  defaultLabels[0],
		YLab:  defaultLabels[1],
		ZLab:  defaultLabels[2],
		WLab:  defaultLabels[3],
	}, nil
}

// Point returns the curve point at parameter t in [0,1), optionally shifted
// to the ellipse centre.
func (e *Ellipse2D) Point(t float64, withOffs bool) (float64, float64) {
	cx := e.XHWHM * math.Cos(2*math.Pi*t)
	cy := e.YHWHM * math.Sin(2*math.Pi*t)
	x := e.Rot.At(0, 0)*cx + e.Rot.At(0, 1)*cy
	y := e.Rot.At(1, 0)*cx + e.Rot.At(1, 1)*cy
	if withOffs {
		x += e.XOffs
		y += e.YOffs
	}
	return x, y
}

// CurvePoints samples n points along the ellipse outline.
func (e *Ellipse2D) CurvePoints(n int) (xs, ys []float64) {
	xs = make([]float64, n)
	ys = make([]float64, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		xs[i], ys[i] = e.Point(t, true)
	}
	return xs, ys
}
