package convolve

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// ScanPoint is one measured point of a triple-axis scan.
type ScanPoint struct {
	H, K, L, E float64
	Counts     float64
	Err        float64
	Monitor    float64
}

// Scan is a measured scan with its detected principal axis.
type Scan struct {
	Points []ScanPoint
	// Axis is the index of the varied coordinate: 0..3 for h,k,l,E.
	Axis int
}

var axisNames = [4]string{"h", "k", "l", "E"}

// AxisName returns the label of the scan axis.
func (s *Scan) AxisName() string { return axisNames[s.Axis] }

// X returns the scan-axis coordinate of point i.
func (s *Scan) X(i int) float64 {
	switch s.Axis {
	case 0:
		return s.Points[i].H
	case 1:
		return s.Points[i].K
	case 2:
		return s.Points[i].L
	default:
		return s.Points[i].E
	}
}

// LoadScan reads a column file: h k l E counts [monitor], '#' starts a
// comment. Counting errors default to sqrt(N) with a floor of 1. The scan
// axis is the coordinate with the largest span.
func LoadScan(path string) (*Scan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scan := &Scan{}
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, fmt.Errorf("convolve: %s:%d: need at least 5 columns, got %d", path, lineNo, len(fields))
		}
		var vals [6]float64
		for i := 0; i < len(fields) && i < 6; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("convolve: %s:%d: column %d: %w", path, lineNo, i+1, err)
			}
			vals[i] = v
		}
		pt := ScanPoint{
			H: vals[0], K: vals[1], L: vals[2], E: vals[3],
			Counts:  vals[4],
			Monitor: vals[5],
		}
		pt.Err = math.Sqrt(math.Max(pt.Counts, 1))
		scan.Points = append(scan.Points, pt)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(scan.Points) == 0 {
		return nil, fmt.Errorf("convolve: %s: no data points", path)
	}
	scan.Axis = detectAxis(scan.Points)
	return scan, nil
}

// OversampledPositions interpolates factor sub-steps into every measured
// step along the scan path, for smooth convolution curves. The returned
// scan-axis coordinates pair with the positions.
func (s *Scan) OversampledPositions(factor int) ([]Position, []float64) {
	if factor < 1 {
		factor = 1
	}
	n := len(s.Points)
	positions := make([]Position, 0, (n-1)*factor+1)
	xs := make([]float64, 0, cap(positions))

	add := func(p Position, x float64) {
		positions = append(positions, p)
		xs = append(xs, x)
	}
	at := func(i int) Position {
		pt := s.Points[i]
		return Position{H: pt.H, K: pt.K, L: pt.L, E: pt.E}
	}
	for i := 0; i < n-1; i++ {
		a, b := at(i), at(i+1)
		xa, xb := s.X(i), s.X(i+1)
		for k := 0; k < factor; k++ {
			t := float64(k) / float64(factor)
			add(Position{
				H: a.H + t*(b.H-a.H),
				K: a.K + t*(b.K-a.K),
				L: a.L + t*(b.L-a.L),
				E: a.E + t*(b.E-a.E),
			}, xa+t*(xb-xa))
		}
	}
	add(at(n-1), s.X(n-1))
	return positions, xs
}

func detectAxis(pts []ScanPoint) int {
	var lo, hi [4]float64
	for i := 0; i < 4; i++ {
		lo[i] = math.Inf(1)
		hi[i] = math.Inf(-1)
	}
	for _, p := range pts {
		coords := [4]float64{p.H, p.K, p.L, p.E}
		for i, c := range coords {
			lo[i] = math.Min(lo[i], c)
			hi[i] = math.Max(hi[i], c)
		}
	}
	axis, span := 3, 0.0
	for i := 0; i < 4; i++ {
		if s := hi[i] - lo[i]; s > span {
			axis, span = i, s
		}
	}
	return axis
}
