package convolve

import "math"

// Chi2 compares computed intensities against the measured scan counts.
// The curve must be evaluated at the scan's own positions; points with a
// zero error are skipped.
func Chi2(scan *Scan, ys []float64) float64 {
	var chi2 float64
	for i, pt := range scan.Points {
		if i >= len(ys) || pt.Err == 0 {
			continue
		}
		d := (ys[i] - pt.Counts) / pt.Err
		chi2 += d * d
	}
	return chi2
}

// Chi2Curve compares a curve sampled at arbitrary x positions against the
// scan by matching each measured point to the nearest curve sample. Used
// for the approximate goodness-of-fit of oversampled convolution curves.
func Chi2Curve(scan *Scan, xs, ys []float64) float64 {
	var chi2 float64
	for i, pt := range scan.Points {
		if pt.Err == 0 || len(xs) == 0 {
			continue
		}
		x := scan.X(i)
		best, dist := 0, math.Inf(1)
		for j, cx := range xs {
			if d := math.Abs(cx - x); d < dist {
				best, dist = j, d
			}
		}
		d := (ys[best] - pt.Counts) / pt.Err
		chi2 += d * d
	}
	return chi2
}
