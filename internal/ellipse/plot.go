package ellipse

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// curvePoints is the default outline sampling used for plots.
const curvePoints = 512

var plotColors = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
}

// SavePlot renders the ellipse outlines into one figure. The output format
// follows the file extension (svg, png, pdf). Axis labels are taken from the
// first ellipse; names label the legend entries.
func SavePlot(ells []*Ellipse2D, names []string, path string) error {
	if len(ells) == 0 {
		return fmt.Errorf("ellipse: nothing to plot")
	}

	p := plot.New()
	p.Title.Text = "Resolution ellipses"
	p.X.Label.Text = ells[0].XLab
	p.Y.Label.Text = ells[0].YLab
	p.Add(plotter.NewGrid())

	for i, ell := range ells {
		xs, ys := ell.CurvePoints(curvePoints)
		pts := make(plotter.XYs, len(xs))
		for j := range xs {
			pts[j].X = xs[j]
			pts[j].Y = ys[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotColors[i%len(plotColors)]
		p.Add(line)
		if i < len(names) {
			p.Legend.Add(names[i], line)
		}
	}

	return p.Save(14*vg.Centimeter, 10*vg.Centimeter, path)
}
