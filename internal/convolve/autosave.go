package convolve

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// Autosave periodically writes the convolution curve to disk so partial
// results survive an interrupted run. A finished file carries the fit
// quality, the timestamps and an EOF marker; a file without the marker is
// known to be truncated.
type Autosave struct {
	path  string
	meta  [][2]string
	start time.Time
}

// NewAutosave prepares an autosave target. No file is written yet.
func NewAutosave(path string) *Autosave {
	return &Autosave{path: path, start: time.Now()}
}

// AddMeta records a header line, in order.
func (a *Autosave) AddMeta(key, val string) {
	a.meta = append(a.meta, [2]string{key, val})
}

// Write replaces the file with the current curve.
func (a *Autosave) Write(xs, ys []float64) error {
	return a.write(xs, ys, nil)
}

// Finish writes the final curve with the goodness-of-fit, the run
// timestamps and the EOF marker.
func (a *Autosave) Finish(xs, ys []float64, chi2 float64) error {
	footer := []string{
		fmt.Sprintf("chi2: %.8g", chi2),
		fmt.Sprintf("start: %s", a.start.Format(timeFormat)),
		fmt.Sprintf("stop: %s", time.Now().Format(timeFormat)),
	}
	return a.write(xs, ys, footer)
}

func (a *Autosave) write(xs, ys []float64, footer []string) error {
	f, err := os.Create(a.path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	for _, kv := range a.meta {
		fmt.Fprintf(w, "# %s: %s\n", kv[0], kv[1])
	}
	fmt.Fprintf(w, "#\n# %16s %16s\n", "x", "S(x)")
	for i := range xs {
		fmt.Fprintf(w, "  %16.8g %16.8g\n", xs[i], ys[i])
	}
	for _, line := range footer {
		fmt.Fprintf(w, "# %s\n", line)
	}
	if footer != nil {
		fmt.Fprintln(w, "# EOF")
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
