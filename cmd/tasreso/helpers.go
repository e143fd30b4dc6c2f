package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/triaxis-tools/tasreso/internal/convolve"
	"github.com/triaxis-tools/tasreso/internal/jobfile"
	"github.com/triaxis-tools/tasreso/internal/reso"
)

// parseVec4 reads a comma-separated "h,k,l,E" vector.
func parseVec4(s string) ([4]float64, error) {
	var v [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return v, fmt.Errorf("want \"h,k,l,E\", got %q", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, fmt.Errorf("component %d of %q: %w", i+1, s, err)
		}
		v[i] = f
	}
	return v, nil
}

// buildEvaluator wires the instrument, the model and the convolution
// settings of a job into a fresh evaluator.
func buildEvaluator(job *jobfile.Job) (*convolve.Evaluator, error) {
	ins, err := reso.LoadInstrument(job.Instrument)
	if err != nil {
		return nil, err
	}
	model, err := job.BuildModel()
	if err != nil {
		return nil, err
	}
	return convolve.New(job.ConvoConfig(), reso.NewGaussProvider(ins), model), nil
}
