// Package jobfile reads the YAML job description driving the command-line
// tools: instrument, model, convolution settings, scans and fit setup.
package jobfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/triaxis-tools/tasreso/internal/convolve"
	"github.com/triaxis-tools/tasreso/internal/fit"
	"github.com/triaxis-tools/tasreso/internal/mc"
	"github.com/triaxis-tools/tasreso/internal/sqw"
)

type ModelCfg struct {
	Kind   string             `yaml:"kind"`
	Params map[string]float64 `yaml:"params"`
}

type ConvoCfg struct {
	Neutrons    int     `yaml:"neutrons"`
	SampleSteps int     `yaml:"sample_steps"`
	Recycle     int     `yaml:"recycle"`
	Seed        int64   `yaml:"seed"`
	Threads     int     `yaml:"threads"`
	Scale       float64 `yaml:"scale"`
	Slope       float64 `yaml:"slope"`
	Offs        float64 `yaml:"offs"`
}

type FitParamCfg struct {
	Name   string  `yaml:"name"`
	Value  float64 `yaml:"value"`
	Limits string  `yaml:"limits"`
	Fixed  bool    `yaml:"fixed"`
}

type FitCfg struct {
	MaxCalls  int           `yaml:"max_calls"`
	Tolerance float64       `yaml:"tolerance"`
	Params    []FitParamCfg `yaml:"parameters"`
}

type OutputCfg struct {
	Autosave string `yaml:"autosave"`
	Plot     string `yaml:"plot"`
}

// Job is one convolution or fit job.
type Job struct {
	Instrument string    `yaml:"instrument"`
	Model      ModelCfg  `yaml:"model"`
	Convo      ConvoCfg  `yaml:"convolution"`
	Scans      []string  `yaml:"scans"`
	Fit        FitCfg    `yaml:"fit"`
	Output     OutputCfg `yaml:"output"`
}

// Load reads a job file and applies defaults.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("jobfile: %s: %w", path, err)
	}
	if err := job.validate(path); err != nil {
		return nil, err
	}
	return &job, nil
}

func (j *Job) validate(path string) error {
	if j.Instrument == "" {
		return fmt.Errorf("jobfile: %s: no instrument file", path)
	}
	if j.Model.Kind == "" {
		return fmt.Errorf("jobfile: %s: no model kind", path)
	}
	if j.Convo.Recycle < 0 || j.Convo.Recycle > 2 {
		return fmt.Errorf("jobfile: %s: recycle must be 0, 1 or 2", path)
	}
	if j.Convo.Neutrons < 0 {
		return fmt.Errorf("jobfile: %s: neutrons must not be negative", path)
	}
	if j.Convo.SampleSteps == 0 {
		j.Convo.SampleSteps = 1
	}
	if j.Convo.Scale == 0 {
		j.Convo.Scale = 1
	}
	if j.Fit.MaxCalls == 0 {
		j.Fit.MaxCalls = 500
	}
	if j.Fit.Tolerance == 0 {
		j.Fit.Tolerance = 1e-6
	}
	return nil
}

// OverrideScans replaces the job's scan files when the override is
// non-empty.
func (j *Job) OverrideScans(scans []string) {
	if len(scans) > 0 {
		j.Scans = scans
	}
}

// OverrideModelParams applies "name=value" overrides to the model's
// initial parameters.
func (j *Job) OverrideModelParams(sets []string) error {
	for _, set := range sets {
		name, val, err := fit.ParseAssignment(set)
		if err != nil {
			return err
		}
		if j.Model.Params == nil {
			j.Model.Params = map[string]float64{}
		}
		j.Model.Params[name] = val
	}
	return nil
}

// BuildModel constructs the S(Q,E) model named by the job.
func (j *Job) BuildModel() (sqw.Model, error) {
	return sqw.New(j.Model.Kind, j.Model.Params)
}

// ConvoConfig converts the job settings into an evaluator configuration.
func (j *Job) ConvoConfig() convolve.Config {
	return convolve.Config{
		NeutronCount: j.Convo.Neutrons,
		SampleSteps:  j.Convo.SampleSteps,
		Recycle:      mc.RecycleMode(j.Convo.Recycle),
		Seed:         j.Convo.Seed,
		Threads:      j.Convo.Threads,
		Scale:        j.Convo.Scale,
		Slope:        j.Convo.Slope,
		Offs:         j.Convo.Offs,
	}
}

// FitParams converts the configured fit parameters.
func (j *Job) FitParams() ([]fit.Parameter, error) {
	params := make([]fit.Parameter, 0, len(j.Fit.Params))
	for _, cfg := range j.Fit.Params {
		if cfg.Name == "" {
			return nil, fmt.Errorf("jobfile: fit parameter without a name")
		}
		min, max, err := fit.ParseLimits(cfg.Limits)
		if err != nil {
			return nil, err
		}
		params = append(params, fit.Parameter{
			Name:  cfg.Name,
			Value: cfg.Value,
			Min:   min,
			Max:   max,
			Fixed: cfg.Fixed,
		})
	}
	return params, nil
}
