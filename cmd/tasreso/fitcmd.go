package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/triaxis-tools/tasreso/internal/convolve"
	"github.com/triaxis-tools/tasreso/internal/fit"
	"github.com/triaxis-tools/tasreso/internal/jobfile"
)

func fitCmd() *cobra.Command {
	var (
		maxCalls int
		threads  int
		scans    []string
		sets     []string
	)

	cmd := &cobra.Command{
		Use:   "fit <job.yaml>",
		Short: "fit the model parameters against the measured scans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-calls") {
				job.Fit.MaxCalls = maxCalls
			}
			if cmd.Flags().Changed("threads") {
				job.Convo.Threads = threads
			}
			job.OverrideScans(scans)
			if len(job.Scans) == 0 {
				return fmt.Errorf("job %s names no scans", args[0])
			}

			params, err := job.FitParams()
			if err != nil {
				return err
			}
			if len(params) == 0 {
				return fmt.Errorf("job %s defines no fit parameters", args[0])
			}
			for _, set := range sets {
				name, val, err := fit.ParseAssignment(set)
				if err != nil {
					return err
				}
				found := false
				for i := range params {
					if params[i].Name == name {
						params[i].Value = val
						found = true
					}
				}
				if !found {
					return fmt.Errorf("--set %s: no such fit parameter", set)
				}
			}

			var groups []fit.Group
			for _, scanFile := range job.Scans {
				scan, err := convolve.LoadScan(scanFile)
				if err != nil {
					return err
				}
				ev, err := buildEvaluator(job)
				if err != nil {
					return err
				}
				groups = append(groups, fit.Group{Ev: ev, Scan: scan})
			}

			d := fit.NewDriver(groups, params)
			d.MaxCalls = job.Fit.MaxCalls
			d.Tolerance = job.Fit.Tolerance

			// autosave after every pass so an interrupted fit keeps its
			// last curves
			var saves []*convolve.Autosave
			var saveXs [][]float64
			if path := job.Output.Autosave; path != "" {
				for gi, g := range groups {
					out := path
					if len(groups) > 1 {
						out = fmt.Sprintf("%s.%d", path, gi)
					}
					a := convolve.NewAutosave(out)
					a.AddMeta("model", job.Model.Kind)
					a.AddMeta("scan", job.Scans[gi])
					saves = append(saves, a)
					_, xs := convolve.ScanPositions(g.Scan)
					saveXs = append(saveXs, xs)
				}
				d.OnPass = func(curves [][]float64, chi2 float64) {
					for gi, a := range saves {
						if err := a.Write(saveXs[gi], curves[gi]); err != nil {
							logrus.Warnf("autosave: %v", err)
						}
					}
				}
			}

			// first interrupt stops the fit gracefully, the second kills
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt)
			defer signal.Stop(sig)
			go func() {
				<-sig
				logrus.Warn("interrupt: stopping the fit after the current pass")
				d.Stop()
			}()

			logrus.Infof("fitting %d parameters over %d scans", len(params), len(groups))
			res, err := d.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("state:  %s\n", res.State)
			fmt.Printf("chi2:   %.8g\n", res.Chi2)
			fmt.Printf("calls:  %d\n", res.FuncEvals)
			for _, p := range res.Params {
				if p.Fixed {
					fmt.Printf("%-12s = %16.8g (fixed)\n", p.Name, p.Value)
					continue
				}
				fmt.Printf("%-12s = %16.8g +- %g\n", p.Name, p.Value, p.Err)
			}

			// a stopped or non-converged fit still persists its last state
			if len(saves) > 0 {
				if err := finishCurves(groups, saves, saveXs); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxCalls, "max-calls", 0, "override the cost evaluation limit")
	cmd.Flags().IntVar(&threads, "threads", 0, "override the worker count")
	cmd.Flags().StringArrayVar(&scans, "scan", nil, "override the job's scan files")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a start value, \"name=value\"")
	return cmd
}

// finishCurves re-evaluates each group at the parameters the evaluators
// were left with (the minimum, or the last evaluated set after a stop) and
// seals the autosave files.
func finishCurves(groups []fit.Group, saves []*convolve.Autosave, saveXs [][]float64) error {
	for gi, g := range groups {
		positions, xs := convolve.ScanPositions(g.Scan)
		ys, err := g.Ev.Pass(context.Background(), positions, xs, nil)
		if err != nil {
			return err
		}
		if err := saves[gi].Finish(saveXs[gi], ys, convolve.Chi2(g.Scan, ys)); err != nil {
			return err
		}
		logrus.Infof("sealed autosave for scan group %d", gi)
	}
	return nil
}
