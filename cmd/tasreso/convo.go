package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/triaxis-tools/tasreso/internal/convolve"
	"github.com/triaxis-tools/tasreso/internal/jobfile"
)

func convoCmd() *cobra.Command {
	var (
		neutrons   int
		threads    int
		seed       int64
		autosave   string
		scans      []string
		sets       []string
		oversample int
	)

	cmd := &cobra.Command{
		Use:   "convo <job.yaml>",
		Short: "convolute the model over the scans of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("neutrons") {
				job.Convo.Neutrons = neutrons
			}
			if cmd.Flags().Changed("threads") {
				job.Convo.Threads = threads
			}
			if cmd.Flags().Changed("seed") {
				job.Convo.Seed = seed
			}
			if cmd.Flags().Changed("autosave") {
				job.Output.Autosave = autosave
			}
			job.OverrideScans(scans)
			if err := job.OverrideModelParams(sets); err != nil {
				return err
			}
			if len(job.Scans) == 0 {
				return fmt.Errorf("job %s names no scans", args[0])
			}
			if oversample < 1 {
				return fmt.Errorf("--oversample must be at least 1, got %d", oversample)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			for si, scanFile := range job.Scans {
				scan, err := convolve.LoadScan(scanFile)
				if err != nil {
					return err
				}
				ev, err := buildEvaluator(job)
				if err != nil {
					return err
				}
				positions, xs := convolve.ScanPositions(scan)
				if oversample > 1 {
					positions, xs = scan.OversampledPositions(oversample)
				}

				log := logrus.WithField("scan", scanFile)
				log.Infof("convoluting %d points on the %s axis", len(positions), scan.AxisName())

				ys, err := ev.Pass(ctx, positions, xs, func(i int, y float64) {
					log.Debugf("point %d done: %g", i, y)
				})
				if err != nil {
					return err
				}
				chi2 := convolve.Chi2(scan, ys)
				if oversample > 1 {
					chi2 = convolve.Chi2Curve(scan, xs, ys)
				}
				log.Infof("chi2 = %g, %d warnings", chi2, ev.Warnings())

				fmt.Printf("# scan: %s (%s axis)\n", scanFile, scan.AxisName())
				for i := range ys {
					fmt.Printf("  %16.8g %16.8g\n", xs[i], ys[i])
				}

				if path := job.Output.Autosave; path != "" {
					if len(job.Scans) > 1 {
						path = fmt.Sprintf("%s.%d", path, si)
					}
					a := convolve.NewAutosave(path)
					a.AddMeta("scan", scanFile)
					a.AddMeta("model", job.Model.Kind)
					a.AddMeta("neutrons", fmt.Sprint(job.Convo.Neutrons))
					a.AddMeta("seed", fmt.Sprint(job.Convo.Seed))
					if err := a.Finish(xs, ys, chi2); err != nil {
						return err
					}
					log.Infof("wrote %s", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&neutrons, "neutrons", 0, "override the Monte-Carlo neutron count")
	cmd.Flags().IntVar(&threads, "threads", 0, "override the worker count")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override the random seed")
	cmd.Flags().StringVar(&autosave, "autosave", "", "override the autosave path")
	cmd.Flags().StringArrayVar(&scans, "scan", nil, "override the job's scan files")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a model parameter, \"name=value\"")
	cmd.Flags().IntVar(&oversample, "oversample", 1, "curve samples per measured step")
	return cmd
}
