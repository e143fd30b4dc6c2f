package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/triaxis-tools/tasreso/internal/convolve"
	"github.com/triaxis-tools/tasreso/internal/jobfile"
)

func mapCmd() *cobra.Command {
	var (
		startStr string
		step1Str string
		step2Str string
		steps    int
		out      string
	)

	cmd := &cobra.Command{
		Use:   "map <job.yaml>",
		Short: "convolute a 2d intensity map over a grid of positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}
			start, err := parseVec4(startStr)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			step1, err := parseVec4(step1Str)
			if err != nil {
				return fmt.Errorf("--step1: %w", err)
			}
			step2, err := parseVec4(step2Str)
			if err != nil {
				return fmt.Errorf("--step2: %w", err)
			}
			if steps < 2 {
				return fmt.Errorf("--steps must be at least 2, got %d", steps)
			}

			ev, err := buildEvaluator(job)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logrus.Infof("convoluting a %dx%d map", steps, steps)
			grid, err := ev.MapPass(ctx,
				convolve.Position{H: start[0], K: start[1], L: start[2], E: start[3]},
				convolve.Position{H: step1[0], K: step1[1], L: step1[2], E: step1[3]},
				convolve.Position{H: step2[0], K: step2[1], L: step2[2], E: step2[3]},
				steps)
			if err != nil {
				return err
			}
			logrus.Infof("map done, %d warnings", ev.Warnings())

			w := bufio.NewWriter(os.Stdout)
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = bufio.NewWriter(f)
			}
			fmt.Fprintf(w, "# %dx%d map from (%g %g %g %g)\n", steps, steps,
				start[0], start[1], start[2], start[3])
			for i := range grid {
				for j := range grid[i] {
					fmt.Fprintf(w, "  %4d %4d %16.8g\n", i, j, grid[i][j])
				}
				fmt.Fprintln(w)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "grid origin as \"h,k,l,E\"")
	cmd.Flags().StringVar(&step1Str, "step1", "", "first step vector as \"h,k,l,E\"")
	cmd.Flags().StringVar(&step2Str, "step2", "", "second step vector as \"h,k,l,E\"")
	cmd.Flags().IntVar(&steps, "steps", 16, "points per grid side")
	cmd.Flags().StringVar(&out, "out", "", "write the map to a file instead of stdout")
	cobra.CheckErr(cmd.MarkFlagRequired("start"))
	cobra.CheckErr(cmd.MarkFlagRequired("step1"))
	cobra.CheckErr(cmd.MarkFlagRequired("step2"))
	return cmd
}
