package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triaxis-tools/tasreso/internal/ellipse"
	"github.com/triaxis-tools/tasreso/internal/reso"
)

func ellipseCmd() *cobra.Command {
	var (
		insFile string
		posStr  string
		plot    string
	)

	cmd := &cobra.Command{
		Use:   "ellipse",
		Short: "print the resolution ellipses at one scattering position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ins, err := reso.LoadInstrument(insFile)
			if err != nil {
				return err
			}
			pos, err := parseVec4(posStr)
			if err != nil {
				return fmt.Errorf("--pos: %w", err)
			}

			prov := reso.NewGaussProvider(ins)
			res, err := prov.Compute(pos[0], pos[1], pos[2], pos[3])
			if err != nil {
				return err
			}

			type section struct {
				name                 string
				x, y, p1, p2, s1, s2 int
			}
			sections := []section{
				{"Q_para/E, projected", 0, 3, 1, 2, ellipse.None, ellipse.None},
				{"Q_para/E, sliced", 0, 3, ellipse.None, ellipse.None, 1, 2},
				{"Q_para/Q_ortho, projected", 0, 1, 2, 3, ellipse.None, ellipse.None},
				{"Q_para/Q_ortho, sliced", 0, 1, ellipse.None, ellipse.None, 2, 3},
			}

			var qparaE []*ellipse.Ellipse2D
			var qparaENames []string
			for _, sec := range sections {
				ell, err := ellipse.Extract2D(res.Reso, res.QAvg,
					sec.x, sec.y, sec.p1, sec.p2, sec.s1, sec.s2)
				if err != nil {
					return err
				}
				fmt.Printf("%s:\n", sec.name)
				fmt.Printf("  hwhm:   %.6g x %.6g\n", ell.XHWHM, ell.YHWHM)
				fmt.Printf("  centre: (%.6g, %.6g)\n", ell.XOffs, ell.YOffs)
				fmt.Printf("  angle:  %.6g rad, area %.6g\n", ell.Phi, ell.Area)
				if sec.y == 3 {
					qparaE = append(qparaE, ell)
					qparaENames = append(qparaENames, sec.name)
				}
			}

			full, err := ellipse.Extract4D(res.Reso, res.QAvg)
			if err != nil {
				return err
			}
			fmt.Printf("4d ellipsoid volume: %.6g\n", full.Vol)

			fmt.Printf("bragg fwhms:    %.6g %.6g %.6g %.6g\n",
				res.BraggFWHMs[0], res.BraggFWHMs[1], res.BraggFWHMs[2], res.BraggFWHMs[3])
			vana := ellipse.VanadiumFWHMs(res.Reso)
			fmt.Printf("vanadium fwhms: %.6g %.6g %.6g %.6g\n",
				vana[0], vana[1], vana[2], vana[3])

			if plot != "" {
				if err := ellipse.SavePlot(qparaE, qparaENames, plot); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", plot)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&insFile, "instrument", "", "instrument file")
	cmd.Flags().StringVar(&posStr, "pos", "", "position as \"h,k,l,E\"")
	cmd.Flags().StringVar(&plot, "plot", "", "save the Q_para/E ellipses to a figure")
	cobra.CheckErr(cmd.MarkFlagRequired("instrument"))
	cobra.CheckErr(cmd.MarkFlagRequired("pos"))
	return cmd
}
