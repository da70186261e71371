package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xrd-calib/internal/image"
	"xrd-calib/internal/integrate"
)

var integrateFlags struct {
	poni          string
	cake          bool
	bins          int
	radialBins    int
	azimuthalBins int
	unit          string
	mask          string
}

var integrateCmd = &cobra.Command{
	Use:   "integrate IMAGE",
	Short: "Reduce an image to a 1D pattern or 2D cake",
	Long: `Integrate an image azimuthally with a geometry read from a PONI file.

The 1D pattern is written by default; --cake writes the 2D
(azimuth x radial) result instead. Pixels where the --mask image is
non-zero are excluded.

Radial units: 2th_deg, 2th_rad, q_nm^-1, q_A^-1, r_mm.

Examples:
  xrdcal integrate sample.tif --poni lab6.poni
  xrdcal integrate sample.tif --poni lab6.poni --cake --radial-bins 500 --azimuthal-bins 360 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgManager.Get()

		frame, err := image.Load(args[0])
		if err != nil {
			return err
		}

		s := newSession()
		if err := s.SetStartValues(cfg.Start()); err != nil {
			return err
		}
		if err := s.SetImage(frame); err != nil {
			return err
		}
		if err := s.Load(integrateFlags.poni); err != nil {
			return err
		}

		opts := s.DefaultIntegration()
		fl := cmd.Flags()
		if fl.Changed("bins") {
			opts.Bins = integrateFlags.bins
		}
		if fl.Changed("radial-bins") {
			opts.RadialBins = integrateFlags.radialBins
		}
		if fl.Changed("azimuthal-bins") {
			opts.AzimuthalBins = integrateFlags.azimuthalBins
		}
		if fl.Changed("unit") {
			u, err := integrate.ParseUnit(integrateFlags.unit)
			if err != nil {
				return err
			}
			opts.Unit = u
		}
		if integrateFlags.mask != "" {
			mask, err := loadMask(integrateFlags.mask, frame.Width, frame.Height)
			if err != nil {
				return err
			}
			opts.Mask = mask
		}

		if integrateFlags.cake {
			cake, err := s.Integrate2D(opts)
			if err != nil {
				return err
			}
			return output(cake)
		}
		pattern, err := s.Integrate1D(opts)
		if err != nil {
			return err
		}
		return output(pattern)
	},
}

// loadMask reads a mask image; non-zero pixels are excluded.
func loadMask(path string, width, height int) ([]bool, error) {
	m, err := image.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load mask: %w", err)
	}
	if m.Width != width || m.Height != height {
		return nil, fmt.Errorf("%w: mask is %dx%d, image is %dx%d",
			integrate.ErrMaskShape, m.Width, m.Height, width, height)
	}
	mask := make([]bool, len(m.Data))
	for i, v := range m.Data {
		mask[i] = v != 0
	}
	return mask, nil
}

func init() {
	f := integrateCmd.Flags()
	f.StringVarP(&integrateFlags.poni, "poni", "p", "", "PONI file with the calibrated geometry")
	f.BoolVar(&integrateFlags.cake, "cake", false, "write the 2D cake instead of the 1D pattern")
	f.IntVar(&integrateFlags.bins, "bins", integrate.DefaultBins, "1D radial bins")
	f.IntVar(&integrateFlags.radialBins, "radial-bins", integrate.DefaultRadialBins, "2D radial bins")
	f.IntVar(&integrateFlags.azimuthalBins, "azimuthal-bins", integrate.DefaultAzimuthalBins, "2D azimuthal bins")
	f.StringVar(&integrateFlags.unit, "unit", string(integrate.TwoThetaDeg), "radial unit")
	f.StringVar(&integrateFlags.mask, "mask", "", "mask image, non-zero pixels excluded")
	integrateCmd.MarkFlagRequired("poni")
}
