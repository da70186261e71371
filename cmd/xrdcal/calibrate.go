package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"xrd-calib/internal/calibration"
	"xrd-calib/internal/image"
	"xrd-calib/internal/peaks"
)

var calibrateFlags struct {
	calibrant     string
	seeds         []string
	distance      float64
	wavelength    float64
	pixelWidth    float64
	pixelHeight   float64
	polarization  float64
	fitWavelength bool
	local         bool
	recalibrate   bool
	save          string
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate IMAGE",
	Short: "Fit the detector geometry to calibrant rings",
	Long: `Fit the detector geometry to the rings of a calibrant image.

Each --seed is a point on a ring given as column,row,ring (ring 0 is the
innermost). Peaks are grown from every seed (or, with --local, only the
brightest pixel in the configured window is taken), the geometry is refined
against them, and with --recalibrate every ring inside the image is then
searched and the geometry refined again.

Start values come from the config file and may be overridden by flags.
Lengths are in metres.

Examples:
  xrdcal calibrate LaB6.tif --calibrant LaB6 --seed 1179.6,1129.4,0 --seed 1268.5,1119.8,1
  xrdcal calibrate ceo2.tif --calibrant CeO2 --seed 512,300,0 --recalibrate --save ceo2.poni`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := cfgManager.Get()

		start := cfg.Start()
		fl := cmd.Flags()
		if fl.Changed("distance") {
			start.Distance = calibrateFlags.distance
		}
		if fl.Changed("wavelength") {
			start.Wavelength = calibrateFlags.wavelength
		}
		if fl.Changed("pixel-width") {
			start.PixelWidth = calibrateFlags.pixelWidth
		}
		if fl.Changed("pixel-height") {
			start.PixelHeight = calibrateFlags.pixelHeight
		}
		if fl.Changed("polarization") {
			start.PolarizationFactor = calibrateFlags.polarization
		}

		seeds := make([]seed, 0, len(calibrateFlags.seeds))
		for _, s := range calibrateFlags.seeds {
			sd, err := parseSeed(s)
			if err != nil {
				return err
			}
			seeds = append(seeds, sd)
		}

		frame, err := image.Load(args[0])
		if err != nil {
			return err
		}

		s := newSession()
		s.SetFitWavelength(calibrateFlags.fitWavelength)
		if err := s.SetStartValues(start); err != nil {
			return err
		}
		if err := s.SetImage(frame); err != nil {
			return err
		}
		if err := s.SetCalibrant(calibrateFlags.calibrant); err != nil {
			return err
		}

		for _, sd := range seeds {
			if err := ctx.Err(); err != nil {
				return err
			}
			var res peaks.Result
			if calibrateFlags.local {
				res, err = s.FindPeak(sd.X, sd.Y, cfg.PeakSearch.Window, sd.Ring)
			} else {
				res, err = s.FindPeaksAutomatic(sd.X, sd.Y, sd.Ring)
			}
			if err != nil {
				return fmt.Errorf("seed %v: %w", sd, err)
			}
			logger.Info("peaks found", "ring", sd.Ring, "seed_x", sd.X, "seed_y", sd.Y, "points", len(res.Points))
		}

		if err := s.Calibrate(); err != nil {
			return err
		}
		if calibrateFlags.recalibrate {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.Recalibrate(cfg.Algorithm()); err != nil {
				return err
			}
		}
		if calibrateFlags.save != "" {
			if err := s.Save(calibrateFlags.save); err != nil {
				return err
			}
		}

		params, err := s.CalibrationParameters()
		if err != nil {
			return err
		}
		return output(calibrateResult{
			Session:    s.ID(),
			Name:       s.Name(),
			Calibrant:  s.Calibrant().Name(),
			Peaks:      s.PointCount(),
			Parameters: params,
		})
	},
}

type calibrateResult struct {
	Session    string                 `json:"session" yaml:"session"`
	Name       string                 `json:"name" yaml:"name"`
	Calibrant  string                 `json:"calibrant" yaml:"calibrant"`
	Peaks      int                    `json:"peaks" yaml:"peaks"`
	Parameters calibration.Parameters `json:"parameters" yaml:"parameters"`
}

// seed is a user supplied point on ring Ring.
type seed struct {
	X, Y float64
	Ring int
}

// parseSeed reads "column,row,ring".
func parseSeed(s string) (seed, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return seed{}, fmt.Errorf("invalid seed %q: want column,row,ring", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return seed{}, fmt.Errorf("invalid seed column %q: %w", parts[0], err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return seed{}, fmt.Errorf("invalid seed row %q: %w", parts[1], err)
	}
	ring, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || ring < 0 {
		return seed{}, fmt.Errorf("invalid seed ring %q", parts[2])
	}
	return seed{X: x, Y: y, Ring: ring}, nil
}

func init() {
	f := calibrateCmd.Flags()
	f.StringVarP(&calibrateFlags.calibrant, "calibrant", "c", "", "calibrant name or definition file")
	f.StringArrayVarP(&calibrateFlags.seeds, "seed", "s", nil, "point on a ring as column,row,ring (repeatable)")
	f.Float64Var(&calibrateFlags.distance, "distance", 0, "start sample-detector distance (m)")
	f.Float64Var(&calibrateFlags.wavelength, "wavelength", 0, "start wavelength (m)")
	f.Float64Var(&calibrateFlags.pixelWidth, "pixel-width", 0, "pixel width (m)")
	f.Float64Var(&calibrateFlags.pixelHeight, "pixel-height", 0, "pixel height (m)")
	f.Float64Var(&calibrateFlags.polarization, "polarization", 0, "polarization factor")
	f.BoolVar(&calibrateFlags.fitWavelength, "fit-wavelength", false, "refine the wavelength as well")
	f.BoolVar(&calibrateFlags.local, "local", false, "take the local maximum near each seed instead of growing peaks")
	f.BoolVar(&calibrateFlags.recalibrate, "recalibrate", false, "search every ring and refine again")
	f.StringVar(&calibrateFlags.save, "save", "", "write the geometry to this PONI file")
	calibrateCmd.MarkFlagRequired("calibrant")
	calibrateCmd.MarkFlagRequired("seed")
}
