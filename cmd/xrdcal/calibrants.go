package main

import (
	"math"

	"github.com/spf13/cobra"

	"xrd-calib/internal/calibrant"
)

var calibrantsWavelength float64

var calibrantsCmd = &cobra.Command{
	Use:   "calibrants [NAME]",
	Short: "List calibrants or show one calibrant's rings",
	Long: `Without arguments, list the built-in calibrants and any definitions in
the configured calibrant directory. With a name or definition file, show
its d-spacings and ring angles at the start wavelength.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgManager.Get()
		reg := calibrant.NewRegistry(cfg.CalibrantDir)
		if len(args) == 0 {
			return output(reg.Names())
		}

		wavelength := cfg.StartValues.Wavelength
		if cmd.Flags().Changed("wavelength") {
			wavelength = calibrantsWavelength
		}
		c, err := reg.Load(args[0], wavelength)
		if err != nil {
			return err
		}
		return output(calibrantInfo{
			Name:       c.Name(),
			Wavelength: c.Wavelength(),
			DSpacings:  c.DSpacings(),
			TwoTheta:   degreesAll(c.Angles()),
		})
	},
}

type calibrantInfo struct {
	Name       string    `json:"name" yaml:"name"`
	Wavelength float64   `json:"wavelength" yaml:"wavelength"`
	DSpacings  []float64 `json:"d_spacings" yaml:"d_spacings"`            // Å
	TwoTheta   []float64 `json:"two_theta_deg" yaml:"two_theta_deg,flow"` // observable rings only
}

func degreesAll(rad []float64) []float64 {
	out := make([]float64, len(rad))
	for i, r := range rad {
		out[i] = r * 180 / math.Pi
	}
	return out
}

func init() {
	calibrantsCmd.Flags().Float64Var(&calibrantsWavelength, "wavelength", 0, "wavelength (m) for ring angles")
}
