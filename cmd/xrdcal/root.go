package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"xrd-calib/internal/calibrant"
	"xrd-calib/internal/calibration"
	"xrd-calib/internal/config"
	"xrd-calib/internal/version"
)

var (
	cfgFile      string
	outputFormat string
	verbose      bool

	cfgManager *config.Manager
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "xrdcal",
	Short: "Powder diffraction detector calibration and azimuthal integration",
	Long: `xrdcal calibrates the geometry of an area detector from a powder
diffraction image of a known calibrant, and reduces images to 1D patterns
and 2D cakes with the calibrated geometry.

Typical use:
  xrdcal calibrate LaB6.tif --calibrant LaB6 --seed 1179.6,1129.4,0 --save lab6.poni
  xrdcal integrate sample.tif --poni lab6.poni
  xrdcal params lab6.poni`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		if err := setOutputFormat(outputFormat); err != nil {
			return err
		}

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgManager = mgr
		if f := mgr.File(); f != "" {
			logger.Debug("config loaded", "file", f)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./xrdcal.yaml or ~/.xrdcal/xrdcal.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "debug logging on stderr",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(integrateCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(calibrantsCmd)
	rootCmd.AddCommand(configCmd)
}

// newSession builds a session from the loaded config.
func newSession() *calibration.Session {
	cfg := cfgManager.Get()
	opts := append(cfg.SessionOptions(),
		calibration.WithLogger(logger),
		calibration.WithRegistry(calibrant.NewRegistry(cfg.CalibrantDir)),
	)
	return calibration.New(opts...)
}
