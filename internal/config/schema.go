package config

// Config holds xrdcal configuration.
// Stored at: ./xrdcal.yaml or $HOME/.xrdcal/xrdcal.yaml
type Config struct {
	StartValues  StartValuesCfg `mapstructure:"start_values" yaml:"start_values"`
	PeakSearch   PeakSearchCfg  `mapstructure:"peak_search" yaml:"peak_search"`
	Integration  IntegrationCfg `mapstructure:"integration" yaml:"integration"`
	Refinement   RefinementCfg  `mapstructure:"refinement" yaml:"refinement"`
	CalibrantDir string         `mapstructure:"calibrant_dir" yaml:"calibrant_dir"` // Extra .D / .yaml calibrants
}

// StartValuesCfg seeds a calibration. SI units.
type StartValuesCfg struct {
	Distance           float64 `mapstructure:"distance" yaml:"distance"`       // m
	Wavelength         float64 `mapstructure:"wavelength" yaml:"wavelength"`   // m
	PixelWidth         float64 `mapstructure:"pixel_width" yaml:"pixel_width"` // m
	PixelHeight        float64 `mapstructure:"pixel_height" yaml:"pixel_height"`
	PolarizationFactor float64 `mapstructure:"polarization_factor" yaml:"polarization_factor"`
}

// PeakSearchCfg configures seeded and ring peak searches.
type PeakSearchCfg struct {
	Window      int     `mapstructure:"window" yaml:"window"`               // Local maximum window, px
	DeltaTTHDeg float64 `mapstructure:"delta_tth_deg" yaml:"delta_tth_deg"` // Ring band half-width
	Algorithm   string  `mapstructure:"algorithm" yaml:"algorithm"`         // "massif" or "blob"
	UpperLimit  float64 `mapstructure:"upper_limit" yaml:"upper_limit"`     // Saturation ceiling

	SmoothSigma    float64 `mapstructure:"smooth_sigma" yaml:"smooth_sigma"`         // Massif hill-climb smoothing, px
	ValleySigma    float64 `mapstructure:"valley_sigma" yaml:"valley_sigma"`         // Massif background smoothing, px
	MedianSize     int     `mapstructure:"median_size" yaml:"median_size"`           // 3 or 5
	MaxPeaks       int     `mapstructure:"max_peaks" yaml:"max_peaks"`               // Peaks kept per massif
	BlobSigmaSmall float64 `mapstructure:"blob_sigma_small" yaml:"blob_sigma_small"` // Inner DoG sigma, px
	BlobSigmaLarge float64 `mapstructure:"blob_sigma_large" yaml:"blob_sigma_large"` // Outer DoG sigma, px
	FallbackWindow int     `mapstructure:"fallback_window" yaml:"fallback_window"`   // Blob fallback window, px
}

// IntegrationCfg sets bin counts and the radial unit.
type IntegrationCfg struct {
	Bins          int    `mapstructure:"bins" yaml:"bins"`
	RadialBins    int    `mapstructure:"radial_bins" yaml:"radial_bins"`
	AzimuthalBins int    `mapstructure:"azimuthal_bins" yaml:"azimuthal_bins"`
	Unit          string `mapstructure:"unit" yaml:"unit"`
}

// RefinementCfg bounds the least-squares fit.
type RefinementCfg struct {
	MaxIterations int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	Tolerance     float64 `mapstructure:"tolerance" yaml:"tolerance"`
}

// DefaultConfig returns configuration with the calibration defaults.
func DefaultConfig() *Config {
	return &Config{
		StartValues: StartValuesCfg{
			Distance:           400e-3,
			Wavelength:         0.4133e-10,
			PixelWidth:         200e-6,
			PixelHeight:        200e-6,
			PolarizationFactor: 0.95,
		},
		PeakSearch: PeakSearchCfg{
			Window:      10,
			DeltaTTHDeg: 0.1,
			Algorithm:   "massif",
			UpperLimit:  55000,

			SmoothSigma:    1.0,
			ValleySigma:    8.0,
			MedianSize:     3,
			MaxPeaks:       200,
			BlobSigmaSmall: 1.0,
			BlobSigmaLarge: 3.0,
			FallbackWindow: 40,
		},
		Integration: IntegrationCfg{
			Bins:          1400,
			RadialBins:    2024,
			AzimuthalBins: 2024,
			Unit:          "2th_deg",
		},
		Refinement: RefinementCfg{
			MaxIterations: 200,
			Tolerance:     1e-15,
		},
	}
}

// defaultKeys flattens c into dotted viper keys. Registering every leaf
// lets AutomaticEnv see nested fields during Unmarshal.
func defaultKeys(c *Config) map[string]any {
	return map[string]any{
		"start_values.distance":            c.StartValues.Distance,
		"start_values.wavelength":          c.StartValues.Wavelength,
		"start_values.pixel_width":         c.StartValues.PixelWidth,
		"start_values.pixel_height":        c.StartValues.PixelHeight,
		"start_values.polarization_factor": c.StartValues.PolarizationFactor,
		"peak_search.window":               c.PeakSearch.Window,
		"peak_search.delta_tth_deg":        c.PeakSearch.DeltaTTHDeg,
		"peak_search.algorithm":            c.PeakSearch.Algorithm,
		"peak_search.upper_limit":          c.PeakSearch.UpperLimit,
		"peak_search.smooth_sigma":         c.PeakSearch.SmoothSigma,
		"peak_search.valley_sigma":         c.PeakSearch.ValleySigma,
		"peak_search.median_size":          c.PeakSearch.MedianSize,
		"peak_search.max_peaks":            c.PeakSearch.MaxPeaks,
		"peak_search.blob_sigma_small":     c.PeakSearch.BlobSigmaSmall,
		"peak_search.blob_sigma_large":     c.PeakSearch.BlobSigmaLarge,
		"peak_search.fallback_window":      c.PeakSearch.FallbackWindow,
		"integration.bins":                 c.Integration.Bins,
		"integration.radial_bins":          c.Integration.RadialBins,
		"integration.azimuthal_bins":       c.Integration.AzimuthalBins,
		"integration.unit":                 c.Integration.Unit,
		"refinement.max_iterations":        c.Refinement.MaxIterations,
		"refinement.tolerance":             c.Refinement.Tolerance,
		"calibrant_dir":                    c.CalibrantDir,
	}
}
