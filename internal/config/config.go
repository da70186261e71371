// Package config loads xrdcal settings from defaults, an optional YAML file
// and XRDCAL_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"xrd-calib/internal/calibration"
	"xrd-calib/internal/integrate"
	"xrd-calib/internal/peaks"
	"xrd-calib/internal/refine"
)

// EnvPrefix is prepended to every environment override, e.g.
// XRDCAL_START_VALUES_DISTANCE.
const EnvPrefix = "XRDCAL"

// Manager handles loading configuration.
type Manager struct {
	mu     sync.RWMutex
	v      *viper.Viper
	config *Config
	file   string
}

// NewManager creates a config manager and loads the initial config. An empty
// cfgFile searches ./xrdcal.yaml and $HOME/.xrdcal/xrdcal.yaml; neither is
// required. An explicit cfgFile must exist.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{v: viper.New()}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	for key, val := range defaultKeys(DefaultConfig()) {
		v.SetDefault(key, val)
	}

	// Nested keys map to XRDCAL_SECTION_FIELD.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("xrdcal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.xrdcal")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	cm.file = v.ConfigFileUsed()

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// File returns the config file that was read, or "" when running on
// defaults and environment only.
func (cm *Manager) File() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.file
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left alone unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that viper cannot type-check.
func (c *Config) Validate() error {
	if err := c.Start().Validate(); err != nil {
		return err
	}
	if _, err := peaks.ParseAlgorithm(c.PeakSearch.Algorithm); err != nil {
		return fmt.Errorf("peak_search.algorithm: %w", err)
	}
	if _, err := integrate.ParseUnit(c.Integration.Unit); err != nil {
		return fmt.Errorf("integration.unit: %w", err)
	}
	switch {
	case c.PeakSearch.Window < 1:
		return fmt.Errorf("peak_search.window must be at least 1, got %d", c.PeakSearch.Window)
	case !(c.PeakSearch.DeltaTTHDeg > 0):
		return fmt.Errorf("peak_search.delta_tth_deg must be positive, got %v", c.PeakSearch.DeltaTTHDeg)
	case !(c.PeakSearch.SmoothSigma > 0) || !(c.PeakSearch.ValleySigma > 0):
		return fmt.Errorf("peak_search smoothing sigmas must be positive")
	case c.PeakSearch.MedianSize != 3 && c.PeakSearch.MedianSize != 5:
		return fmt.Errorf("peak_search.median_size must be 3 or 5, got %d", c.PeakSearch.MedianSize)
	case c.PeakSearch.MaxPeaks < 1:
		return fmt.Errorf("peak_search.max_peaks must be at least 1, got %d", c.PeakSearch.MaxPeaks)
	case !(c.PeakSearch.BlobSigmaSmall > 0) || !(c.PeakSearch.BlobSigmaLarge > c.PeakSearch.BlobSigmaSmall):
		return fmt.Errorf("peak_search blob sigmas need 0 < small < large, got %v / %v",
			c.PeakSearch.BlobSigmaSmall, c.PeakSearch.BlobSigmaLarge)
	case c.PeakSearch.FallbackWindow < 1:
		return fmt.Errorf("peak_search.fallback_window must be at least 1, got %d", c.PeakSearch.FallbackWindow)
	case c.Integration.Bins < 1 || c.Integration.RadialBins < 1 || c.Integration.AzimuthalBins < 1:
		return fmt.Errorf("integration bins must be positive")
	case c.Refinement.MaxIterations < 1:
		return fmt.Errorf("refinement.max_iterations must be at least 1, got %d", c.Refinement.MaxIterations)
	case c.Refinement.Tolerance < 0:
		return fmt.Errorf("refinement.tolerance must not be negative, got %v", c.Refinement.Tolerance)
	}
	return nil
}

// Start returns the configured calibration start values.
func (c *Config) Start() calibration.StartValues {
	return calibration.StartValues{
		Distance:           c.StartValues.Distance,
		Wavelength:         c.StartValues.Wavelength,
		PixelWidth:         c.StartValues.PixelWidth,
		PixelHeight:        c.StartValues.PixelHeight,
		PolarizationFactor: c.StartValues.PolarizationFactor,
	}
}

// Algorithm returns the configured ring search algorithm. Validate has
// already rejected unknown names.
func (c *Config) Algorithm() peaks.Algorithm {
	alg, err := peaks.ParseAlgorithm(c.PeakSearch.Algorithm)
	if err != nil {
		return peaks.Massif
	}
	return alg
}

// PeakParams returns the configured image peak search parameters.
func (c *Config) PeakParams() peaks.Params {
	ps := c.PeakSearch
	return peaks.DefaultParams().
		WithSmoothing(ps.SmoothSigma, ps.ValleySigma).
		WithMedianSize(ps.MedianSize).
		WithMaxPeaks(ps.MaxPeaks).
		WithBlobSigmas(ps.BlobSigmaSmall, ps.BlobSigmaLarge).
		WithFallbackWindow(ps.FallbackWindow)
}

// SessionOptions converts the config into calibration session options.
func (c *Config) SessionOptions() []calibration.Option {
	ro := refine.DefaultOptions()
	ro.MaxIterations = c.Refinement.MaxIterations
	if c.Refinement.Tolerance > 0 {
		ro.Tolerance = c.Refinement.Tolerance
	}

	bins := integrate.DefaultOptions(c.StartValues.PolarizationFactor)
	bins.Bins = c.Integration.Bins
	bins.RadialBins = c.Integration.RadialBins
	bins.AzimuthalBins = c.Integration.AzimuthalBins
	if u, err := integrate.ParseUnit(c.Integration.Unit); err == nil {
		bins.Unit = u
	}

	return []calibration.Option{
		calibration.WithRefineOptions(ro),
		calibration.WithIntegrationOptions(bins),
		calibration.WithPeakParams(c.PeakParams()),
		calibration.WithRingSearch(calibration.RingSearch{
			DeltaDeg:   c.PeakSearch.DeltaTTHDeg,
			UpperLimit: c.PeakSearch.UpperLimit,
		}),
	}
}
