package calibration

import (
	"gonum.org/v1/gonum/floats"

	"xrd-calib/internal/calibrant"
	"xrd-calib/internal/detector"
	"xrd-calib/internal/integrate"
	"xrd-calib/internal/peaks"
	"xrd-calib/internal/refine"
)

// Calibrate fits a fresh geometry seeded from the start values to the peak
// set, integrates the image and marks the session calibrated under the
// name "current".
func (s *Session) Calibrate() error {
	if err := s.requireImage(); err != nil {
		return err
	}
	if err := s.requireCalibrant(); err != nil {
		return err
	}
	obs := s.peaks.Flatten()
	if len(obs) == 0 {
		return ErrNoPeaks
	}

	snap := s.snapshot()
	s.state = Refining
	c := s.calibrant.WithWavelength(s.start.Wavelength)
	seed := refine.GuessPONI(s.start.geometry(), obs, c.Angles())
	s.logger.Debug("initial geometry", "dist", seed.Distance, "poni1", seed.Poni1, "poni2", seed.Poni2)

	g, err := s.fit(seed, obs, c.DSpacings())
	if err != nil {
		s.restore(snap)
		return err
	}
	s.setGeometry(g)
	if err := s.Integrate(); err != nil {
		s.restore(snap)
		return err
	}
	s.state = Calibrated
	s.name = CurrentName
	return nil
}

// Refine re-fits the current geometry to the peak set: wavelength fixed
// first, then, when FitWavelength is set, with the wavelength free too.
func (s *Session) Refine() error {
	if s.geometry == nil {
		return ErrNotCalibrated
	}
	if err := s.requireCalibrant(); err != nil {
		return err
	}
	obs := s.peaks.Flatten()
	if len(obs) == 0 {
		return ErrNoPeaks
	}

	prev := s.state
	s.state = Refining
	g, err := s.fit(*s.geometry, obs, s.calibrant.DSpacings())
	if err != nil {
		s.state = prev
		return err
	}
	s.setGeometry(g)
	s.state = Calibrated
	return nil
}

// Recalibrate replaces the peak set with a ring search on every calibrant
// ring that falls on the image, then refines and integrates. It does
// nothing before calibration.
func (s *Session) Recalibrate(alg peaks.Algorithm) error {
	if !s.IsCalibrated() {
		s.logger.Debug("recalibrate skipped", "reason", ErrNotCalibrated)
		return nil
	}
	if err := s.requireImage(); err != nil {
		return err
	}
	if err := s.requireCalibrant(); err != nil {
		return err
	}

	snap := s.snapshot()
	s.ClearPeaks()
	tth := s.twoThetaMap()
	lo, hi := floats.Min(tth), floats.Max(tth)
	for ring, angle := range s.calibrant.Angles() {
		if angle < lo || angle > hi {
			continue
		}
		if _, err := s.SearchPeaksOnRing(ring, s.ringSearch.DeltaDeg, alg, s.ringSearch.UpperLimit); err != nil {
			s.restore(snap)
			return err
		}
	}
	s.logger.Info("ring search complete", "algorithm", alg, "observations", s.peaks.Len(), "points", s.peaks.PointCount())

	if err := s.Refine(); err != nil {
		s.restore(snap)
		return err
	}
	if err := s.Integrate(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// snapshot records what a failed Calibrate or Recalibrate must put back.
type snapshot struct {
	state     State
	geometry  *detector.Geometry
	calibrant *calibrant.Calibrant
	peaks     peaks.Set
	pattern   *integrate.Pattern
	cake      *integrate.Cake
}

func (s *Session) snapshot() snapshot {
	return snapshot{
		state:     s.state,
		geometry:  s.geometry,
		calibrant: s.calibrant,
		peaks:     s.peaks,
		pattern:   s.pattern,
		cake:      s.cake,
	}
}

// restore rolls the session back to snap. The peak set is only ever
// replaced, never mutated in place, so the saved copy is intact.
func (s *Session) restore(snap snapshot) {
	restorePeaks := s.peaks.PointCount() != snap.peaks.PointCount() || s.peaks.Len() != snap.peaks.Len()
	s.state = snap.state
	s.geometry = snap.geometry
	s.calibrant = snap.calibrant
	s.peaks = snap.peaks
	s.pattern = snap.pattern
	s.cake = snap.cake
	if restorePeaks {
		s.emit(EventPeaksChanged, s.peaks.PointCount())
	}
}

// fit runs the fixed-wavelength stage and, if enabled, the free-wavelength
// stage.
func (s *Session) fit(seed detector.Geometry, obs []refine.Observation, dSpacings []float64) (detector.Geometry, error) {
	g, report, err := refine.Fit(seed, obs, dSpacings, false, s.refineOpts)
	if err != nil {
		s.logger.Warn("refinement failed", "error", err)
		return seed, err
	}
	s.logger.Info("geometry refined",
		"points", len(obs),
		"iterations", report.Iterations,
		"rms_rad", report.RMS,
		"dist", g.Distance)

	if s.fitWavelength {
		g, report, err = refine.Fit(g, obs, dSpacings, true, s.refineOpts)
		if err != nil {
			s.logger.Warn("wavelength refinement failed", "error", err)
			return seed, err
		}
		s.logger.Info("wavelength refined",
			"iterations", report.Iterations,
			"rms_rad", report.RMS,
			"wavelength", g.Wavelength)
	}
	return g, nil
}

// setGeometry adopts g and recomputes the calibrant angles for its
// wavelength.
func (s *Session) setGeometry(g detector.Geometry) {
	s.geometry = &g
	if s.calibrant != nil && g.Wavelength > 0 {
		s.calibrant = s.calibrant.WithWavelength(g.Wavelength)
	}
	s.emit(EventRefined, g)
}

// Integrate runs the 1D then the 2D integration with the session defaults.
func (s *Session) Integrate() error {
	if _, err := s.Integrate1D(s.defaultIntegration()); err != nil {
		return err
	}
	if _, err := s.Integrate2D(s.defaultIntegration()); err != nil {
		return err
	}
	return nil
}

// Integrate1D integrates the image with explicit options and keeps the
// result as Pattern.
func (s *Session) Integrate1D(opts integrate.Options) (*integrate.Pattern, error) {
	if err := s.requireImage(); err != nil {
		return nil, err
	}
	if s.geometry == nil {
		return nil, ErrNotCalibrated
	}
	p, err := integrate.Integrate1D(s.img, *s.geometry, opts)
	if err != nil {
		return nil, err
	}
	s.pattern = p
	s.emit(EventIntegrated, p)
	return p, nil
}

// Integrate2D integrates the image onto a cake with explicit options and
// keeps the result as Cake.
func (s *Session) Integrate2D(opts integrate.Options) (*integrate.Cake, error) {
	if err := s.requireImage(); err != nil {
		return nil, err
	}
	if s.geometry == nil {
		return nil, ErrNotCalibrated
	}
	c, err := integrate.Integrate2D(s.img, *s.geometry, opts)
	if err != nil {
		return nil, err
	}
	s.cake = c
	s.emit(EventIntegrated, c)
	return c, nil
}

// DefaultIntegration returns the session's integration options with its
// polarization factor.
func (s *Session) DefaultIntegration() integrate.Options {
	return s.defaultIntegration()
}

// PeakParams returns the image peak search parameters.
func (s *Session) PeakParams() peaks.Params { return s.peakParams }

func (s *Session) defaultIntegration() integrate.Options {
	opts := s.integration
	opts.Polarization = s.polarization
	return opts
}
