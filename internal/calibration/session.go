// Package calibration ties peak search, geometry refinement and azimuthal
// integration into one calibration session per detector configuration.
package calibration

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"xrd-calib/internal/calibrant"
	"xrd-calib/internal/detector"
	"xrd-calib/internal/image"
	"xrd-calib/internal/integrate"
	"xrd-calib/internal/peaks"
	"xrd-calib/internal/refine"
)

var (
	// ErrNotCalibrated is returned by operations that need a geometry.
	ErrNotCalibrated = errors.New("not calibrated")
	// ErrNoImage is returned by operations that need an image.
	ErrNoImage = errors.New("no image set")
	// ErrNoCalibrant is returned by operations that need a calibrant.
	ErrNoCalibrant = errors.New("no calibrant set")
	// ErrNoPeaks is returned by Calibrate with an empty peak set.
	ErrNoPeaks = errors.New("no peaks to calibrate against")
	// ErrLoad wraps failures reading a persisted geometry.
	ErrLoad = errors.New("failed to load calibration")
	// ErrSave wraps failures writing a persisted geometry.
	ErrSave = errors.New("failed to save calibration")
)

// State is the refinement lifecycle of a session.
type State int

const (
	Uninitialized State = iota
	Seeded
	Refining
	Calibrated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Seeded:
		return "seeded"
	case Refining:
		return "refining"
	case Calibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

// CurrentName is the calibration name before the geometry is saved.
const CurrentName = "current"

// RingSearch holds the defaults Recalibrate uses for each ring.
type RingSearch struct {
	DeltaDeg   float64
	UpperLimit float64
}

// DefaultRingSearch returns a 0.1° band and a 55000 count ceiling.
func DefaultRingSearch() RingSearch {
	return RingSearch{DeltaDeg: 0.1, UpperLimit: 55000}
}

// Session is one calibration: an image, a calibrant, accumulated peak
// observations and the refined geometry. A Session is not safe for
// concurrent use.
type Session struct {
	id     string
	logger *slog.Logger

	registry    *calibrant.Registry
	refineOpts  refine.Options
	peakParams  peaks.Params
	integration integrate.Options
	ringSearch  RingSearch

	img    image.Source
	finder *peaks.Finder

	calibrant     *calibrant.Calibrant
	start         StartValues
	polarization  float64
	fitWavelength bool

	peaks    peaks.Set
	geometry *detector.Geometry

	// 2θ map for tthFor, reused by ring searches.
	tth    []float64
	tthFor detector.Geometry

	state State
	name  string

	pattern *integrate.Pattern
	cake    *integrate.Cake

	listeners map[EventType][]EventListener
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger; the session id is attached to every record.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithRegistry sets the calibrant registry used by SetCalibrant.
func WithRegistry(r *calibrant.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithRefineOptions sets the least-squares options.
func WithRefineOptions(o refine.Options) Option {
	return func(s *Session) { s.refineOpts = o }
}

// WithPeakParams sets the image peak search parameters.
func WithPeakParams(p peaks.Params) Option {
	return func(s *Session) { s.peakParams = p }
}

// WithIntegrationOptions sets the default bins and unit for Integrate.
// Mask and polarization are taken from the session.
func WithIntegrationOptions(o integrate.Options) Option {
	return func(s *Session) { s.integration = o }
}

// WithRingSearch sets the band and ceiling Recalibrate uses.
func WithRingSearch(r RingSearch) Option {
	return func(s *Session) { s.ringSearch = r }
}

// New creates an uninitialized session with default start values.
func New(opts ...Option) *Session {
	start := DefaultStartValues()
	s := &Session{
		id:           uuid.NewString(),
		logger:       slog.Default(),
		registry:     calibrant.NewRegistry(""),
		refineOpts:   refine.DefaultOptions(),
		peakParams:   peaks.DefaultParams(),
		integration:  integrate.DefaultOptions(start.PolarizationFactor),
		ringSearch:   DefaultRingSearch(),
		start:        start,
		polarization: start.PolarizationFactor,
		state:        Uninitialized,
		name:         "None",
		listeners:    make(map[EventType][]EventListener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// IsCalibrated reports whether a geometry has been refined or loaded.
func (s *Session) IsCalibrated() bool { return s.state == Calibrated }

// Name returns the calibration name: "current" after Calibrate, the file
// base name after Load or Save.
func (s *Session) Name() string { return s.name }

// FitWavelength reports whether Refine also fits the wavelength.
func (s *Session) FitWavelength() bool { return s.fitWavelength }

// SetFitWavelength toggles the wavelength stage of Refine.
func (s *Session) SetFitWavelength(fit bool) { s.fitWavelength = fit }

// Geometry returns the current geometry, or false before calibration.
func (s *Session) Geometry() (detector.Geometry, bool) {
	if s.geometry == nil {
		return detector.Geometry{}, false
	}
	return *s.geometry, true
}

// Calibrant returns the current calibrant, or nil.
func (s *Session) Calibrant() *calibrant.Calibrant { return s.calibrant }

// StartValues returns the stored start values.
func (s *Session) StartValues() StartValues { return s.start }

// Polarization returns the polarization factor used for integration.
func (s *Session) Polarization() float64 { return s.polarization }

// Pattern returns the last 1D integration result, or nil.
func (s *Session) Pattern() *integrate.Pattern { return s.pattern }

// Cake returns the last 2D integration result, or nil.
func (s *Session) Cake() *integrate.Cake { return s.cake }

// SetImage sets the image all searches and integrations read. The peak set
// is kept; callers clear it when switching to an unrelated image.
func (s *Session) SetImage(src image.Source) error {
	if err := image.Validate(src); err != nil {
		return err
	}
	s.img = src
	s.finder = nil
	s.tth = nil
	w, h := src.Shape()
	s.logger.Debug("image set", "width", w, "height", h)
	s.emit(EventImageSet, src)
	return nil
}

// SetCalibrant resolves identifier (a name or a definition file) through
// the registry at the current wavelength.
func (s *Session) SetCalibrant(identifier string) error {
	c, err := s.registry.Load(identifier, s.wavelength())
	if err != nil {
		return err
	}
	s.calibrant = c
	s.logger.Info("calibrant set", "calibrant", c.Name(), "rings", c.RingCount())
	s.emit(EventCalibrantChanged, c)
	return nil
}

// SetStartValues stores v and adopts its polarization factor. It does not
// refine.
func (s *Session) SetStartValues(v StartValues) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.start = v
	s.polarization = v.PolarizationFactor
	if s.geometry == nil && s.calibrant != nil {
		s.calibrant = s.calibrant.WithWavelength(v.Wavelength)
	}
	if s.state == Uninitialized {
		s.state = Seeded
	}
	return nil
}

// wavelength is the fitted wavelength once calibrated, else the start value.
func (s *Session) wavelength() float64 {
	if s.geometry != nil && s.geometry.Wavelength > 0 {
		return s.geometry.Wavelength
	}
	return s.start.Wavelength
}

// CalibrationParameters returns the native and legacy views of the
// current geometry. Legacy is nil when it cannot be derived; Wavelength is
// 0 when it is not determined.
func (s *Session) CalibrationParameters() (Parameters, error) {
	if s.geometry == nil {
		return Parameters{}, ErrNotCalibrated
	}
	p := Parameters{
		Native:       *s.geometry,
		Polarization: s.polarization,
	}
	if legacy, err := s.geometry.Legacy(); err == nil {
		p.Legacy = &legacy
	} else {
		s.logger.Debug("legacy parameters unavailable", "error", err)
	}
	if w := s.geometry.Wavelength; w > 0 {
		p.Wavelength = w
	}
	return p, nil
}

func (s *Session) requireImage() error {
	if s.img == nil {
		return ErrNoImage
	}
	return nil
}

func (s *Session) requireCalibrant() error {
	if s.calibrant == nil {
		return ErrNoCalibrant
	}
	return nil
}

// peakFinder returns the image peak finder, building it on first use.
func (s *Session) peakFinder() (*peaks.Finder, error) {
	if s.finder != nil {
		return s.finder, nil
	}
	f, err := peaks.NewFinder(s.img, s.peakParams)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare peak search: %w", err)
	}
	s.finder = f
	return f, nil
}

// twoThetaMap returns the per-pixel 2θ of the current geometry, cached
// until the geometry changes.
func (s *Session) twoThetaMap() []float64 {
	if s.tth != nil && s.tthFor == *s.geometry {
		return s.tth
	}
	w, h := s.img.Shape()
	s.tth = s.geometry.TwoThetaMap(w, h)
	s.tthFor = *s.geometry
	return s.tth
}
