package calibration

import (
	"fmt"
	"path/filepath"
	"strings"

	"xrd-calib/internal/detector"
)

// Load replaces the geometry with one read from a PONI file. Keys missing
// from the file keep their start values. The peak set is emptied and the
// session becomes calibrated under the file's base name.
func (s *Session) Load(path string) error {
	p, err := detector.LoadPONI(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	g := p.Apply(s.start.geometry())
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	s.ClearPeaks()
	s.tth = nil
	s.setGeometry(g)
	s.state = Calibrated
	s.name = baseName(path)
	s.logger.Info("calibration loaded", "path", path, "name", s.name)
	s.emit(EventLoaded, path)
	return nil
}

// Save writes the current geometry to a PONI file and renames the
// calibration after it.
func (s *Session) Save(path string) error {
	if s.geometry == nil {
		return ErrNotCalibrated
	}
	var w, h int
	if s.img != nil {
		w, h = s.img.Shape()
	}
	if err := detector.NewPONI(*s.geometry, w, h).Save(path); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	s.name = baseName(path)
	s.logger.Info("calibration saved", "path", path, "name", s.name)
	s.emit(EventSaved, path)
	return nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
