package calibration

import (
	"fmt"
	"math"

	"xrd-calib/internal/peaks"
	"xrd-calib/pkg/geometry"
)

// FindPeak appends the brightest pixel of the window around (x, y) as one
// observation of ring. A window with no overlap yields an empty result and
// appends nothing.
func (s *Session) FindPeak(x, y float64, window, ring int) (peaks.Result, error) {
	if err := s.requireImage(); err != nil {
		return peaks.Result{}, err
	}
	if err := s.requireCalibrant(); err != nil {
		return peaks.Result{}, err
	}
	res := peaks.LocalMaximum(s.img, x, y, window)
	if !res.Found() {
		return res, nil
	}
	if err := s.addObservation(res.Points, ring); err != nil {
		return peaks.Result{}, err
	}
	return res, nil
}

// FindPeaksAutomatic appends every peak of the massif around (x, y), or of
// the blob fallback, as one batch observation of ring.
func (s *Session) FindPeaksAutomatic(x, y float64, ring int) (peaks.Result, error) {
	if err := s.requireImage(); err != nil {
		return peaks.Result{}, err
	}
	if err := s.requireCalibrant(); err != nil {
		return peaks.Result{}, err
	}
	if ring < 0 || ring >= s.calibrant.RingCount() {
		return peaks.Result{}, fmt.Errorf("%w: ring %d, calibrant has %d", peaks.ErrRingIndex, ring, s.calibrant.RingCount())
	}
	finder, err := s.peakFinder()
	if err != nil {
		return peaks.Result{}, err
	}
	res, err := finder.FindPeaksAutomatic(geometry.Point2D{X: x, Y: y})
	if err != nil || !res.Found() {
		return res, err
	}
	if err := s.addObservation(res.Points, ring); err != nil {
		return peaks.Result{}, err
	}
	return res, nil
}

// SearchPeaksOnRing searches the band of ±deltaDeg around the expected 2θ
// of ring and appends what it finds as one batch. Before calibration it
// returns an empty result and changes nothing.
func (s *Session) SearchPeaksOnRing(ring int, deltaDeg float64, alg peaks.Algorithm, upperLimit float64) (peaks.Result, error) {
	if !s.IsCalibrated() {
		s.logger.Debug("ring search skipped", "ring", ring, "reason", ErrNotCalibrated)
		return peaks.Result{}, nil
	}
	if err := s.requireImage(); err != nil {
		return peaks.Result{}, err
	}
	if err := s.requireCalibrant(); err != nil {
		return peaks.Result{}, err
	}
	target, ok := s.calibrant.Angle(ring)
	if !ok {
		return peaks.Result{}, fmt.Errorf("%w: ring %d, calibrant has %d", peaks.ErrRingIndex, ring, s.calibrant.RingCount())
	}
	finder, err := s.peakFinder()
	if err != nil {
		return peaks.Result{}, err
	}

	res := finder.SearchRing(s.twoThetaMap(), target, deltaDeg*math.Pi/180, upperLimit, alg)
	s.logger.Debug("ring search", "ring", ring, "algorithm", alg, "peaks", len(res.Points))
	if !res.Found() {
		return res, nil
	}
	if err := s.addObservation(res.Points, ring); err != nil {
		return peaks.Result{}, err
	}
	return res, nil
}

// ClearPeaks empties the peak set.
func (s *Session) ClearPeaks() {
	s.peaks.Clear()
	s.emit(EventPeaksChanged, 0)
}

// Peaks returns the observations in detection order.
func (s *Session) Peaks() []peaks.Observation {
	return s.peaks.Observations()
}

// PointCount returns the number of observed points across all batches.
func (s *Session) PointCount() int {
	return s.peaks.PointCount()
}

func (s *Session) addObservation(points []geometry.Point2D, ring int) error {
	w, h := s.img.Shape()
	if err := s.peaks.Append(peaks.Observation{Points: points, Ring: ring}, s.calibrant.RingCount(), w, h); err != nil {
		return err
	}
	s.emit(EventPeaksChanged, s.peaks.PointCount())
	return nil
}
