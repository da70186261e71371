package integrate

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"xrd-calib/internal/detector"
	"xrd-calib/internal/image"
)

const size = 64

func testGeometry() detector.Geometry {
	return detector.Geometry{
		Distance:   0.05,
		Poni1:      size / 2 * 1e-4,
		Poni2:      size / 2 * 1e-4,
		PixelSize1: 1e-4,
		PixelSize2: 1e-4,
		Wavelength: 1e-10,
	}
}

// gradientImage varies along x so masking one half changes every ring.
func gradientImage(t *testing.T) *image.Frame {
	t.Helper()
	data := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			data[y*size+x] = 100 + float64(x)
		}
	}
	f, err := image.New(size, size, data)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func leftHalfMask() []bool {
	m := make([]bool, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size/2; x++ {
			m[y*size+x] = true
		}
	}
	return m
}

func TestIntegrate1D(t *testing.T) {
	src := gradientImage(t)
	opts := DefaultOptions(0.95)
	opts.Bins = 30

	p, err := Integrate1D(src, testGeometry(), opts)
	if err != nil {
		t.Fatalf("Integrate1D: %v", err)
	}
	if len(p.Radial) != 30 || len(p.Intensity) != 30 {
		t.Fatalf("lengths %d/%d, want 30", len(p.Radial), len(p.Intensity))
	}
	if p.Unit != TwoThetaDeg {
		t.Errorf("unit = %s", p.Unit)
	}
	for k := 1; k < len(p.Radial); k++ {
		if !(p.Radial[k] > p.Radial[k-1]) {
			t.Fatalf("radial axis not increasing at %d", k)
		}
	}
	for k, v := range p.Intensity {
		if v <= 0 {
			t.Errorf("bin %d empty or negative: %g", k, v)
		}
	}

	again, err := Integrate1D(src, testGeometry(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p, again) {
		t.Error("repeated integration differs")
	}
}

func TestIntegrate1DMask(t *testing.T) {
	src := gradientImage(t)
	opts := DefaultOptions(0)
	opts.Bins = 20

	full, err := Integrate1D(src, testGeometry(), opts)
	if err != nil {
		t.Fatal(err)
	}
	opts.Mask = leftHalfMask()
	masked, err := Integrate1D(src, testGeometry(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(full.Intensity, masked.Intensity) {
		t.Error("mask had no effect")
	}
	// Only the brighter right half remains.
	if masked.Intensity[0] <= full.Intensity[0] {
		t.Errorf("masked first bin %g not above unmasked %g", masked.Intensity[0], full.Intensity[0])
	}

	opts.Mask = make([]bool, 10)
	if _, err := Integrate1D(src, testGeometry(), opts); !errors.Is(err, ErrMaskShape) {
		t.Errorf("err = %v, want ErrMaskShape", err)
	}
}

func TestIntegrate2DHonoursMask(t *testing.T) {
	src := gradientImage(t)
	opts := DefaultOptions(0.95)
	opts.RadialBins, opts.AzimuthalBins = 16, 36

	full, err := Integrate2D(src, testGeometry(), opts)
	if err != nil {
		t.Fatalf("Integrate2D: %v", err)
	}
	opts.Mask = leftHalfMask()
	masked, err := Integrate2D(src, testGeometry(), opts)
	if err != nil {
		t.Fatalf("Integrate2D: %v", err)
	}
	if reflect.DeepEqual(full.Intensity, masked.Intensity) {
		t.Fatal("2D integration ignored the mask")
	}

	// The left half of the detector (x < poni2) is χ near ±180°.
	// Those azimuthal rows must be empty once masked.
	for a, chi := range masked.Azimuthal {
		if math.Abs(chi) < 170 {
			continue
		}
		for k, v := range masked.Intensity[a] {
			if v != 0 {
				t.Errorf("masked cake row χ=%.0f bin %d = %g, want 0", chi, k, v)
			}
		}
	}
}

func TestIntegrate2DAxes(t *testing.T) {
	src := gradientImage(t)
	opts := DefaultOptions(0)
	opts.RadialBins, opts.AzimuthalBins = 10, 8
	cake, err := Integrate2D(src, testGeometry(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(cake.Intensity) != 8 || len(cake.Intensity[0]) != 10 {
		t.Fatalf("cake shape %dx%d, want 8x10", len(cake.Intensity), len(cake.Intensity[0]))
	}
	want := []float64{-157.5, -112.5, -67.5, -22.5, 22.5, 67.5, 112.5, 157.5}
	for i, v := range want {
		if math.Abs(cake.Azimuthal[i]-v) > 1e-9 {
			t.Errorf("azimuth[%d] = %g, want %g", i, cake.Azimuthal[i], v)
		}
	}

	again, err := Integrate2D(src, testGeometry(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cake, again) {
		t.Error("repeated 2D integration differs")
	}
}

func TestPolarization(t *testing.T) {
	tests := []struct {
		name        string
		tth, chi, f float64
		want        float64
	}{
		{"forward beam", 0, 1.3, 0.95, 1},
		{"unpolarized at 90°", math.Pi / 2, 0, 0, 0.5},
		{"fully polarized in plane", math.Pi / 2, 0, 1, 0},
		{"fully polarized out of plane", math.Pi / 2, math.Pi / 2, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := polarization(tt.tth, tt.chi, tt.f); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("polarization = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestPolarizationCorrection(t *testing.T) {
	data := make([]float64, size*size)
	for i := range data {
		data[i] = 1
	}
	src, err := image.New(size, size, data)
	if err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions(0)
	opts.Bins = 8
	opts.Unit = TwoThetaRad
	p, err := Integrate1D(src, testGeometry(), opts)
	if err != nil {
		t.Fatal(err)
	}
	// With f = 0 every pixel reads 2/(1+cos²2θ); the bin mean stays close
	// to the value at the bin centre.
	for k, tth := range p.Radial {
		c := math.Cos(tth)
		want := 2 / (1 + c*c)
		if math.Abs(p.Intensity[k]-want) > 1e-3 {
			t.Errorf("bin %d: %g, want about %g", k, p.Intensity[k], want)
		}
	}
}

func TestUnits(t *testing.T) {
	src := gradientImage(t)
	g := testGeometry()
	get := func(u Unit) *Pattern {
		opts := DefaultOptions(0)
		opts.Bins = 12
		opts.Unit = u
		p, err := Integrate1D(src, g, opts)
		if err != nil {
			t.Fatalf("%s: %v", u, err)
		}
		return p
	}

	nm, a := get(QNm), get(QA)
	deg, rad := get(TwoThetaDeg), get(TwoThetaRad)
	for k := range nm.Radial {
		if math.Abs(nm.Radial[k]/10-a.Radial[k]) > 1e-9*nm.Radial[k] {
			t.Errorf("bin %d: q_nm %g vs q_A %g", k, nm.Radial[k], a.Radial[k])
		}
		if math.Abs(rad.Radial[k]*180/math.Pi-deg.Radial[k]) > 1e-9 {
			t.Errorf("bin %d: rad %g vs deg %g", k, rad.Radial[k], deg.Radial[k])
		}
	}
	mm := get(RMm)
	if last := mm.Radial[len(mm.Radial)-1]; last <= 0 || last > 5 {
		t.Errorf("r_mm axis ends at %g", last)
	}

	for in, want := range map[string]Unit{"2th_deg": TwoThetaDeg, "Q_NM^-1": QNm, "r_mm": RMm} {
		if got, err := ParseUnit(in); err != nil || got != want {
			t.Errorf("ParseUnit(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseUnit("chi_deg"); err == nil {
		t.Error("ParseUnit accepted chi_deg")
	}

	noLambda := g
	noLambda.Wavelength = 0
	opts := DefaultOptions(0)
	opts.Unit = QNm
	if _, err := Integrate1D(src, noLambda, opts); !errors.Is(err, detector.ErrInvalidGeometry) {
		t.Errorf("err = %v, want ErrInvalidGeometry", err)
	}
	opts.Unit = "furlongs"
	if _, err := Integrate1D(src, g, opts); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("Integrate1D err = %v, want ErrUnknownUnit", err)
	}
	if _, err := Integrate2D(src, g, opts); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("Integrate2D err = %v, want ErrUnknownUnit", err)
	}

	opts.Unit = "Q_A^-1"
	pat, err := Integrate1D(src, g, opts)
	if err != nil {
		t.Fatalf("Integrate1D: %v", err)
	}
	if pat.Unit != QA {
		t.Errorf("pattern unit = %q, want %q", pat.Unit, QA)
	}
}
