package detector

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testGeometry() Geometry {
	return Geometry{
		Distance:   0.2,
		Poni1:      0.05,
		Poni2:      0.06,
		Rot1:       0.012,
		Rot2:       -0.007,
		PixelSize1: 1e-4,
		PixelSize2: 1e-4,
		Wavelength: 0.4133e-10,
	}
}

func TestTwoThetaUntilted(t *testing.T) {
	g := Geometry{Distance: 0.1, Poni1: 0.01005, Poni2: 0.02005, PixelSize1: 1e-4, PixelSize2: 1e-4, Wavelength: 1e-10}
	// Pixel (200, 100) has its centre exactly on the PONI.
	if tth := g.TwoTheta(200, 100); math.Abs(tth) > 1e-12 {
		t.Errorf("2θ at PONI = %v, want 0", tth)
	}

	tests := []struct {
		name   string
		x, y   float64
		wantR  float64 // m from PONI
		wantCh float64
	}{
		{"along +x", 300, 100, 0.01, 0},
		{"along +y", 200, 150, 0.005, math.Pi / 2},
		{"along -y", 200, 50, 0.005, -math.Pi / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tth, chi := g.TwoThetaChi(tt.x, tt.y)
			want := math.Atan(tt.wantR / 0.1)
			if math.Abs(tth-want) > 1e-12 {
				t.Errorf("2θ = %v, want %v", tth, want)
			}
			if math.Abs(chi-tt.wantCh) > 1e-12 {
				t.Errorf("χ = %v, want %v", chi, tt.wantCh)
			}
			if math.Abs(g.TwoTheta(tt.x, tt.y)-tth) > 0 || math.Abs(g.Chi(tt.x, tt.y)-chi) > 0 {
				t.Error("single-angle accessors disagree with TwoThetaChi")
			}
		})
	}
}

func TestRot3DoesNotChangeTwoTheta(t *testing.T) {
	g := testGeometry()
	rotated := g
	rotated.Rot3 = 0.4
	for _, p := range [][2]float64{{0, 0}, {123, 456}, {999, 10}} {
		a, b := g.TwoTheta(p[0], p[1]), rotated.TwoTheta(p[0], p[1])
		if math.Abs(a-b) > 1e-12 {
			t.Errorf("rot3 changed 2θ at %v: %v vs %v", p, a, b)
		}
	}
}

func TestAngleMapsMatchPointwise(t *testing.T) {
	g := testGeometry()
	w, h := 7, 5
	tth, chi := g.AngleMaps(w, h)
	tthOnly := g.TwoThetaMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			wt, wc := g.TwoThetaChi(float64(x), float64(y))
			if tth[i] != wt || chi[i] != wc || tthOnly[i] != wt {
				t.Fatalf("map mismatch at (%d,%d)", x, y)
			}
		}
	}
}

func TestUnitConversions(t *testing.T) {
	g := testGeometry()
	tth := 0.1
	wantQ := 4 * math.Pi * math.Sin(0.05) / (0.4133e-10 * 1e9)
	if math.Abs(g.Q(tth)-wantQ) > 1e-9 {
		t.Errorf("Q = %v, want %v", g.Q(tth), wantQ)
	}
	if math.Abs(g.R(tth)-200*math.Tan(0.1)) > 1e-9 {
		t.Errorf("R = %v", g.R(tth))
	}
}

func TestValidate(t *testing.T) {
	g := testGeometry()
	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []func(*Geometry){
		func(g *Geometry) { g.Distance = 0 },
		func(g *Geometry) { g.PixelSize1 = -1 },
		func(g *Geometry) { g.Rot1 = math.NaN() },
	}
	for i, mutate := range bad {
		b := g
		mutate(&b)
		if err := b.Validate(); !errors.Is(err, ErrInvalidGeometry) {
			t.Errorf("case %d: expected ErrInvalidGeometry, got %v", i, err)
		}
	}
}

func TestLegacyRoundTrip(t *testing.T) {
	g := testGeometry()
	l, err := g.Legacy()
	if err != nil {
		t.Fatalf("Legacy: %v", err)
	}
	if math.Abs(l.PixelSizeX-100) > 1e-9 || math.Abs(l.PixelSizeY-100) > 1e-9 {
		t.Errorf("pixel sizes = %v x %v µm, want 100", l.PixelSizeX, l.PixelSizeY)
	}
	if !(l.DirectDistance > 200) {
		t.Errorf("direct distance %v mm should exceed the normal distance", l.DirectDistance)
	}

	back, err := FromLegacy(l)
	if err != nil {
		t.Fatalf("FromLegacy: %v", err)
	}
	pairs := [][2]float64{
		{g.Distance, back.Distance}, {g.Poni1, back.Poni1}, {g.Poni2, back.Poni2},
		{g.Rot1, back.Rot1}, {g.Rot2, back.Rot2}, {g.Rot3, back.Rot3},
		{g.PixelSize1, back.PixelSize1}, {g.PixelSize2, back.PixelSize2}, {g.Wavelength, back.Wavelength},
	}
	for i, p := range pairs {
		if math.Abs(p[0]-p[1]) > 1e-12 {
			t.Errorf("param %d: %v != %v", i, p[0], p[1])
		}
	}
}

func TestLegacyBeamCentreIsDirectBeam(t *testing.T) {
	g := testGeometry()
	l, err := g.Legacy()
	if err != nil {
		t.Fatal(err)
	}
	// The legacy centre is measured from the pixel edge; pixel centres sit at +0.5.
	if tth := g.TwoTheta(l.CenterX-0.5, l.CenterY-0.5); math.Abs(tth) > 1e-9 {
		t.Errorf("2θ at legacy centre = %v, want 0", tth)
	}
}

func TestLegacyNotDerivable(t *testing.T) {
	tests := map[string]func(*Geometry){
		"rot3":          func(g *Geometry) { g.Rot3 = 0.1 },
		"zero distance": func(g *Geometry) { g.Distance = 0 },
		"no pixel size": func(g *Geometry) { g.PixelSize2 = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			g := testGeometry()
			mutate(&g)
			if _, err := g.Legacy(); !errors.Is(err, ErrNotDerivable) {
				t.Errorf("expected ErrNotDerivable, got %v", err)
			}
		})
	}
}

func TestPONIRoundTrip(t *testing.T) {
	g := testGeometry()
	g.Rot3 = 1.0 / 3.0

	var buf bytes.Buffer
	if err := NewPONI(g, 2048, 1024).Write(&buf); err != nil {
		t.Fatal(err)
	}
	p, err := ReadPONI(&buf)
	if err != nil {
		t.Fatalf("ReadPONI: %v\n%s", err, buf.String())
	}
	if p.Geometry != g {
		t.Errorf("round trip changed geometry:\n got %+v\nwant %+v", p.Geometry, g)
	}
	if p.Version != 2 || p.Detector != "Detector" {
		t.Errorf("version/detector = %g/%q", p.Version, p.Detector)
	}
	if len(p.MaxShape) != 2 || p.MaxShape[0] != 1024 || p.MaxShape[1] != 2048 {
		t.Errorf("max shape = %v, want [1024 2048]", p.MaxShape)
	}
}

func TestReadPONIVersion1(t *testing.T) {
	src := `# Nota: C-Order, 1 refers to the Y axis, 2 to the X axis
# Calibration done at Mon Jan 1 00:00:00 2024
PixelSize1: 7.9e-05
PixelSize2: 7.9e-05
Distance: 0.1967
Poni1: 0.0801
Poni2: 0.0875
Rot1: 0.0012
Rot2: -0.0021
Rot3: 0.0
SplineFile: None
`
	p, err := ReadPONI(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadPONI: %v", err)
	}
	if p.Version != 1 {
		t.Errorf("Version = %g, want 1", p.Version)
	}
	if p.Geometry.PixelSize1 != 7.9e-05 || p.Geometry.Distance != 0.1967 {
		t.Errorf("unexpected geometry %+v", p.Geometry)
	}
	if p.Has("wavelength") {
		t.Error("wavelength should be absent")
	}

	seed := Geometry{Wavelength: 0.31e-10, PixelSize1: 1, PixelSize2: 1, Distance: 9}
	applied := p.Apply(seed)
	if applied.Wavelength != 0.31e-10 {
		t.Errorf("Apply dropped seed wavelength: %v", applied.Wavelength)
	}
	if applied.Distance != 0.1967 || applied.PixelSize2 != 7.9e-05 {
		t.Errorf("Apply did not override present keys: %+v", applied)
	}
}

func TestReadPONIVersion21(t *testing.T) {
	src := `# Nota: C-Order, 1 refers to the Y axis, 2 to the X axis
poni_version: 2.1
Detector: Pilatus1M
Detector_config: {"pixel1": 0.000172, "pixel2": 0.000172, "max_shape": [1043, 981], "orientation": 3}
Distance: 0.1
Poni1: 0.09
Poni2: 0.08
Rot1: 0.01
Rot2: 0.02
Rot3: 0.0
Wavelength: 1e-10
`
	p, err := ReadPONI(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadPONI: %v", err)
	}
	if p.Version != 2.1 || p.Detector != "Pilatus1M" {
		t.Errorf("version/detector = %g/%q", p.Version, p.Detector)
	}
	if p.Geometry.PixelSize1 != 0.000172 || p.Geometry.Poni2 != 0.08 || p.Geometry.Wavelength != 1e-10 {
		t.Errorf("unexpected geometry %+v", p.Geometry)
	}
	if len(p.MaxShape) != 2 || p.MaxShape[0] != 1043 {
		t.Errorf("max shape = %v", p.MaxShape)
	}
}

func TestReadPONIInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":            "",
		"no colon":         "Distance 0.1\n",
		"bad float":        "Distance: abc\nPoni1: 0\nPoni2: 0\n",
		"missing poni":     "Distance: 0.1\nPoni1: 0.01\n",
		"negative dist":    "Distance: -0.1\nPoni1: 0\nPoni2: 0\n",
		"bad config":       "Detector_config: {oops\nDistance: 0.1\nPoni1: 0\nPoni2: 0\n",
		"bad poni_version": "poni_version: two\n",
		"flipped detector": "poni_version: 2.1\nDetector_config: {\"pixel1\": 1e-4, \"pixel2\": 1e-4, \"orientation\": 1}\n" +
			"Distance: 0.1\nPoni1: 0\nPoni2: 0\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadPONI(strings.NewReader(src)); !errors.Is(err, ErrInvalidPONI) {
				t.Errorf("expected ErrInvalidPONI, got %v", err)
			}
		})
	}
}

func TestSaveLoadPONI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geom.poni")
	g := testGeometry()
	if err := NewPONI(g, 0, 0).Save(path); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPONI(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Geometry != g {
		t.Errorf("got %+v, want %+v", p.Geometry, g)
	}
	if p.MaxShape != nil {
		t.Errorf("max shape = %v, want none", p.MaxShape)
	}

	if _, err := LoadPONI(filepath.Join(t.TempDir(), "missing.poni")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
